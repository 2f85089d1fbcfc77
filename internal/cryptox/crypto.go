// Package cryptox holds the hashing primitives used by taxdesk: BLAKE3
// content checksums for uploaded attachments and BLAKE2b MACs for the
// signed retrieval links issued by the local blob backend.
package cryptox

import (
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
)

var (
	ErrLinkExpired   = errors.New("link expired")
	ErrBadSignature  = errors.New("bad signature")
	ErrKeyTooLong    = errors.New("signing key longer than 64 bytes")
)

// Checksum accumulates a BLAKE3 digest over data written in pieces, e.g.
// one chunk at a time.
type Checksum struct {
	h *blake3.Hasher
}

func NewChecksum() *Checksum {
	return &Checksum{h: blake3.New()}
}

func (c *Checksum) Write(p []byte) (int, error) { return c.h.Write(p) }

// Hex returns the 32-byte digest hex encoded.
func (c *Checksum) Hex() string {
	return hex.EncodeToString(c.h.Sum(nil))
}

// ChecksumBytes is a convenience for one-shot hashing.
func ChecksumBytes(b []byte) string {
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Signer issues and verifies expiring MACs over object keys.
type Signer struct {
	key []byte
	now func() time.Time
}

func NewSigner(key []byte) (*Signer, error) {
	if len(key) > 64 {
		return nil, ErrKeyTooLong
	}
	return &Signer{key: key, now: time.Now}, nil
}

// Sign returns the unix expiry and hex MAC for key valid for ttl.
func (s *Signer) Sign(key string, ttl time.Duration) (expires int64, sig string, err error) {
	expires = s.now().Add(ttl).Unix()
	mac, err := s.mac(key, expires)
	if err != nil {
		return 0, "", err
	}
	return expires, hex.EncodeToString(mac), nil
}

// Verify checks sig for key and rejects links past their expiry.
func (s *Signer) Verify(key string, expires int64, sig string) error {
	if s.now().Unix() > expires {
		return ErrLinkExpired
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return ErrBadSignature
	}
	want, err := s.mac(key, expires)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(got, want) != 1 {
		return ErrBadSignature
	}
	return nil
}

func (s *Signer) mac(key string, expires int64) ([]byte, error) {
	h, err := blake2b.New256(s.key)
	if err != nil {
		return nil, fmt.Errorf("blake2b: %w", err)
	}
	h.Write([]byte(key))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(expires, 10)))
	return h.Sum(nil), nil
}
