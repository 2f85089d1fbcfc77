package blob

import (
	"context"
	"errors"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/taxdesk/internal/common"
	"github.com/dmitrijs2005/taxdesk/internal/cryptox"
	"github.com/dmitrijs2005/taxdesk/internal/filex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocal(t *testing.T) *LocalStore {
	t.Helper()
	signer, err := cryptox.NewSigner([]byte("test-secret"))
	require.NoError(t, err)
	s, err := NewLocalStore(t.TempDir(), "http://localhost:8080/", signer)
	require.NoError(t, err)
	return s
}

func readKey(t *testing.T, s *LocalStore, key string) []byte {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(key)))
	require.NoError(t, err)
	return b
}

func TestLocalStore_PutNonOverwrite(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "u1/1_a.pdf", []byte("first"), false))
	err := s.Put(ctx, "u1/1_a.pdf", []byte("second"), false)
	assert.ErrorIs(t, err, common.ErrAlreadyExists)
	assert.Equal(t, []byte("first"), readKey(t, s, "u1/1_a.pdf"))

	require.NoError(t, s.Put(ctx, "u1/1_a.pdf", []byte("third"), true))
	assert.Equal(t, []byte("third"), readKey(t, s, "u1/1_a.pdf"))

	entries, err := os.ReadDir(filepath.Join(s.root, tmpDir))
	require.NoError(t, err)
	assert.Empty(t, entries, "no temp files left behind")
}

func TestLocalStore_RejectsEscapingKeys(t *testing.T) {
	s := newLocal(t)
	for _, k := range []string{"../x", "/abs", tmpDir + "/x"} {
		assert.Error(t, s.Put(context.Background(), k, []byte("x"), true), k)
	}
}

func TestLocalStore_TraversalKeysNeverTouchOtherFiles(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "victim/1_tax.pdf", []byte("secret"), false))

	for _, k := range []string{"user-1/../victim/1_tax.pdf", "user-1/./../victim/1_tax.pdf", "user-1//x"} {
		assert.ErrorIs(t, s.Put(ctx, k, []byte("evil"), true), filex.ErrEscapesRoot, k)

		_, err := s.BeginChunked(ctx, k, 4)
		assert.ErrorIs(t, err, filex.ErrEscapesRoot, k)

		var re *RemoveError
		require.ErrorAs(t, s.Remove(ctx, k), &re, k)
		assert.True(t, re.FailedKey(k))
	}

	assert.Equal(t, []byte("secret"), readKey(t, s, "victim/1_tax.pdf"))
}

func TestLocalStore_CompleteRetriesAfterFailedLink(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	orig := linkFile
	t.Cleanup(func() { linkFile = orig })
	fails := 1
	linkFile = func(oldname, newname string) error {
		if fails > 0 {
			fails--
			return errors.New("disk hiccup")
		}
		return orig(oldname, newname)
	}

	w, err := s.BeginChunked(ctx, "u1/r1/7_big.zip", 6)
	require.NoError(t, err)
	require.NoError(t, w.WriteChunk(ctx, 0, []byte("abc")))
	require.NoError(t, w.WriteChunk(ctx, 1, []byte("def")))

	require.Error(t, w.Complete(ctx))
	ok, err := s.Exists(ctx, "u1/r1/7_big.zip")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, w.Complete(ctx))
	assert.Equal(t, []byte("abcdef"), readKey(t, s, "u1/r1/7_big.zip"))

	entries, err := os.ReadDir(filepath.Join(s.root, tmpDir))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocalStore_CompleteOntoExistingKeyCloses(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	w, err := s.BeginChunked(ctx, "u1/r1/8_a.pdf", 3)
	require.NoError(t, err)
	require.NoError(t, w.WriteChunk(ctx, 0, []byte("new")))
	require.NoError(t, s.Put(ctx, "u1/r1/8_a.pdf", []byte("old"), false))

	assert.ErrorIs(t, w.Complete(ctx), common.ErrAlreadyExists)
	assert.ErrorIs(t, w.Complete(ctx), ErrSessionClosed)
	assert.Equal(t, []byte("old"), readKey(t, s, "u1/r1/8_a.pdf"))
}

func TestLocalStore_ChunkSession(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	w, err := s.BeginChunked(ctx, "u1/r1/5_big.zip", 9)
	require.NoError(t, err)

	require.NoError(t, w.WriteChunk(ctx, 0, []byte("abc")))
	require.NoError(t, w.WriteChunk(ctx, 0, []byte("abc")), "repeat of last chunk is a no-op")
	require.NoError(t, w.WriteChunk(ctx, 1, []byte("def")))
	assert.ErrorIs(t, w.WriteChunk(ctx, 3, []byte("x")), ErrOutOfOrder)
	require.NoError(t, w.WriteChunk(ctx, 2, []byte("ghi")))

	ok, err := s.Exists(ctx, "u1/r1/5_big.zip")
	require.NoError(t, err)
	assert.False(t, ok, "not visible before Complete")

	require.NoError(t, w.Complete(ctx))
	require.NoError(t, w.Complete(ctx))
	assert.Equal(t, []byte("abcdefghi"), readKey(t, s, "u1/r1/5_big.zip"))
	assert.ErrorIs(t, w.WriteChunk(ctx, 3, []byte("x")), ErrSessionClosed)

	_, err = s.BeginChunked(ctx, "u1/r1/5_big.zip", 9)
	assert.ErrorIs(t, err, common.ErrAlreadyExists)
}

func TestLocalStore_AbortDiscards(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	w, err := s.BeginChunked(ctx, "u1/x", 3)
	require.NoError(t, err)
	require.NoError(t, w.WriteChunk(ctx, 0, []byte("abc")))
	require.NoError(t, w.Abort(ctx))

	ok, err := s.Exists(ctx, "u1/x")
	require.NoError(t, err)
	assert.False(t, ok)
	entries, _ := os.ReadDir(filepath.Join(s.root, tmpDir))
	assert.Empty(t, entries)
}

func TestLocalStore_RemoveIsIdempotent(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "u1/a", []byte("a"), false))

	require.NoError(t, s.Remove(ctx, "u1/a", "u1/missing"))
	ok, _ := s.Exists(ctx, "u1/a")
	assert.False(t, ok)

	err := s.Remove(ctx, "../escape")
	var re *RemoveError
	require.ErrorAs(t, err, &re)
	assert.True(t, re.FailedKey("../escape"))
}

func TestLocalStore_SignedURLRoundTrip(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "u1/r1/1_my file.pdf", []byte("pdf"), false))

	raw, err := s.SignedURL(ctx, "u1/r1/1_my file.pdf", time.Hour)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, "http://localhost:8080/v1/local-blobs/u1/r1/1_my%20file.pdf?"), raw)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	key := strings.TrimPrefix(u.Path, "/v1/local-blobs/")
	exp, err := strconv.ParseInt(u.Query().Get("expires"), 10, 64)
	require.NoError(t, err)

	f, err := s.Open(key, exp, u.Query().Get("sig"))
	require.NoError(t, err)
	defer f.Close()
	b, _ := io.ReadAll(f)
	assert.Equal(t, []byte("pdf"), b)

	_, err = s.Open("u1/r1/other.pdf", exp, u.Query().Get("sig"))
	assert.ErrorIs(t, err, cryptox.ErrBadSignature)
}

func TestLocalStore_OpenMissing(t *testing.T) {
	s := newLocal(t)
	exp, sig, err := s.signer.Sign("u1/gone", time.Minute)
	require.NoError(t, err)

	_, err = s.Open("u1/gone", exp, sig)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}
