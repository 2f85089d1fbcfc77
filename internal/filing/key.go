package filing

import (
	"path"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/dmitrijs2005/taxdesk/internal/timex"
)

// SanitizeName replaces every whitespace rune and path separator with an
// underscore, so a name always stays a single key segment.
func SanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '/' || r == '\\' {
			return '_'
		}
		return r
	}, name)
}

// StorageKey builds {uploaderID}/[{requestID}/]{epochMillis}_{name}.
// requestID is empty for uploads made before the request exists.
func StorageKey(uploaderID, requestID string, at time.Time, name string) string {
	file := strconv.FormatInt(timex.EpochMillis(at), 10) + "_" + SanitizeName(name)
	if requestID == "" {
		return uploaderID + "/" + file
	}
	return uploaderID + "/" + requestID + "/" + file
}

// CanonicalKey reports whether key is a plain relative object key: no
// empty, "." or ".." segments and no backslashes.
func CanonicalKey(key string) bool {
	if key == "" || strings.ContainsRune(key, '\\') {
		return false
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return false
		}
	}
	return true
}

// OwnsPath reports whether key sits under uploaderID's prefix. Keys that
// are not canonical never qualify, so "user-1/../user-2/x" is refused.
func OwnsPath(uploaderID, key string) bool {
	return uploaderID != "" && CanonicalKey(key) && strings.HasPrefix(key, uploaderID+"/")
}

// AcceptsType matches a file against accept patterns in the browser
// "accept" format: exact MIME types, "type/*" wildcards or ".ext" suffixes.
// An empty pattern list accepts everything.
func AcceptsType(patterns []string, name, mime string) bool {
	if len(patterns) == 0 {
		return true
	}
	ext := strings.ToLower(path.Ext(name))
	mime = strings.ToLower(mime)
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		switch {
		case p == "":
		case strings.HasPrefix(p, "."):
			if ext == p {
				return true
			}
		case strings.HasSuffix(p, "/*"):
			if mime != "" && strings.HasPrefix(mime, strings.TrimSuffix(p, "*")) {
				return true
			}
		default:
			if mime == p {
				return true
			}
		}
	}
	return false
}
