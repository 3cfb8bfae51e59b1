package rendition

import (
	"crypto/sha1"
	"encoding/hex"
	"path"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const componentHashLen = 8

// Key identifies one rendition of one source in the cache.
// Two sources with the same base name in different directories get different keys.
type Key struct {
	// Dir is the slash-separated directory part of the folder, possibly empty.
	Dir string
	// Base is the sanitized source file name without extension.
	Base string
	// Resolution is the requested quality.
	Resolution Resolution
}

// NewKey derives a key for source, which is either relative to the media root
// (relative == true) or an absolute path outside it.
func NewKey(source string, relative bool, res Resolution) Key {
	source = filepath.ToSlash(source)
	dir := path.Dir(source)
	base := strings.TrimSuffix(path.Base(source), path.Ext(source))

	var parts []string
	if relative {
		if dir != "." && dir != "/" {
			for _, p := range strings.Split(strings.Trim(dir, "/"), "/") {
				if p == "" || p == "." {
					continue
				}
				parts = append(parts, component(p))
			}
		}
	} else {
		sum := sha1.Sum([]byte(dir))
		parts = append(parts, "ext-"+hex.EncodeToString(sum[:])[:10])
	}

	return Key{
		Dir:        strings.Join(parts, "/"),
		Base:       component(base),
		Resolution: res,
	}
}

// Folder is the slash-separated cache folder, e.g. "series/show_1080p".
func (k Key) Folder() string {
	name := k.Base + "_" + k.Resolution.Label
	if k.Dir == "" {
		return name
	}
	return k.Dir + "/" + name
}

// String returns Folder. Keys are compared by their folder.
func (k Key) String() string {
	return k.Folder()
}

// URLPrefix is the client-relative prefix in front of segment and playlist names,
// e.g. "hls/series/show_1080p/".
func (k Key) URLPrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return k.Folder() + "/"
	}
	return prefix + "/" + k.Folder() + "/"
}

// component sanitizes one path component. When sanitizing loses information
// ("Season 1" and "Season_1" both become "Season_1") a short hash of the
// NFC-normalised original is appended, so distinct names stay distinct.
func component(raw string) string {
	nfc := norm.NFC.String(raw)
	out := Sanitize(nfc)
	if out == nfc {
		return out
	}
	sum := sha1.Sum([]byte(nfc))
	return out + "-" + hex.EncodeToString(sum[:])[:componentHashLen]
}

// Sanitize makes one path component safe for use as a directory name.
// Letters and digits of any script are kept (after NFC normalisation, so
// decomposed names from macOS map to the same folder); everything else
// except '-' and '.' becomes '_'.
func Sanitize(name string) string {
	name = norm.NFC.String(strings.TrimSpace(name))
	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.Is(unicode.Mn, r), r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "_"
	}
	return out
}
