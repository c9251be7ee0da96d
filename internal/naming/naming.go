// Package naming derives on-disk names for uploaded files.
package naming

import (
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// TimestampLayout is the zero-padded YYYYMMDDhhmmss layout used for suffixes.
const TimestampLayout = "20060102150405"

// Timestamp formats t as a name suffix.
func Timestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// Policy maps client filenames to stored names using its Suffixer.
type Policy struct {
	suffixer Suffixer
}

// NewPolicy creates a policy drawing suffixes from s.
func NewPolicy(s Suffixer) *Policy {
	return &Policy{suffixer: s}
}

// Name returns the stored name for originalName.
func (p *Policy) Name(originalName string) string {
	return StoredName(originalName, p.suffixer.Suffix())
}

// StoredName builds base + "_" + suffix + extension from originalName.
// The name is re-interpreted with Reinterpret before it is split. Only a dot
// in the last path segment starts the extension.
// Path separators are left alone; the store rejects names that escape its root.
func StoredName(originalName, suffix string) string {
	name := Reinterpret(originalName)

	base, ext := name, ""
	if i := strings.LastIndexByte(name, '.'); i >= 0 && !strings.ContainsAny(name[i:], `/\`) {
		base, ext = name[:i], name[i:]
	}

	return base + "_" + suffix + ext
}

// Reinterpret repairs filenames whose UTF-8 bytes were transported as Latin-1.
//
// Browsers commonly send UTF-8 filenames that an intermediary decodes as
// Latin-1, so "报告.pdf" arrives as "æ\u008a¥å\u0091\u008a.pdf". When every
// rune fits in Latin-1 and the resulting bytes are valid UTF-8, the UTF-8
// reading is returned. Raw bytes that are not UTF-8 at all are decoded as
// Latin-1. Anything else is returned unchanged.
func Reinterpret(name string) string {
	if !utf8.ValidString(name) {
		decoded, err := charmap.ISO8859_1.NewDecoder().String(name)
		if err != nil {
			return name
		}
		return decoded
	}

	raw, err := charmap.ISO8859_1.NewEncoder().String(name)
	if err != nil {
		// A rune above U+00FF: the name is already proper UTF-8 text.
		return name
	}
	if raw == name || !utf8.ValidString(raw) {
		return name
	}
	return raw
}
