package archive

import (
	"fmt"
	"strings"
	"unicode"
)

// MaxNameRunes caps a sanitized base name.
const MaxNameRunes = 140

// DefaultName replaces names that sanitize to nothing.
const DefaultName = "Untitled"

// reservedNames are device names Windows refuses as file names.
var reservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

func isForbidden(r rune) bool {
	if r < 0x20 || r == 0x7f {
		return true
	}
	return strings.ContainsRune(`<>:"/\|?*`, r)
}

// SanitizeFilename turns a title into a base file name that is valid on
// Windows, macOS and Linux. The result has no extension.
func SanitizeFilename(title string) string {
	s := strings.Map(func(r rune) rune {
		if isForbidden(r) {
			return ' '
		}
		return r
	}, title)

	s = strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
	s = strings.TrimRight(s, ". ")
	if s == "" {
		s = DefaultName
	}
	if reservedNames[strings.ToUpper(s)] {
		s = "_" + s
	}

	if r := []rune(s); len(r) > MaxNameRunes {
		s = strings.TrimSpace(string(r[:MaxNameRunes]))
	}
	if s == "" {
		s = DefaultName
	}
	return s
}

// NameRegistry hands out unique file names within one archive. The first
// use of a base name gets "base.ext", later ones "base (n).ext" where n
// counts occurrences. Comparison ignores case so the names also stay
// distinct on case-insensitive file systems.
type NameRegistry struct {
	counts map[string]int
	taken  map[string]bool
}

// NewNameRegistry returns an empty registry.
func NewNameRegistry() *NameRegistry {
	return &NameRegistry{
		counts: make(map[string]int),
		taken:  make(map[string]bool),
	}
}

// Unique sanitizes title and returns a name not handed out before.
func (r *NameRegistry) Unique(title, ext string) string {
	base := SanitizeFilename(title)
	key := strings.ToLower(base)

	for {
		n := r.counts[key]
		r.counts[key] = n + 1

		name := base + "." + ext
		if n > 0 {
			name = fmt.Sprintf("%s (%d).%s", base, n+1, ext)
		}
		if !r.taken[strings.ToLower(name)] {
			r.taken[strings.ToLower(name)] = true
			return name
		}
	}
}
