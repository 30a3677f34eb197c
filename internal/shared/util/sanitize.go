package util

import (
	"errors"
	"strings"
)

// SanitizeKeySegment makes an identifier safe to embed in an object storage key.
// Path separators and whitespace become underscores; traversal patterns are rejected.
func SanitizeKeySegment(name string) (string, error) {
	s := strings.TrimSpace(name)
	if s == "" || strings.Contains(s, "..") {
		return "", errors.New("invalid key segment")
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
	return s, nil
}
