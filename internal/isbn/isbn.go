// Package isbn normalizes, validates and compares book identifiers read from
// barcode scanners or typed by hand.
package isbn

import (
	"strings"

	"golang.org/x/text/width"
)

// Normalize folds full-width characters to ASCII, drops hyphens and spaces,
// and uppercases the ISBN-10 check character. It does not validate.
func Normalize(raw string) string {
	folded := width.Fold.String(strings.TrimSpace(raw))
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == 'x' || r == 'X':
			b.WriteByte('X')
		case r == '-' || r == ' ' || r == '\t':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Valid reports whether s is a well-formed ISBN-10 or ISBN-13 with a correct
// check digit. s should already be normalized.
func Valid(s string) bool {
	switch len(s) {
	case 10:
		return valid10(s)
	case 13:
		return valid13(s)
	default:
		return false
	}
}

func valid10(s string) bool {
	sum := 0
	for i := 0; i < 10; i++ {
		var d int
		switch c := s[i]; {
		case c >= '0' && c <= '9':
			d = int(c - '0')
		case c == 'X' && i == 9:
			d = 10
		default:
			return false
		}
		sum += d * (10 - i)
	}
	return sum%11 == 0
}

func valid13(s string) bool {
	sum := 0
	for i := 0; i < 13; i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return false
		}
		d := int(c - '0')
		if i%2 == 1 {
			d *= 3
		}
		sum += d
	}
	return sum%10 == 0
}

// To13 converts a valid ISBN-10 into its 978-prefixed ISBN-13 form. ISBN-13
// input is returned unchanged; anything else yields "".
func To13(s string) string {
	s = Normalize(s)
	switch {
	case len(s) == 13 && valid13(s):
		return s
	case len(s) == 10 && valid10(s):
	default:
		return ""
	}
	body := "978" + s[:9]
	sum := 0
	for i := 0; i < 12; i++ {
		d := int(body[i] - '0')
		if i%2 == 1 {
			d *= 3
		}
		sum += d
	}
	return body + string(rune('0'+(10-sum%10)%10))
}

// Match reports whether a and b identify the same book, treating an ISBN-10
// and its 978-prefixed ISBN-13 as equal.
func Match(a, b string) bool {
	a, b = Normalize(a), Normalize(b)
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	a13, b13 := To13(a), To13(b)
	return a13 != "" && a13 == b13
}
