package validators

import (
	"strings"
	"unicode"
)

// CleanText trims s, drops control characters, folds whitespace runs into
// one space and caps the result at maxRunes runes (no cap when maxRunes <= 0).
func CleanText(s string, maxRunes int) string {
	var b strings.Builder
	b.Grow(len(s))
	runes, pendingSpace := 0, false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			pendingSpace = b.Len() > 0
			continue
		case unicode.IsControl(r):
			continue
		}
		if maxRunes > 0 && runes+boolInt(pendingSpace) >= maxRunes {
			break
		}
		if pendingSpace {
			b.WriteByte(' ')
			runes++
			pendingSpace = false
		}
		b.WriteRune(r)
		runes++
	}
	return b.String()
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
