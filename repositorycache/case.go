package repositorycache

import (
	"strings"
	"unicode"
)

// toSnake converts Go identifiers and column names to snake_case. Anything
// that is not a letter or digit becomes a single separator, so reflected
// names like "*orderstore.DiningTable" still yield a clean namespace.
func toSnake(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(runes) + 4)

	pendingSep := false
	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			if i > 0 && b.Len() > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					pendingSep = true
				}
			}
			writeSnake(&b, unicode.ToLower(r), &pendingSep)
		case unicode.IsLower(r):
			writeSnake(&b, r, &pendingSep)
		case unicode.IsDigit(r):
			if i > 0 && b.Len() > 0 && !unicode.IsDigit(runes[i-1]) {
				pendingSep = true
			}
			writeSnake(&b, r, &pendingSep)
		default:
			if b.Len() > 0 {
				pendingSep = true
			}
		}
	}

	return b.String()
}

func writeSnake(b *strings.Builder, r rune, pendingSep *bool) {
	if *pendingSep && b.Len() > 0 {
		b.WriteByte('_')
	}
	*pendingSep = false
	b.WriteRune(r)
}
