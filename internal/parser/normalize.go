package parser

import (
	"strings"
	"unicode"
)

// dashVariants are unicode dashes that channels use interchangeably for
// entry ranges. All are unified to a plain hyphen before pattern matching.
var dashVariants = map[rune]bool{
	'‐': true, // hyphen
	'‑': true, // non-breaking hyphen
	'‒': true, // figure dash
	'–': true, // en dash
	'—': true, // em dash
	'―': true, // horizontal bar
	'−': true, // minus sign
}

// markerEmojis are the emoji characters the pattern set relies on as field
// markers. They survive normalization; all other symbols are dropped.
var markerEmojis = map[rune]bool{
	'✅': true, // take-profit marker
	'🎯': true, // take-profit marker
	'🛑': true, // stop-loss marker
	'❌': true, // stop-loss marker
}

// normalize prepares raw channel text for extraction: markup stripped,
// dash variants unified, non-essential punctuation removed, whitespace
// collapsed, everything uppercased.
func normalize(raw string) string {
	var sb strings.Builder
	sb.Grow(len(raw))
	for _, r := range raw {
		switch {
		case dashVariants[r]:
			sb.WriteRune('-')
		case markerEmojis[r]:
			sb.WriteRune(r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(unicode.ToUpper(r))
		case r == '.' || r == ':' || r == '-' || r == '/' || r == '@':
			sb.WriteRune(r)
		case unicode.IsSpace(r):
			sb.WriteRune(' ')
		default:
			// Markdown markup, stray punctuation, decorative emoji: replace
			// with a space so adjacent tokens do not merge.
			sb.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}
