package keywords

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// minSignificantWord is the shortest word that counts as a partial match.
const minSignificantWord = 4

// Match returns the keywords that match title. A keyword matches when it
// appears in the title verbatim (case and accent insensitive) or when any of
// its words of at least four characters does. When nothing matches and seed
// is non-empty, seed is returned: the platform already ranked the result for
// that search term.
func Match(title string, expanded []string, seed string) []string {
	folded := Fold(title)
	var matched []string
	for _, kw := range expanded {
		if matches(folded, Fold(kw)) {
			matched = append(matched, kw)
		}
	}
	if len(matched) == 0 && strings.TrimSpace(seed) != "" {
		return []string{seed}
	}
	return matched
}

func matches(foldedTitle, foldedKeyword string) bool {
	if foldedKeyword == "" {
		return false
	}
	if strings.Contains(foldedTitle, foldedKeyword) {
		return true
	}
	for _, word := range words(foldedKeyword) {
		if utf8.RuneCountInString(word) >= minSignificantWord && strings.Contains(foldedTitle, word) {
			return true
		}
	}
	return false
}

func words(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
