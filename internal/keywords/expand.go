// Package keywords expands seed search terms into their EN/FR variants and
// matches expanded keywords against job titles.
package keywords

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Input limits enforced before any network activity.
const (
	MaxKeywords      = 20
	MaxKeywordLength = 100
)

var (
	// ErrNoKeywords is returned when every seed is blank.
	ErrNoKeywords = errors.New("at least one keyword is required")
	// ErrTooManyKeywords is returned when more than MaxKeywords seeds are given.
	ErrTooManyKeywords = errors.New("too many keywords")
	// ErrKeywordTooLong is returned when a seed exceeds MaxKeywordLength runes.
	ErrKeywordTooLong = errors.New("keyword too long")
)

// synonymGroups holds job-title variants that are interchangeable for search.
var synonymGroups = [][]string{
	{"web developer", "développeur web", "web dev", "web developper", "développeur site web", "web development"},
	{"frontend developer", "front-end developer", "front end developer", "développeur frontend", "développeur front-end", "frontend dev", "front dev"},
	{"backend developer", "back-end developer", "back end developer", "développeur backend", "développeur back-end", "backend dev"},
	{"full stack developer", "fullstack developer", "full-stack developer", "développeur full stack", "développeur fullstack", "fullstack dev"},
	{"web designer", "webdesigner", "designer web", "concepteur web", "web design"},
	{"ux designer", "ui designer", "ui/ux designer", "ux/ui designer", "designer ux", "designer ui"},
	{"wordpress developer", "développeur wordpress", "wordpress dev", "intégrateur wordpress"},
	{"javascript developer", "js developer", "développeur javascript", "développeur js"},
	{"php developer", "développeur php", "php dev"},
	{"react developer", "développeur react", "react dev", "reactjs developer"},
	{"mobile developer", "développeur mobile", "app developer", "développeur d'applications"},
	{"webmaster", "web master", "gestionnaire de site web"},
	{"software developer", "développeur logiciel", "software engineer", "ingénieur logiciel"},
	{"integrator", "intégrateur web", "web integrator", "html integrator"},
	{"digital marketing", "marketing digital", "marketing numérique"},
	{"seo specialist", "spécialiste seo", "consultant seo", "seo consultant"},
}

// groupIndex maps a folded keyword onto its synonym group.
var groupIndex = buildGroupIndex()

func buildGroupIndex() map[string]int {
	idx := make(map[string]int)
	for i, group := range synonymGroups {
		for _, member := range group {
			idx[Fold(member)] = i
		}
	}
	return idx
}

// Validate rejects keyword lists that are empty, too long, or contain
// oversized entries.
func Validate(seeds []string) error {
	if len(seeds) > MaxKeywords {
		return fmt.Errorf("%w: %d given, at most %d allowed", ErrTooManyKeywords, len(seeds), MaxKeywords)
	}
	nonBlank := 0
	for _, seed := range seeds {
		trimmed := strings.TrimSpace(seed)
		if utf8.RuneCountInString(trimmed) > MaxKeywordLength {
			return fmt.Errorf("%w: %.20q… exceeds %d characters", ErrKeywordTooLong, trimmed, MaxKeywordLength)
		}
		if trimmed != "" {
			nonBlank++
		}
	}
	if nonBlank == 0 {
		return ErrNoKeywords
	}
	return nil
}

// Expand returns the deduplicated union of each seed and, when the seed
// belongs to a synonym group, every member of that group. Expand is
// idempotent: Expand(Expand(x)) yields the same set as Expand(x). Input
// limits are not applied here; callers check raw seeds with Validate.
func Expand(seeds []string) []string {
	seen := mapset.NewThreadUnsafeSet[string]()
	out := make([]string, 0, len(seeds))
	add := func(kw string) {
		key := Fold(kw)
		if key == "" || seen.Contains(key) {
			return
		}
		seen.Add(key)
		out = append(out, kw)
	}
	for _, seed := range seeds {
		seed = strings.Join(strings.Fields(seed), " ")
		if seed == "" {
			continue
		}
		if group, ok := groupIndex[Fold(seed)]; ok {
			for _, member := range synonymGroups[group] {
				add(member)
			}
			continue
		}
		add(seed)
	}
	return out
}

// Fold lowercases, strips diacritics and collapses whitespace so EN/FR
// spellings compare equal ("Développeur" == "developpeur").
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.Join(strings.Fields(folded), " "))
}
