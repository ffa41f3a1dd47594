package fetch

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

const noiseSelector = "nav, footer, header, script, style, noscript, svg, iframe, form, " +
	".cookie-banner, .cookie-consent, #onetrust-consent-sdk, .popup, .modal, .ad, .ads, .advertisement"

// GenericContentSelectors lists containers that usually hold a job
// description on pages without a known layout.
func GenericContentSelectors() []string {
	return []string{
		"[itemprop='description']",
		".job-description",
		"#job-description",
		".jobDescription",
		".job-details",
		".vacancy-description",
		".description",
		"article",
		"main",
		"[role='main']",
		"#content",
		".content",
	}
}

// ExtractText parses html and returns the cleaned text of the first
// selector that yields at least minLen characters. When none does and
// fallbackBody is set, the cleaned body text is returned. The boolean
// reports whether anything was found.
func ExtractText(html string, selectors []string, minLen int, fallbackBody bool) (string, bool, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", false, fmt.Errorf("parse html: %w", err)
	}
	doc.Find(noiseSelector).Remove()

	for _, selector := range selectors {
		sel := doc.Find(selector)
		if sel.Length() == 0 {
			continue
		}
		text := CleanText(sel.First().Text())
		if utf8.RuneCountInString(text) >= minLen {
			return text, true, nil
		}
	}
	if !fallbackBody {
		return "", false, nil
	}
	text := CleanText(doc.Find("body").Text())
	return text, text != "", nil
}

// CleanText collapses runs of blank space, keeping single paragraph breaks.
func CleanText(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n]))
}
