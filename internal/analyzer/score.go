package analyzer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Weights of each check. They sum to 100.
const (
	WeightHTTPS         = 15
	WeightViewport      = 15
	WeightMobile        = 10
	WeightDeprecated    = 10
	WeightModernMeta    = 10
	WeightCopyright     = 10
	WeightInlineStyles  = 10
	WeightFavicon       = 5
	WeightAccessibility = 5
	WeightLoadTime      = 10
)

const (
	maxInlineStyles = 20
	slowLoad        = 3 * time.Second
	staleYears      = 2
)

var deprecatedTags = []string{"font", "center", "marquee", "blink", "frameset", "frame", "big", "strike", "tt"}

var copyrightYear = regexp.MustCompile(`(?i)(?:©|&copy;|\(c\)|copyright)\s*(?:[a-z.]+\s+)?(\d{4})(?:\s*[-–]\s*(\d{4}))?`)

// Page is the input to Score.
type Page struct {
	HTML string
	// HTTPS is true when the final page was served over TLS.
	HTTPS bool
	// FellBack is true when HTTPS failed and plain HTTP was used instead.
	FellBack bool
	LoadTime time.Duration
	// Now anchors the copyright freshness check.
	Now time.Time
}

// Check is one evaluated heuristic.
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Weight int    `json:"weight"`
}

// Breakdown is the outcome of scoring a page. Score is in [0, 100]; higher
// means the site is a stronger redesign candidate.
type Breakdown struct {
	URL         string   `json:"url"`
	Score       int      `json:"score"`
	Issues      []string `json:"issues"`
	Checks      []Check  `json:"checks"`
	SnapshotURI string   `json:"snapshot_uri,omitempty"`
}

type scorer struct {
	b Breakdown
}

func (s *scorer) check(name string, weight int, passed bool, issue string) {
	s.b.Checks = append(s.b.Checks, Check{Name: name, Passed: passed, Weight: weight})
	if passed {
		return
	}
	s.b.Score += weight
	s.b.Issues = append(s.b.Issues, issue)
}

// Score evaluates every check against p. It is a pure function of its input.
func Score(p Page) Breakdown {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.HTML))
	if err != nil {
		doc, _ = goquery.NewDocumentFromReader(strings.NewReader("<html></html>"))
	}
	now := p.Now
	if now.IsZero() {
		now = time.Now()
	}
	s := &scorer{b: Breakdown{Issues: []string{}}}

	httpsIssue := "Site is not served over HTTPS"
	if p.FellBack {
		httpsIssue = "HTTPS unavailable, site only reachable over plain HTTP"
	}
	s.check("https", WeightHTTPS, p.HTTPS && !p.FellBack, httpsIssue)

	viewport, hasViewport := metaContent(doc, "viewport")
	s.check("viewport", WeightViewport, hasViewport, "No viewport meta tag (not mobile-friendly)")

	s.check("mobile", WeightMobile, mobileOptimized(doc, viewport),
		"No responsive design signals (device-width viewport or media queries)")

	found := usedDeprecatedTags(doc)
	s.check("deprecated_tags", WeightDeprecated, len(found) == 0,
		fmt.Sprintf("Uses deprecated HTML tags: %s", strings.Join(found, ", ")))

	_, hasDescription := metaContent(doc, "description")
	hasOG := doc.Find("meta[property^='og:']").Length() > 0
	s.check("modern_meta", WeightModernMeta, hasDescription && hasOG,
		"Missing modern meta tags (description or Open Graph)")

	year, ok := latestCopyrightYear(doc)
	copyrightIssue := "No copyright year found"
	if ok {
		copyrightIssue = fmt.Sprintf("Outdated copyright year (%d)", year)
	}
	s.check("copyright", WeightCopyright, ok && year >= now.Year()-staleYears, copyrightIssue)

	inline := doc.Find("[style]").Length()
	s.check("inline_styles", WeightInlineStyles, inline <= maxInlineStyles,
		fmt.Sprintf("Heavy use of inline styles (%d elements)", inline))

	s.check("favicon", WeightFavicon, hasFavicon(doc), "No favicon")

	s.check("accessibility", WeightAccessibility, accessible(doc),
		"Accessibility gaps (missing lang attribute or image alt texts)")

	s.check("load_time", WeightLoadTime, p.LoadTime <= slowLoad,
		fmt.Sprintf("Slow load time (%.1fs)", p.LoadTime.Seconds()))

	if s.b.Score > 100 {
		s.b.Score = 100
	}
	return s.b
}

func metaContent(doc *goquery.Document, name string) (string, bool) {
	sel := doc.Find("meta[name]").FilterFunction(func(_ int, m *goquery.Selection) bool {
		v, _ := m.Attr("name")
		return strings.EqualFold(strings.TrimSpace(v), name)
	}).First()
	return sel.Attr("content")
}

func mobileOptimized(doc *goquery.Document, viewport string) bool {
	if strings.Contains(strings.ToLower(viewport), "device-width") {
		return true
	}
	if doc.Find("link[rel='stylesheet'][media]").FilterFunction(func(_ int, sel *goquery.Selection) bool {
		media, _ := sel.Attr("media")
		return strings.Contains(media, "width")
	}).Length() > 0 {
		return true
	}
	media := false
	doc.Find("style").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		media = strings.Contains(sel.Text(), "@media")
		return !media
	})
	return media
}

func usedDeprecatedTags(doc *goquery.Document) []string {
	var found []string
	for _, tag := range deprecatedTags {
		if doc.Find(tag).Length() > 0 {
			found = append(found, "<"+tag+">")
		}
	}
	return found
}

func latestCopyrightYear(doc *goquery.Document) (int, bool) {
	text := doc.Find("body").Text()
	best := 0
	for _, m := range copyrightYear.FindAllStringSubmatch(text, -1) {
		for _, group := range m[1:] {
			if y, err := strconv.Atoi(group); err == nil && y > best && y >= 1990 && y <= 2100 {
				best = y
			}
		}
	}
	return best, best > 0
}

func hasFavicon(doc *goquery.Document) bool {
	return doc.Find("link[rel]").FilterFunction(func(_ int, sel *goquery.Selection) bool {
		rel, _ := sel.Attr("rel")
		return strings.Contains(strings.ToLower(rel), "icon")
	}).Length() > 0
}

func accessible(doc *goquery.Document) bool {
	lang, _ := doc.Find("html").First().Attr("lang")
	if strings.TrimSpace(lang) == "" {
		return false
	}
	images := doc.Find("img")
	missing := images.FilterFunction(func(_ int, sel *goquery.Selection) bool {
		_, ok := sel.Attr("alt")
		return !ok
	}).Length()
	return missing*2 <= images.Length()
}
