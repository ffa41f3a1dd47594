package platform

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// cardSpec names the selectors used to read one result card. Empty
// selectors are skipped. Attribute fields read an attribute instead of text.
type cardSpec struct {
	card       string
	title      string
	titleAttr  string
	link       string
	company    string
	location   string
	salary     string
	posted     string
	postedAttr string
}

type draft struct {
	title    string
	href     string
	company  string
	location string
	salary   string
	posted   string
}

// parseCards reads every card in doc. Relative links resolve against base.
func parseCards(doc *goquery.Document, base *url.URL, spec cardSpec) []draft {
	var out []draft
	doc.Find(spec.card).Each(func(_ int, card *goquery.Selection) {
		d := draft{
			title:    readField(card, spec.title, spec.titleAttr),
			company:  readField(card, spec.company, ""),
			location: readField(card, spec.location, ""),
			salary:   readField(card, spec.salary, ""),
			posted:   readField(card, spec.posted, spec.postedAttr),
		}
		link := card
		if spec.link != "" {
			link = card.Find(spec.link).First()
		}
		if href, ok := link.Attr("href"); ok {
			d.href = absoluteURL(base, href)
		}
		out = append(out, d)
	})
	return out
}

func readField(card *goquery.Selection, selector, attr string) string {
	if selector == "" {
		return ""
	}
	sel := card.Find(selector).First()
	if sel.Length() == 0 {
		return ""
	}
	if attr != "" {
		if v, ok := sel.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return collapse(v)
		}
	}
	return collapse(sel.Text())
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func absoluteURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "javascript:") || href == "#" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

// canonicalize normalizes scheme, host and fragment, then keeps only the
// query parameters named in keep.
func canonicalize(raw string, keep ...string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.User = nil

	q := u.Query()
	kept := url.Values{}
	for _, name := range keep {
		if v := q.Get(name); v != "" {
			kept.Set(name, v)
		}
	}
	u.RawQuery = kept.Encode()
	if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	return u.String()
}

var relativeAge = regexp.MustCompile(
	`(\d+)\+?\s*(minutes?|mins?|heures?|hours?|h|jours?|days?|d|semaines?|weeks?|mois|months?)\b`)

var absoluteLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"02/01/2006",
	"02-01-2006",
	"02.01.2006",
}

// parsePosted reads a publication date in the shapes the boards use:
// ISO timestamps, day-first dates, and relative EN/FR phrases.
func parsePosted(raw string, now time.Time) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range absoluteLayouts {
		if t, err := time.ParseInLocation(layout, raw, now.Location()); err == nil {
			return &t
		}
	}

	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "aujourd"), strings.Contains(lower, "today"),
		strings.Contains(lower, "just posted"), strings.Contains(lower, "instant"),
		strings.Contains(lower, "nouveau"):
		t := now
		return &t
	case strings.Contains(lower, "avant-hier"):
		t := now.AddDate(0, 0, -2)
		return &t
	case strings.Contains(lower, "hier"), strings.Contains(lower, "yesterday"):
		t := now.AddDate(0, 0, -1)
		return &t
	}

	m := relativeAge.FindStringSubmatch(lower)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	var t time.Time
	switch unit := m[2]; {
	case strings.HasPrefix(unit, "min"):
		t = now.Add(-time.Duration(n) * time.Minute)
	case unit == "h" || strings.HasPrefix(unit, "heure") || strings.HasPrefix(unit, "hour"):
		t = now.Add(-time.Duration(n) * time.Hour)
	case unit == "d" || strings.HasPrefix(unit, "jour") || strings.HasPrefix(unit, "day"):
		t = now.AddDate(0, 0, -n)
	case strings.HasPrefix(unit, "semaine") || strings.HasPrefix(unit, "week"):
		t = now.AddDate(0, 0, -7*n)
	default:
		t = now.AddDate(0, -n, 0)
	}
	return &t
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
