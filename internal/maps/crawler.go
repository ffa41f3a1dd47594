// Package maps crawls map-search results for local businesses.
package maps

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/OliWebDevO/clients-scraper/internal/browser"
	"github.com/OliWebDevO/clients-scraper/internal/prospect"
)

// DefaultCategory is searched when the caller names none.
const DefaultCategory = "businesses"

// Phase names the crawl stage reported to the Observer.
type Phase string

// Crawl phases.
const (
	PhaseSearching  Phase = "searching"
	PhaseExtracting Phase = "extracting"
)

// Progress is one crawl progress report.
type Progress struct {
	Phase   Phase
	Current int
	Total   int
	Item    string
}

// Observer receives progress from the crawling goroutine.
type Observer func(Progress)

// Config tunes the crawl.
type Config struct {
	SearchURL     string
	MaxScrolls    int
	ScrollPixels  int
	ScrollPause   time.Duration
	FeedTimeout   time.Duration
	DetailTimeout time.Duration
	DetailSettle  time.Duration
	// LinkHeadroom multiplies MaxResults to size the link pool, since
	// dedup and the rating filter discard some places.
	LinkHeadroom int
}

// Request describes one crawl.
type Request struct {
	LocationQuery string
	Categories    []string
	MinRating     *float64
	MaxResults    int
	// Known holds prospect.BusinessKey values to skip.
	Known map[string]struct{}
}

// Result carries accepted businesses plus per-category failures.
type Result struct {
	Businesses []prospect.Business
	Errors     []string
}

// Crawler drives one browser session through search, scroll and extraction.
type Crawler struct {
	launcher browser.Launcher
	cfg      Config
	logger   *zap.Logger
}

// New builds a Crawler with defaults for unset Config fields.
func New(launcher browser.Launcher, cfg Config, logger *zap.Logger) *Crawler {
	if cfg.SearchURL == "" {
		cfg.SearchURL = "https://www.google.com/maps/search/"
	}
	if cfg.MaxScrolls <= 0 {
		cfg.MaxScrolls = 20
	}
	if cfg.ScrollPixels <= 0 {
		cfg.ScrollPixels = 2500
	}
	if cfg.FeedTimeout <= 0 {
		cfg.FeedTimeout = 10 * time.Second
	}
	if cfg.DetailTimeout <= 0 {
		cfg.DetailTimeout = 8 * time.Second
	}
	if cfg.LinkHeadroom <= 0 {
		cfg.LinkHeadroom = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{launcher: launcher, cfg: cfg, logger: logger}
}

type placeLink struct {
	href     string
	category string
}

type feedState struct {
	Links []string `json:"links"`
	End   bool     `json:"end"`
}

type placeDetails struct {
	Name     string `json:"name"`
	Rating   string `json:"rating"`
	Reviews  string `json:"reviews"`
	Category string `json:"category"`
	Address  string `json:"address"`
	Phone    string `json:"phone"`
	Website  string `json:"website"`
	URL      string `json:"url"`
}

// Crawl searches every category, then extracts the collected places in
// order. Only a failed browser launch is returned as an error; category
// failures are listed in Result.Errors.
func (c *Crawler) Crawl(ctx context.Context, req Request, observe Observer) (Result, error) {
	if observe == nil {
		observe = func(Progress) {}
	}
	session, err := c.launcher.Launch(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("launch browser: %w", err)
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			c.logger.Warn("browser session close failed", zap.Error(closeErr))
		}
	}()

	categories := normalizeCategories(req.Categories)
	target := req.MaxResults * c.cfg.LinkHeadroom

	var (
		result Result
		links  []placeLink
	)
	seenLinks := make(map[string]struct{})
	for i, category := range categories {
		if len(links) >= target || ctx.Err() != nil {
			break
		}
		observe(Progress{Phase: PhaseSearching, Current: i, Total: len(categories), Item: category})
		found, err := c.search(ctx, session, category, req.LocationQuery, target-len(links), seenLinks)
		if err != nil {
			c.logger.Warn("category search failed", zap.String("category", category), zap.Error(err))
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", category, err))
		}
		for _, href := range found {
			links = append(links, placeLink{href: href, category: category})
		}
		c.logger.Debug("category searched", zap.String("category", category), zap.Int("links", len(found)))
	}
	observe(Progress{Phase: PhaseSearching, Current: len(categories), Total: len(categories)})

	seen := make(map[string]struct{})
	for i, link := range links {
		if len(result.Businesses) >= req.MaxResults || ctx.Err() != nil {
			break
		}
		b, err := c.extract(ctx, session, link.href)
		if err != nil {
			c.logger.Debug("place extraction failed", zap.String("href", link.href), zap.Error(err))
			observe(Progress{Phase: PhaseExtracting, Current: i + 1, Total: len(links)})
			continue
		}
		if accepted := c.accept(&b, link, req, seen); accepted {
			result.Businesses = append(result.Businesses, b)
		}
		observe(Progress{Phase: PhaseExtracting, Current: i + 1, Total: len(links), Item: b.Name})
	}
	return result, nil
}

func (c *Crawler) accept(b *prospect.Business, link placeLink, req Request, seen map[string]struct{}) bool {
	if b.Name == "" {
		return false
	}
	key := b.Key()
	if _, known := req.Known[key]; known {
		return false
	}
	if _, dup := seen[key]; dup {
		return false
	}
	seen[key] = struct{}{}
	if req.MinRating != nil && b.Rating != nil && *b.Rating < *req.MinRating {
		return false
	}
	if b.Category == "" && link.category != DefaultCategory {
		b.Category = link.category
	}
	b.LocationQuery = req.LocationQuery
	return true
}

// search collects up to need new place links for one category.
func (c *Crawler) search(
	ctx context.Context,
	session browser.Session,
	category, location string,
	need int,
	seen map[string]struct{},
) ([]string, error) {
	query := fmt.Sprintf("%s near %s", category, location)
	if err := session.Navigate(ctx, c.cfg.SearchURL+url.QueryEscape(query)); err != nil {
		return nil, err
	}
	var clicked bool
	if err := session.Evaluate(ctx, consentScript, &clicked); err == nil && clicked {
		_ = browser.Sleep(ctx, c.cfg.ScrollPause)
	}
	if err := session.WaitFor(ctx, feedSelector, c.cfg.FeedTimeout); err != nil {
		c.logger.Debug("results feed not visible", zap.String("query", query), zap.Error(err))
	}

	var found []string
	stale := 0
	for scroll := 0; scroll < c.cfg.MaxScrolls; scroll++ {
		var state feedState
		if err := session.Evaluate(ctx, resultsScript, &state); err != nil {
			return found, fmt.Errorf("read results: %w", err)
		}
		fresh := 0
		for _, href := range state.Links {
			key := canonicalPlaceURL(href)
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			found = append(found, href)
			fresh++
		}
		if len(found) >= need || state.End {
			break
		}
		if fresh == 0 {
			stale++
			if stale >= 2 {
				break
			}
		} else {
			stale = 0
		}
		if err := session.Scroll(ctx, feedSelector, c.cfg.ScrollPixels); err != nil {
			return found, fmt.Errorf("scroll: %w", err)
		}
		if err := browser.Sleep(ctx, c.cfg.ScrollPause); err != nil {
			return found, err
		}
	}
	if len(found) > need {
		found = found[:need]
	}
	return found, nil
}

func (c *Crawler) extract(ctx context.Context, session browser.Session, href string) (prospect.Business, error) {
	if err := session.Navigate(ctx, href); err != nil {
		return prospect.Business{}, err
	}
	if err := session.WaitFor(ctx, detailSelector, c.cfg.DetailTimeout); err != nil {
		return prospect.Business{}, err
	}
	if err := browser.Sleep(ctx, c.cfg.DetailSettle); err != nil {
		return prospect.Business{}, err
	}
	var raw placeDetails
	if err := session.Evaluate(ctx, detailScript, &raw); err != nil {
		return prospect.Business{}, fmt.Errorf("read details: %w", err)
	}
	if strings.TrimSpace(raw.Name) == "" {
		return prospect.Business{}, errors.New("place has no name")
	}

	b := prospect.Business{
		Name:        collapse(raw.Name),
		Address:     collapse(raw.Address),
		Category:    collapse(raw.Category),
		Phone:       collapse(raw.Phone),
		Rating:      parseRating(raw.Rating),
		ReviewCount: parseReviews(raw.Reviews),
		MapsURL:     canonicalPlaceURL(firstNonEmpty(raw.URL, href)),
	}
	b.SetWebsite(raw.Website)
	return b, nil
}

func normalizeCategories(in []string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, c := range in {
		c = collapse(c)
		key := strings.ToLower(c)
		if c == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	if len(out) == 0 {
		return []string{DefaultCategory}
	}
	return out
}

// canonicalPlaceURL drops the query string, which only carries session
// and tracking state.
func canonicalPlaceURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)
	return u.String()
}

func parseRating(raw string) *float64 {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, ",", "."))
	if raw == "" {
		return nil
	}
	if fields := strings.Fields(raw); len(fields) > 0 {
		raw = fields[0]
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 || v > 5 {
		return nil
	}
	return &v
}

func parseReviews(raw string) *int {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return nil
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil {
		return nil
	}
	return &n
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
