package pipeline

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/OliWebDevO/clients-scraper/internal/maps"
	"github.com/OliWebDevO/clients-scraper/internal/progress"
	"github.com/OliWebDevO/clients-scraper/internal/prospect"
	"github.com/OliWebDevO/clients-scraper/internal/store"
)

// BusinessesResult is the outcome of a business discovery run.
type BusinessesResult struct {
	RunID      uuid.UUID           `json:"run_id"`
	Businesses []prospect.Business `json:"businesses"`
	// Errors lists per-category failures of a run that still completed.
	Errors []string `json:"errors,omitempty"`
}

// DiscoverBusinesses crawls map-search results around cfg.LocationQuery,
// scores the websites of what it finds and keeps the businesses worth
// pitching, best prospects first. emit, which may be nil, receives this
// run's events in addition to the controller's emitter.
func (c *Controller) DiscoverBusinesses(ctx context.Context, cfg prospect.BusinessSearchConfig, emit progress.Emitter) (BusinessesResult, error) {
	r, err := c.startRun(store.KindBusinesses, progress.BusinessSpans, emit)
	if err != nil {
		return BusinessesResult{}, err
	}
	result := BusinessesResult{RunID: r.id}

	cfg, err = c.prepareBusinesses(cfg)
	if err != nil {
		return result, r.fail(err)
	}
	if c.deps.Crawler == nil {
		return result, r.fail(errors.New("no business crawler configured"))
	}

	ctx, cancel := c.withBudget(ctx)
	defer cancel()

	r.tracker.Report(progress.PhaseInit, 0, 0, "Preparing business search", "")
	r.logger.Info("business discovery started",
		zap.String("location", cfg.LocationQuery),
		zap.Strings("categories", cfg.Categories),
		zap.Int("max_results", cfg.MaxResults))

	categories := make([]string, 0, len(cfg.Categories))
	for _, category := range cfg.Categories {
		key := string(store.KindBusinesses) + "/" + strings.ToLower(category)
		if c.deps.Gate != nil && !c.deps.Gate.Allow(ctx, key) {
			r.recordError(fmt.Sprintf("%s: %v", category, ErrRateLimited))
			continue
		}
		categories = append(categories, category)
	}
	if len(categories) == 0 {
		return result, r.fail(ErrRateLimited)
	}

	crawled, err := c.deps.Crawler.Crawl(ctx, maps.Request{
		LocationQuery: cfg.LocationQuery,
		Categories:    categories,
		MinRating:     cfg.MinRating,
		MaxResults:    cfg.MaxResults,
		Known:         c.knownBusinesses(ctx, r, cfg.ExcludeExisting),
	}, func(p maps.Progress) {
		phase := progress.PhaseSearching
		message := fmt.Sprintf("Found %d places", p.Current)
		if p.Phase == maps.PhaseExtracting {
			phase = progress.PhaseExtracting
			message = fmt.Sprintf("Read %d of %d places", p.Current, p.Total)
		}
		r.tracker.Report(phase, p.Current, p.Total, message, p.Item)
	})
	if err != nil {
		return result, r.fail(fmt.Errorf("crawl businesses: %w", err))
	}
	for _, msg := range crawled.Errors {
		r.recordError(msg)
	}

	businesses := crawled.Businesses
	c.scoreWebsites(ctx, r, businesses)
	businesses = c.keepProspects(businesses)
	SortBusinesses(businesses)
	if len(businesses) > cfg.MaxResults {
		businesses = businesses[:cfg.MaxResults]
	}

	if c.deps.Prospects != nil {
		saveCtx, cancelSave := persistContext(ctx)
		saveInBatches(saveCtx, r, businesses, c.cfg.PersistBatch, c.deps.Prospects.UpsertBusinesses)
		cancelSave()
	}

	result.Businesses = businesses
	result.Errors = r.errs
	r.tracker.Complete(len(businesses), r.errs, fmt.Sprintf("Found %d prospects", len(businesses)))
	r.logger.Info("business discovery finished",
		zap.Int("crawled", len(crawled.Businesses)),
		zap.Int("items_found", len(businesses)),
		zap.Int("errors", len(r.errs)))
	c.publish(context.WithoutCancel(ctx), r, len(businesses))
	return result, nil
}

func (c *Controller) prepareBusinesses(cfg prospect.BusinessSearchConfig) (prospect.BusinessSearchConfig, error) {
	cfg.LocationQuery = strings.TrimSpace(cfg.LocationQuery)
	categories := make([]string, 0, len(cfg.Categories))
	seen := mapset.NewThreadUnsafeSet[string]()
	for _, category := range cfg.Categories {
		category = strings.Join(strings.Fields(category), " ")
		if category == "" || !seen.Add(strings.ToLower(category)) {
			continue
		}
		categories = append(categories, category)
	}
	if len(categories) == 0 {
		categories = []string{maps.DefaultCategory}
	}
	cfg.Categories = categories
	if cfg.MaxResults == 0 {
		cfg.MaxResults = c.cfg.DefaultBusinessResults
	}
	if err := c.validate(cfg); err != nil {
		return cfg, structError(err)
	}
	return cfg, nil
}

// knownBusinesses merges caller-supplied exclusions with stored businesses.
func (c *Controller) knownBusinesses(ctx context.Context, r *run, exclude []prospect.BusinessRef) map[string]struct{} {
	known := make(map[string]struct{}, len(exclude))
	for _, ref := range exclude {
		known[prospect.BusinessKey(ref.Name, ref.Address)] = struct{}{}
	}
	if c.deps.Prospects == nil {
		return known
	}
	keys, err := c.deps.Prospects.ExistingBusinessKeys(ctx)
	if err != nil {
		r.recordError(fmt.Sprintf("load existing businesses: %v", err))
		return known
	}
	for _, key := range keys {
		known[key] = struct{}{}
	}
	return known
}

// scoreWebsites analyzes every business website and applies the results in
// place. Sites that could not be assessed keep a nil score.
func (c *Controller) scoreWebsites(ctx context.Context, r *run, businesses []prospect.Business) {
	if c.deps.Analyzer == nil {
		return
	}
	var urls []string
	for _, b := range businesses {
		if b.HasWebsite {
			urls = append(urls, b.Website())
		}
	}
	r.tracker.Report(progress.PhaseAnalyzing, 0, len(urls), "Analyzing websites", "")
	if len(urls) == 0 {
		return
	}
	results := c.deps.Analyzer.AnalyzeAll(ctx, urls, func(done, total int) {
		r.tracker.Report(progress.PhaseAnalyzing, done, total, fmt.Sprintf("Analyzed %d of %d websites", done, total), "")
	})
	for i := range businesses {
		b := &businesses[i]
		if !b.HasWebsite {
			continue
		}
		breakdown := results[b.Website()]
		if breakdown == nil {
			continue
		}
		score := breakdown.Score
		b.WebsiteScore = &score
		b.WebsiteIssues = append([]string(nil), breakdown.Issues...)
		b.SnapshotURI = breakdown.SnapshotURI
	}
}

// keepProspects drops businesses whose website scored as already good.
// Unassessed websites stay.
func (c *Controller) keepProspects(businesses []prospect.Business) []prospect.Business {
	out := businesses[:0]
	for _, b := range businesses {
		if b.HasWebsite && b.WebsiteScore != nil && *b.WebsiteScore < c.cfg.GoodThreshold {
			continue
		}
		out = append(out, b)
	}
	return out
}

// SortBusinesses orders businesses best prospect first: no website before a
// website; without one, more reviews first; with one, higher score first and
// unassessed last, ties broken by reviews.
func SortBusinesses(businesses []prospect.Business) {
	slices.SortStableFunc(businesses, compareBusinesses)
}

func compareBusinesses(a, b prospect.Business) int {
	if a.HasWebsite != b.HasWebsite {
		if !a.HasWebsite {
			return -1
		}
		return 1
	}
	if a.HasWebsite {
		switch {
		case a.WebsiteScore != nil && b.WebsiteScore == nil:
			return -1
		case a.WebsiteScore == nil && b.WebsiteScore != nil:
			return 1
		case a.WebsiteScore != nil && *a.WebsiteScore != *b.WebsiteScore:
			return cmp.Compare(*b.WebsiteScore, *a.WebsiteScore)
		}
	}
	return cmp.Compare(b.Reviews(), a.Reviews())
}
