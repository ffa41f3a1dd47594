package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/OliWebDevO/clients-scraper/internal/keywords"
	"github.com/OliWebDevO/clients-scraper/internal/platform"
	"github.com/OliWebDevO/clients-scraper/internal/progress"
	"github.com/OliWebDevO/clients-scraper/internal/prospect"
	"github.com/OliWebDevO/clients-scraper/internal/store"
)

// JobsResult is the outcome of a job discovery run.
type JobsResult struct {
	RunID uuid.UUID             `json:"run_id"`
	Jobs  []prospect.JobPosting `json:"jobs"`
	// Errors lists per-source failures of a run that still completed.
	Errors []string `json:"errors,omitempty"`
}

type jobSource struct {
	id      prospect.Platform
	adapter platform.Adapter
	blocked bool
}

// DiscoverJobs searches the configured platforms for postings matching the
// expanded keywords. emit, which may be nil, receives this run's events in
// addition to the controller's emitter. A returned error means the run
// produced no results; its terminal error event has already been emitted.
func (c *Controller) DiscoverJobs(ctx context.Context, cfg prospect.JobSearchConfig, emit progress.Emitter) (JobsResult, error) {
	r, err := c.startRun(store.KindJobs, progress.JobSpans, emit)
	if err != nil {
		return JobsResult{}, err
	}
	result := JobsResult{RunID: r.id}

	cfg, expanded, err := c.prepareJobs(cfg)
	if err != nil {
		return result, r.fail(err)
	}
	if c.deps.Adapters == nil {
		return result, r.fail(errors.New("no job adapters configured"))
	}

	ctx, cancel := c.withBudget(ctx)
	defer cancel()

	r.tracker.Report(progress.PhaseInit, 0, len(cfg.Platforms), "Preparing job search", "")
	r.logger.Info("job discovery started",
		zap.Strings("platforms", platformNames(cfg.Platforms)),
		zap.Int("keywords", len(expanded)),
		zap.Int("max_results", cfg.MaxResults))

	known := c.seedJobURLs(ctx, r)

	sources := make([]*jobSource, 0, len(cfg.Platforms))
	for _, id := range cfg.Platforms {
		adapter, err := c.deps.Adapters.Resolve(id)
		if err != nil {
			r.recordError(fmt.Sprintf("%s: %v", id, err))
			continue
		}
		if keeper, ok := adapter.(platform.SessionKeeper); ok {
			keeper.KeepAlive(true)
		}
		sources = append(sources, &jobSource{id: id, adapter: adapter})
	}
	defer releaseSessions(r, sources)

	accepted, err := c.collectJobs(ctx, r, cfg, expanded, sources, known)
	// Browser slots are shared with concurrent runs; give them back before
	// the slow enrichment and saving phases.
	releaseSessions(r, sources)
	if err != nil {
		return result, r.fail(err)
	}

	if c.deps.Enricher != nil {
		pending := 0
		for _, job := range accepted {
			if !job.HasDescription() {
				pending++
			}
		}
		r.tracker.Report(progress.PhaseDescriptions, 0, pending, "Fetching job descriptions", "")
		enriched := c.deps.Enricher.Enrich(ctx, accepted, func(done, total int) {
			r.tracker.Report(progress.PhaseDescriptions, done, total, fmt.Sprintf("Fetched %d of %d descriptions", done, total), "")
		})
		r.logger.Debug("descriptions fetched", zap.Int("enriched", enriched), zap.Int("pending", pending))
	}

	if c.deps.Prospects != nil {
		saveCtx, cancelSave := persistContext(ctx)
		saveInBatches(saveCtx, r, accepted, c.cfg.PersistBatch, c.deps.Prospects.UpsertJobs)
		cancelSave()
	}

	result.Jobs = accepted
	result.Errors = r.errs
	r.tracker.Complete(len(accepted), r.errs, fmt.Sprintf("Found %d new job postings", len(accepted)))
	r.logger.Info("job discovery finished", zap.Int("items_found", len(accepted)), zap.Int("errors", len(r.errs)))
	c.publish(context.WithoutCancel(ctx), r, len(accepted))
	return result, nil
}

// prepareJobs validates cfg before any I/O and returns it normalized along
// with the expanded keyword list.
func (c *Controller) prepareJobs(cfg prospect.JobSearchConfig) (prospect.JobSearchConfig, []string, error) {
	if len(cfg.Platforms) == 0 {
		return cfg, nil, invalid("platforms", ErrNoPlatforms)
	}
	platforms := make([]prospect.Platform, 0, len(cfg.Platforms))
	seen := mapset.NewThreadUnsafeSet[prospect.Platform]()
	for _, raw := range cfg.Platforms {
		p, ok := prospect.ParsePlatform(string(raw))
		if !ok {
			return cfg, nil, invalid("platforms", fmt.Errorf("unknown platform %q", raw))
		}
		if seen.Add(p) {
			platforms = append(platforms, p)
		}
	}
	cfg.Platforms = platforms
	cfg.Location = strings.TrimSpace(cfg.Location)
	if cfg.MaxResults == 0 {
		cfg.MaxResults = c.cfg.DefaultJobResults
	}
	if err := c.validate(cfg); err != nil {
		return cfg, nil, structError(err)
	}
	if err := keywords.Validate(cfg.Keywords); err != nil {
		return cfg, nil, invalid("keywords", err)
	}
	return cfg, keywords.Expand(cfg.Keywords), nil
}

// releaseSessions closes kept browser sessions. Closing twice is harmless.
func releaseSessions(r *run, sources []*jobSource) {
	for _, src := range sources {
		keeper, ok := src.adapter.(platform.SessionKeeper)
		if !ok {
			continue
		}
		keeper.KeepAlive(false)
		if err := keeper.Close(); err != nil {
			r.logger.Warn("close adapter session", zap.String("platform", string(src.id)), zap.Error(err))
		}
	}
}

// seedJobURLs loads recently stored URLs so old postings are not surfaced
// again. A failing lookup is recorded and the run continues unseeded.
func (c *Controller) seedJobURLs(ctx context.Context, r *run) mapset.Set[string] {
	known := mapset.NewThreadUnsafeSet[string]()
	if c.deps.Prospects == nil {
		return known
	}
	since := c.deps.Clock.Now().Add(-c.cfg.SeedWindow)
	urls, err := c.deps.Prospects.ExistingJobURLs(ctx, since)
	if err != nil {
		r.recordError(fmt.Sprintf("load existing jobs: %v", err))
		return known
	}
	known.Append(urls...)
	r.logger.Debug("seeded known job urls", zap.Int("count", len(urls)))
	return known
}

// collectJobs runs up to MaxPasses passes over sources, stopping at the cap
// or after a pass that produced nothing new.
func (c *Controller) collectJobs(
	ctx context.Context,
	r *run,
	cfg prospect.JobSearchConfig,
	expanded []string,
	sources []*jobSource,
	known mapset.Set[string],
) ([]prospect.JobPosting, error) {
	accepted := make([]prospect.JobPosting, 0, cfg.MaxResults)
	steps := c.cfg.MaxPasses * len(sources)
	step := 0
	r.tracker.Report(progress.PhaseScraping, 0, steps, "Searching job boards", "")

	for pass := 0; pass < c.cfg.MaxPasses && len(accepted) < cfg.MaxResults; pass++ {
		if ctx.Err() != nil {
			r.recordError(fmt.Sprintf("run budget exhausted after %d passes", pass))
			break
		}
		admitted, fresh := 0, 0
		for _, src := range sources {
			step++
			if src.blocked || len(accepted) >= cfg.MaxResults {
				continue
			}
			if c.deps.Gate != nil && !c.deps.Gate.Allow(ctx, string(store.KindJobs)+"/"+string(src.id)) {
				src.blocked = true
				r.recordError(fmt.Sprintf("%s: %v", src.id, ErrRateLimited))
				continue
			}
			admitted++

			res := src.adapter.Scrape(ctx, platform.Query{Keywords: expanded, Location: cfg.Location, Page: pass})
			if res.Err != "" {
				r.recordError(fmt.Sprintf("%s: %s", src.id, res.Err))
			}
			added := 0
			for _, job := range res.Jobs {
				if len(accepted) >= cfg.MaxResults {
					break
				}
				if !job.Valid() || len(job.KeywordsMatched) == 0 {
					continue
				}
				if known.Contains(job.URL) {
					continue
				}
				known.Add(job.URL)
				accepted = append(accepted, job)
				added++
			}
			fresh += added
			r.logger.Debug("platform scraped",
				zap.String("platform", string(src.id)),
				zap.Int("pass", pass+1),
				zap.Int("parsed", len(res.Jobs)),
				zap.Int("added", added))
			r.tracker.Report(progress.PhaseScraping, step, steps,
				fmt.Sprintf("%s: %d new postings (%d total)", src.id, added, len(accepted)), string(src.id))
		}
		if pass == 0 && admitted == 0 && len(sources) > 0 {
			return nil, ErrRateLimited
		}
		if admitted == 0 || fresh == 0 {
			break
		}
	}
	return accepted, nil
}

func platformNames(ps []prospect.Platform) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = string(p)
	}
	return out
}
