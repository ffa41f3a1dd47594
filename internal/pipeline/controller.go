// Package pipeline orchestrates discovery runs: it drives the sources,
// deduplicates and caps what they return, enriches or scores the survivors,
// hands them to persistence and reports ordered progress along the way.
package pipeline

import (
	"context"
	"fmt"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/OliWebDevO/clients-scraper/internal/analyzer"
	"github.com/OliWebDevO/clients-scraper/internal/clock/system"
	runid "github.com/OliWebDevO/clients-scraper/internal/id/uuid"
	"github.com/OliWebDevO/clients-scraper/internal/maps"
	"github.com/OliWebDevO/clients-scraper/internal/platform"
	"github.com/OliWebDevO/clients-scraper/internal/progress"
	"github.com/OliWebDevO/clients-scraper/internal/prospect"
	"github.com/OliWebDevO/clients-scraper/internal/store"
)

const (
	defaultMaxPasses       = 3
	defaultSeedWindow      = 30 * 24 * time.Hour
	defaultPersistBatch    = 25
	defaultJobResults      = 50
	defaultBusinessResults = 20
	defaultTopic           = "prospector-runs"
	persistTimeout         = 30 * time.Second
)

// AdapterSource hands out a fresh adapter per platform. *platform.Registry
// satisfies it.
type AdapterSource interface {
	Resolve(id prospect.Platform) (platform.Adapter, error)
}

// BusinessCrawler runs the map-search crawl. *maps.Crawler satisfies it.
type BusinessCrawler interface {
	Crawl(ctx context.Context, req maps.Request, observe maps.Observer) (maps.Result, error)
}

// WebsiteAnalyzer scores a batch of websites. *analyzer.Analyzer satisfies it.
type WebsiteAnalyzer interface {
	AnalyzeAll(ctx context.Context, urls []string, progress func(done, total int)) map[string]*analyzer.Breakdown
}

// DescriptionEnricher fills in missing descriptions. *enricher.Enricher
// satisfies it.
type DescriptionEnricher interface {
	Enrich(ctx context.Context, jobs []prospect.JobPosting, progress func(done, total int)) int
}

// Gate admits or turns away a source before each pass.
// *ratelimit.Gate satisfies it.
type Gate interface {
	Allow(ctx context.Context, key string) bool
}

// IDGenerator mints run IDs.
type IDGenerator interface {
	NewRunID() (uuid.UUID, error)
}

// Clock supplies run timestamps.
type Clock interface {
	Now() time.Time
}

// Config tunes the controller.
type Config struct {
	// MaxPasses bounds the pagination passes of a job run.
	MaxPasses int
	// SeedWindow is how far back persisted job URLs count as known.
	SeedWindow time.Duration
	// PersistBatch is the number of records per repository write.
	PersistBatch int
	// GoodThreshold is the score under which a website is good enough that
	// its business is dropped.
	GoodThreshold          int
	DefaultJobResults      int
	DefaultBusinessResults int
	// Budget bounds the wall-clock time of a run. Zero means no bound.
	Budget time.Duration
	// Topic receives a RunSummary after every successful run.
	Topic string
}

// Deps are the controller's collaborators. Only the sources needed by the
// entry point being called are required.
type Deps struct {
	Adapters  AdapterSource
	Crawler   BusinessCrawler
	Analyzer  WebsiteAnalyzer
	Enricher  DescriptionEnricher
	Prospects store.ProspectRepository
	Publisher store.Publisher
	Gate      Gate
	// Emitter receives every run's events, e.g. a progress.Hub.
	Emitter progress.Emitter
	IDs     IDGenerator
	Clock   Clock
	Logger  *zap.Logger
}

// Controller runs discoveries. It is safe for concurrent use; each call owns
// its own identity sets and adapter instances.
type Controller struct {
	deps     Deps
	cfg      Config
	logger   *zap.Logger
	validate validatorFunc
}

type validatorFunc func(any) error

// New builds a Controller, filling unset Config fields with defaults.
func New(deps Deps, cfg Config) *Controller {
	if cfg.MaxPasses <= 0 {
		cfg.MaxPasses = defaultMaxPasses
	}
	if cfg.SeedWindow <= 0 {
		cfg.SeedWindow = defaultSeedWindow
	}
	if cfg.PersistBatch <= 0 {
		cfg.PersistBatch = defaultPersistBatch
	}
	if cfg.GoodThreshold <= 0 {
		cfg.GoodThreshold = analyzer.GoodWebsiteThreshold
	}
	if cfg.DefaultJobResults <= 0 {
		cfg.DefaultJobResults = defaultJobResults
	}
	if cfg.DefaultBusinessResults <= 0 {
		cfg.DefaultBusinessResults = defaultBusinessResults
	}
	if cfg.Topic == "" {
		cfg.Topic = defaultTopic
	}
	if deps.IDs == nil {
		deps.IDs = runid.New()
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	v := newValidator()
	return &Controller{
		deps:     deps,
		cfg:      cfg,
		logger:   deps.Logger.Named("pipeline"),
		validate: v.Struct,
	}
}

// run is the per-invocation state shared by both entry points.
type run struct {
	id       uuid.UUID
	kind     store.RunKind
	tracker  *progress.Tracker
	logger   *zap.Logger
	errs     []string
	reported mapset.Set[string]
}

func (c *Controller) startRun(kind store.RunKind, spans map[progress.Phase]progress.Span, emit progress.Emitter) (*run, error) {
	id, err := c.deps.IDs.NewRunID()
	if err != nil {
		return nil, fmt.Errorf("new run id: %w", err)
	}
	return &run{
		id:       id,
		kind:     kind,
		tracker:  progress.NewTracker(id, string(kind), spans, progress.Multi(c.deps.Emitter, emit), c.deps.Clock.Now),
		logger:   c.logger.With(zap.String("run_id", id.String()), zap.String("kind", string(kind))),
		reported: mapset.NewThreadUnsafeSet[string](),
	}, nil
}

// recordError attaches a per-source failure to the run result once.
func (r *run) recordError(msg string) {
	if !r.reported.Add(msg) {
		return
	}
	r.errs = append(r.errs, msg)
	r.logger.Warn("source failed", zap.String("error", msg))
}

// fail emits the terminal error event and returns err.
func (r *run) fail(err error) error {
	r.tracker.Fail(err.Error())
	r.logger.Error("run failed", zap.Error(err))
	return err
}

func (c *Controller) withBudget(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.Budget <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.cfg.Budget)
}

// persistContext outlives the run budget so accepted results are not lost
// when the budget expires during collection.
func persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
}

// saveInBatches writes items in fixed-size batches. A failed batch is
// recorded and the remaining batches are still attempted.
func saveInBatches[T any](ctx context.Context, r *run, items []T, size int, write func(context.Context, []T) error) {
	total := len(items)
	if total == 0 {
		return
	}
	r.tracker.Report(progress.PhaseSaving, 0, total, "Saving results", "")
	for start := 0; start < total; start += size {
		end := min(start+size, total)
		if err := write(ctx, items[start:end]); err != nil {
			r.recordError(fmt.Sprintf("save batch %d-%d: %v", start+1, end, err))
		}
		r.tracker.Report(progress.PhaseSaving, end, total, fmt.Sprintf("Saved %d of %d", end, total), "")
	}
}

// RunSummary is published after a successful run.
type RunSummary struct {
	RunID      uuid.UUID     `json:"run_id"`
	Kind       store.RunKind `json:"kind"`
	ItemsFound int           `json:"items_found"`
	Errors     []string      `json:"errors,omitempty"`
	FinishedAt time.Time     `json:"finished_at"`
}

func (c *Controller) publish(ctx context.Context, r *run, items int) {
	if c.deps.Publisher == nil {
		return
	}
	summary := RunSummary{
		RunID:      r.id,
		Kind:       r.kind,
		ItemsFound: items,
		Errors:     r.errs,
		FinishedAt: c.deps.Clock.Now(),
	}
	id, err := c.deps.Publisher.Publish(ctx, c.cfg.Topic, summary)
	if err != nil {
		r.logger.Warn("publish run summary", zap.Error(err))
		return
	}
	r.logger.Debug("published run summary", zap.String("message_id", id))
}
