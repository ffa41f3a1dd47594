// Package app builds the long-lived services of the discovery service from
// configuration and owns their shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/OliWebDevO/clients-scraper/internal/analyzer"
	"github.com/OliWebDevO/clients-scraper/internal/api"
	"github.com/OliWebDevO/clients-scraper/internal/browser"
	"github.com/OliWebDevO/clients-scraper/internal/clock/system"
	"github.com/OliWebDevO/clients-scraper/internal/config"
	"github.com/OliWebDevO/clients-scraper/internal/enricher"
	"github.com/OliWebDevO/clients-scraper/internal/fetch"
	runid "github.com/OliWebDevO/clients-scraper/internal/id/uuid"
	"github.com/OliWebDevO/clients-scraper/internal/maps"
	"github.com/OliWebDevO/clients-scraper/internal/metrics"
	"github.com/OliWebDevO/clients-scraper/internal/netguard"
	"github.com/OliWebDevO/clients-scraper/internal/pipeline"
	"github.com/OliWebDevO/clients-scraper/internal/platform"
	"github.com/OliWebDevO/clients-scraper/internal/progress"
	"github.com/OliWebDevO/clients-scraper/internal/progress/sinks"
	memorypublisher "github.com/OliWebDevO/clients-scraper/internal/publisher/memory"
	pubsubpublisher "github.com/OliWebDevO/clients-scraper/internal/publisher/pubsub"
	"github.com/OliWebDevO/clients-scraper/internal/ratelimit"
	"github.com/OliWebDevO/clients-scraper/internal/storage/gcs"
	"github.com/OliWebDevO/clients-scraper/internal/storage/local"
	"github.com/OliWebDevO/clients-scraper/internal/storage/memory"
	"github.com/OliWebDevO/clients-scraper/internal/storage/postgres"
	"github.com/OliWebDevO/clients-scraper/internal/storage/sqlite"
	"github.com/OliWebDevO/clients-scraper/internal/store"
)

const acceptLanguage = "fr-BE,fr;q=0.9,en;q=0.8"

// Repository is the persistence surface the service needs.
type Repository interface {
	store.ProspectRepository
	store.RunRepository
}

type pinger interface {
	Ping(ctx context.Context) error
}

// App holds the shared, long-lived services. It is built once at startup.
type App struct {
	Logger     *zap.Logger
	Repository Repository
	Controller *pipeline.Controller
	Server     *api.Server

	closers []func(context.Context) error
}

// Options override process-wide collaborators, mostly for tests.
type Options struct {
	// Registerer receives the run metrics; nil uses the default registry.
	Registerer prometheus.Registerer
	// Resolver backs the SSRF guard; nil uses net.DefaultResolver.
	Resolver netguard.Resolver
}

// New builds every service from cfg. It fails fast when a configured
// backend cannot be reached, releasing whatever was opened.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	a := &App{Logger: logger}
	defer func() {
		if err != nil {
			_ = a.closeAll(context.Background())
		}
	}()

	repo, err := a.openRepository(ctx, cfg.DB)
	if err != nil {
		return nil, err
	}
	a.Repository = repo

	blobs, err := a.openBlobStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	publisher, err := a.openPublisher(ctx, cfg.PubSub)
	if err != nil {
		return nil, err
	}

	guard := netguard.New(opts.Resolver)
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.RateLimit.HostRPS,
		DefaultBurst: cfg.RateLimit.HostBurst,
	})
	collyCfg := fetch.CollyConfig{
		UserAgent:    cfg.HTTP.UserAgent,
		Timeout:      cfg.HTTPTimeout(),
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
		Dial:         guard.DialContext(&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}),
		Waiter:       limiter,
	}
	client := fetch.NewGuardedClient(fetch.NewColly(collyCfg), guard)
	// Board search endpoints are fixed, so their redirects are followed in place.
	boardsCfg := collyCfg
	boardsCfg.FollowRedirects = true
	boards := fetch.NewColly(boardsCfg)

	var launcher browser.Launcher
	if cfg.Headless.Enabled {
		chrome, chromeErr := browser.NewChrome(browser.Config{
			MaxSessions:       cfg.Headless.MaxParallel,
			Headless:          true,
			NoSandbox:         cfg.Headless.NoSandbox,
			ExecPath:          cfg.Headless.ExecPath,
			UserAgent:         cfg.HTTP.UserAgent,
			AcceptLanguage:    acceptLanguage,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		})
		if chromeErr != nil {
			logger.Warn("headless browser unavailable", zap.Error(chromeErr))
		} else {
			launcher = chrome
		}
	}

	hub, err := a.buildHub(opts.Registerer, repo)
	if err != nil {
		return nil, err
	}

	deps := pipeline.Deps{
		Adapters: platform.DefaultRegistry(platform.Deps{
			Fetcher:  boards,
			Launcher: launcher,
			Logger:   logger.Named("platform"),
		}),
		Analyzer: analyzer.New(client, blobs, analyzer.Config{
			Timeout:     time.Duration(cfg.Analyzer.TimeoutSeconds) * time.Second,
			Concurrency: cfg.Analyzer.Concurrency,
			BatchPause:  time.Duration(cfg.Analyzer.BatchPauseMs) * time.Millisecond,
		}, logger.Named("analyzer")),
		Enricher: enricher.New(client, enricher.Config{
			Concurrency: cfg.Enricher.Concurrency,
			Timeout:     time.Duration(cfg.Enricher.TimeoutSeconds) * time.Second,
			MaxLength:   cfg.Enricher.MaxChars,
			MinLength:   cfg.Enricher.MinChars,
		}, logger.Named("enricher")),
		Prospects: repo,
		Publisher: publisher,
		Gate:      ratelimit.NewGate(time.Duration(cfg.RateLimit.GateEverySeconds)*time.Second, cfg.RateLimit.GateBurst),
		Emitter:   hub,
		IDs:       runid.New(),
		Clock:     system.New(),
		Logger:    logger.Named("pipeline"),
	}
	if launcher != nil {
		deps.Crawler = maps.New(launcher, maps.Config{
			SearchURL:  cfg.Maps.SearchURL,
			MaxScrolls: cfg.Maps.MaxScrolls,
		}, logger.Named("maps"))
	}

	a.Controller = pipeline.New(deps, pipeline.Config{
		MaxPasses:              cfg.Jobs.MaxPasses,
		SeedWindow:             cfg.SeedWindow(),
		PersistBatch:           cfg.Jobs.PersistBatch,
		GoodThreshold:          cfg.Analyzer.GoodThreshold,
		DefaultJobResults:      cfg.Jobs.DefaultMaxResults,
		DefaultBusinessResults: cfg.Maps.DefaultMaxResults,
		Budget:                 cfg.RunBudget(),
		Topic:                  cfg.PubSub.TopicName,
	})

	var apiKey string
	if cfg.Auth.Enabled {
		apiKey = cfg.Auth.APIKey
	}
	a.Server = api.NewServer(a.Controller, repo, api.Options{
		APIKey: apiKey,
		Ready:  a.ready,
	}, logger)

	logger.Info("application services initialized",
		zap.String("db_driver", cfg.DB.Driver),
		zap.String("snapshot_backend", cfg.Storage.SnapshotBackend),
		zap.Bool("pubsub", cfg.PubSub.Enabled),
		zap.Bool("headless", launcher != nil),
	)
	return a, nil
}

func (a *App) openRepository(ctx context.Context, cfg config.DBConfig) (Repository, error) {
	switch cfg.Driver {
	case "postgres":
		pg, err := postgres.New(ctx, postgres.Config{
			DSN:      cfg.DSN,
			MaxConns: cfg.MaxConns,
			MinConns: cfg.MinConns,
		})
		if err != nil {
			return nil, fmt.Errorf("init postgres: %w", err)
		}
		a.addCloser(func(context.Context) error {
			pg.Close()
			return nil
		})
		if cfg.Migrate {
			if err := pg.Migrate(ctx); err != nil {
				return nil, fmt.Errorf("migrate postgres: %w", err)
			}
		}
		a.Logger.Info("using postgres repository")
		return pg, nil
	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("init sqlite: %w", err)
		}
		a.addCloser(func(context.Context) error { return db.Close() })
		if cfg.Migrate {
			if err := db.Migrate(ctx); err != nil {
				return nil, fmt.Errorf("migrate sqlite: %w", err)
			}
		}
		a.Logger.Info("using sqlite repository", zap.String("path", cfg.DSN))
		return db, nil
	case "memory", "":
		a.Logger.Info("using in-memory repository; prospects are lost on exit")
		return memory.NewRepository(), nil
	default:
		return nil, fmt.Errorf("unknown db driver %q", cfg.Driver)
	}
}

func (a *App) openBlobStore(ctx context.Context, cfg config.StorageConfig) (store.BlobStore, error) {
	switch cfg.SnapshotBackend {
	case "gcs":
		blobs, err := gcs.Connect(ctx, gcs.Config{Bucket: cfg.GCSBucket, Prefix: cfg.Prefix})
		if err != nil {
			return nil, fmt.Errorf("init gcs snapshots: %w", err)
		}
		a.addCloser(func(context.Context) error { return blobs.Close() })
		return blobs, nil
	case "local":
		blobs, err := local.New(local.Config{BaseDir: cfg.BaseDir, Prefix: cfg.Prefix})
		if err != nil {
			return nil, fmt.Errorf("init local snapshots: %w", err)
		}
		return blobs, nil
	case "memory":
		return memory.NewBlobStore(), nil
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown snapshot backend %q", cfg.SnapshotBackend)
	}
}

func (a *App) openPublisher(ctx context.Context, cfg config.PubSubConfig) (store.Publisher, error) {
	if !cfg.Enabled {
		return memorypublisher.New(), nil
	}
	pub, err := pubsubpublisher.Connect(ctx, cfg.ProjectID, cfg.TopicName)
	if err != nil {
		return nil, fmt.Errorf("init pubsub: %w", err)
	}
	a.addCloser(func(context.Context) error { return pub.Close() })
	return pub, nil
}

func (a *App) buildHub(reg prometheus.Registerer, runs store.RunRepository) (*progress.Hub, error) {
	promSink, err := sinks.NewPrometheusSink(reg)
	if err != nil {
		return nil, fmt.Errorf("init run metrics: %w", err)
	}
	hub := progress.NewHub(progress.Config{Logger: a.Logger.Named("progress")},
		sinks.NewLogSink(a.Logger.Named("runs")),
		promSink,
		sinks.NewStoreSink(runs, a.Logger.Named("run-history")),
	)
	a.addCloser(hub.Close)
	return hub, nil
}

func (a *App) ready(ctx context.Context) error {
	if p, ok := a.Repository.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) addCloser(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Close flushes the progress hub, then releases the repository, the
// snapshot store and the publisher, in reverse order of construction.
func (a *App) Close(ctx context.Context) error {
	return a.closeAll(ctx)
}

func (a *App) closeAll(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.Logger.Warn("shutdown incomplete", zap.Error(err))
		return err
	}
	return nil
}
