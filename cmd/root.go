// Package cmd defines the CLI commands that run one discovery from the shell.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/OliWebDevO/clients-scraper/internal/api"
	"github.com/OliWebDevO/clients-scraper/internal/app"
	"github.com/OliWebDevO/clients-scraper/internal/config"
	"github.com/OliWebDevO/clients-scraper/internal/logging"
	"github.com/OliWebDevO/clients-scraper/internal/pipeline"
	"github.com/OliWebDevO/clients-scraper/internal/progress"
	"github.com/OliWebDevO/clients-scraper/internal/prospect"
)

// appKeyType is the key for storing the Runner in the context.
type appKeyType string

const appKey appKeyType = "app"

// Runner is what the subcommands need from the application.
type Runner interface {
	api.Discoverer
	Close(ctx context.Context) error
}

type appRunner struct {
	*app.App
}

func (r appRunner) DiscoverJobs(ctx context.Context, cfg prospect.JobSearchConfig, emit progress.Emitter) (pipeline.JobsResult, error) {
	return r.Controller.DiscoverJobs(ctx, cfg, emit)
}

func (r appRunner) DiscoverBusinesses(ctx context.Context, cfg prospect.BusinessSearchConfig, emit progress.Emitter) (pipeline.BusinessesResult, error) {
	return r.Controller.DiscoverBusinesses(ctx, cfg, emit)
}

// newApp is the application factory. It is a variable so tests can inject a
// fake Runner.
var newApp = func(ctx context.Context, cfgPath string, verbose bool) (Runner, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	level := "warn"
	if verbose {
		level = "debug"
	}
	logger, err := logging.NewWithLevel(cfg.Logging.Development, level)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a, err := app.New(ctx, cfg, logger, app.Options{})
	if err != nil {
		return nil, err
	}
	return appRunner{App: a}, nil
}

type rootOptions struct {
	cfgFile  string
	verbose  bool
	progress bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "prospector",
		Short: "Discovers freelance prospects: job postings and local businesses.",
		Long: `prospector runs one discovery and prints its result as JSON.

"jobs" aggregates postings from the supported job boards for a set of
keywords. "businesses" crawls map search results for a location and keeps
the businesses without a website or with a poor one.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("load .env: %w", err)
			}
			runner, err := newApp(cmd.Context(), opts.cfgFile, opts.verbose)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, runner))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (default searches ./prospector.yaml, /etc/prospector, $HOME/.prospector)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log debug output to stderr")
	cmd.PersistentFlags().BoolVar(&opts.progress, "progress", false, "stream progress events to stderr as NDJSON")

	cmd.AddCommand(newJobsCmd(opts), newBusinessesCmd(opts))
	return cmd
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func resolveRunner(ctx context.Context) (Runner, error) {
	runner, ok := ctx.Value(appKey).(Runner)
	if !ok || runner == nil {
		return nil, errors.New("application services not initialized")
	}
	return runner, nil
}

// withRunner hands the application to fn and shuts it down afterwards, so
// run history is flushed even when the discovery fails.
func withRunner(cmd *cobra.Command, fn func(Runner) error) (err error) {
	runner, err := resolveRunner(cmd.Context())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := runner.Close(context.WithoutCancel(cmd.Context())); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown: %w", closeErr))
		}
	}()
	return fn(runner)
}

// progressEmitter writes each event as one JSON line to w, or discards them
// when enabled is false.
func progressEmitter(w io.Writer, enabled bool) progress.Emitter {
	if !enabled {
		return nil
	}
	var mu sync.Mutex
	enc := json.NewEncoder(w)
	return progress.EmitterFunc(func(evt progress.Event) {
		mu.Lock()
		defer mu.Unlock()
		if err := enc.Encode(evt); err != nil {
			zap.L().Debug("write progress failed", zap.Error(err))
		}
	})
}

func printResult(w io.Writer, result any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}
