// Package enricher fills in missing job descriptions by fetching each
// posting's detail page.
package enricher

import (
	"context"
	"errors"
	"net/http"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/OliWebDevO/clients-scraper/internal/fetch"
	"github.com/OliWebDevO/clients-scraper/internal/metrics"
	"github.com/OliWebDevO/clients-scraper/internal/platform"
	"github.com/OliWebDevO/clients-scraper/internal/prospect"
)

// Getter fetches a detail page. *fetch.GuardedClient satisfies it.
type Getter interface {
	Get(ctx context.Context, rawURL string, headers http.Header) (fetch.Response, error)
}

// Config tunes enrichment.
type Config struct {
	Concurrency int
	Timeout     time.Duration
	MaxLength   int
	MinLength   int
}

// Enricher fetches descriptions in fixed-size batches.
type Enricher struct {
	client    Getter
	cfg       Config
	logger    *zap.Logger
	selectors func(prospect.Platform) []string
}

// New builds an Enricher with defaults for unset Config fields.
func New(client Getter, cfg Config, logger *zap.Logger) *Enricher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = 5000
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{
		client:    client,
		cfg:       cfg,
		logger:    logger,
		selectors: platform.DescriptionSelectors,
	}
}

// Enrich sets Description on postings that lack one, in place. Every fetch
// in a batch runs to completion or timeout independently of its siblings.
// It returns how many postings gained a description. progress, when set,
// is called from the calling goroutine after each batch.
func (e *Enricher) Enrich(ctx context.Context, jobs []prospect.JobPosting, progress func(done, total int)) int {
	var pending []int
	for i := range jobs {
		if !jobs[i].HasDescription() && jobs[i].URL != "" {
			pending = append(pending, i)
		}
	}

	enriched := 0
	total := len(pending)
	for start := 0; start < total; start += e.cfg.Concurrency {
		if ctx.Err() != nil {
			break
		}
		batch := pending[start:min(start+e.cfg.Concurrency, total)]
		texts := make([]string, len(batch))

		var g errgroup.Group
		for slot, idx := range batch {
			job := jobs[idx]
			g.Go(func() error {
				texts[slot] = e.describe(ctx, job)
				return nil
			})
		}
		_ = g.Wait()

		for slot, idx := range batch {
			if texts[slot] == "" {
				continue
			}
			text := texts[slot]
			jobs[idx].Description = &text
			enriched++
		}
		if progress != nil {
			progress(start+len(batch), total)
		}
	}
	return enriched
}

// describe returns the description for job or "" when unavailable. The
// per-item deadline holds even if the fetch ignores its context.
func (e *Enricher) describe(ctx context.Context, job prospect.JobPosting) string {
	itemCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	done := make(chan string, 1)
	go func() {
		done <- e.extract(itemCtx, job)
	}()

	select {
	case <-itemCtx.Done():
		metrics.ObserveEnrichment(string(job.Source), "timeout")
		e.logger.Debug("description fetch timed out", zap.String("url", job.URL))
		return ""
	case text := <-done:
		return text
	}
}

func (e *Enricher) extract(ctx context.Context, job prospect.JobPosting) string {
	resp, err := e.client.Get(ctx, job.URL, fetch.BrowserHeaders())
	if err != nil {
		outcome := "failed"
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
		metrics.ObserveEnrichment(string(job.Source), outcome)
		e.logger.Debug("description fetch failed", zap.String("url", job.URL), zap.Error(err))
		return ""
	}
	if !resp.OK() {
		metrics.ObserveEnrichment(string(job.Source), "failed")
		return ""
	}

	selectors := append(e.selectors(job.Source), fetch.GenericContentSelectors()...)
	text, found, err := fetch.ExtractText(string(resp.Body), selectors, e.cfg.MinLength, true)
	if err != nil || !found {
		metrics.ObserveEnrichment(string(job.Source), "empty")
		return ""
	}
	text = fetch.Truncate(text, e.cfg.MaxLength)
	if utf8.RuneCountInString(text) < e.cfg.MinLength {
		metrics.ObserveEnrichment(string(job.Source), "empty")
		return ""
	}
	metrics.ObserveEnrichment(string(job.Source), "ok")
	return text
}
