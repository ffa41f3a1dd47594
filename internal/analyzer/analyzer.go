// Package analyzer scores how badly a business website needs a redesign.
package analyzer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/OliWebDevO/clients-scraper/internal/fetch"
	"github.com/OliWebDevO/clients-scraper/internal/hash/sha256"
	"github.com/OliWebDevO/clients-scraper/internal/metrics"
	"github.com/OliWebDevO/clients-scraper/internal/netguard"
	"github.com/OliWebDevO/clients-scraper/internal/store"
)

// GoodWebsiteThreshold is the score under which a site is considered fine
// and its business not worth pitching.
const GoodWebsiteThreshold = 25

// PageGetter fetches a page, vetting and following redirects.
// *fetch.GuardedClient satisfies it.
type PageGetter interface {
	Get(ctx context.Context, rawURL string, headers http.Header) (fetch.Response, error)
}

// Config tunes the analyzer.
type Config struct {
	// Timeout bounds each attempt (HTTPS, then the HTTP fallback).
	Timeout time.Duration
	// Concurrency is the batch window of AnalyzeAll.
	Concurrency int
	// BatchPause separates consecutive AnalyzeAll batches.
	BatchPause time.Duration
}

// Analyzer fetches and scores websites.
type Analyzer struct {
	client PageGetter
	blobs  store.BlobStore
	cfg    Config
	logger *zap.Logger
	hasher *sha256.Hasher
	now    func() time.Time
}

// New builds an Analyzer. blobs may be nil to skip HTML snapshots.
func New(client PageGetter, blobs store.BlobStore, cfg Config, logger *zap.Logger) *Analyzer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.BatchPause < 0 {
		cfg.BatchPause = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{
		client: client,
		blobs:  blobs,
		cfg:    cfg,
		logger: logger,
		hasher: sha256.New(),
		now:    time.Now,
	}
}

// Analyze fetches rawURL over HTTPS, falling back once to HTTP, and scores
// the page. It returns nil when the site could not be assessed, including
// when the destination is not allowed.
func (a *Analyzer) Analyze(ctx context.Context, rawURL string) *Breakdown {
	secure, plain, err := schemeVariants(rawURL)
	if err != nil {
		metrics.ObserveAnalysis("failed")
		return nil
	}

	resp, err := a.attempt(ctx, secure)
	fellBack := false
	if err != nil && !errors.Is(err, netguard.ErrBlocked) && ctx.Err() == nil {
		a.logger.Debug("https attempt failed, retrying over http", zap.String("url", secure), zap.Error(err))
		fellBack = true
		resp, err = a.attempt(ctx, plain)
	}
	if err != nil {
		if errors.Is(err, netguard.ErrBlocked) {
			metrics.ObserveAnalysis("blocked")
			return nil
		}
		metrics.ObserveAnalysis("failed")
		a.logger.Debug("website unreachable", zap.String("url", rawURL), zap.Error(err))
		return nil
	}
	if !resp.OK() {
		metrics.ObserveAnalysis("failed")
		a.logger.Debug("website returned non-2xx", zap.String("url", rawURL), zap.Int("status", resp.StatusCode))
		return nil
	}

	final, _ := url.Parse(resp.URL)
	b := Score(Page{
		HTML:     string(resp.Body),
		HTTPS:    final != nil && final.Scheme == "https",
		FellBack: fellBack,
		LoadTime: resp.Duration,
		Now:      a.now(),
	})
	b.URL = rawURL
	b.SnapshotURI = a.snapshot(ctx, final, resp.Body)
	metrics.ObserveAnalysis("scored")
	return &b
}

// attempt fetches target within the per-site timeout. The returned
// Duration covers only the final hop, so limiter waits and redirects do not
// count as load time.
func (a *Analyzer) attempt(ctx context.Context, target string) (fetch.Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()
	return a.client.Get(attemptCtx, target, fetch.BrowserHeaders())
}

func (a *Analyzer) snapshot(ctx context.Context, final *url.URL, body []byte) string {
	if a.blobs == nil || final == nil || len(body) == 0 {
		return ""
	}
	digest, err := a.hasher.Hash(body)
	if err != nil {
		a.logger.Warn("snapshot hash failed", zap.Error(err))
		return ""
	}
	path := fmt.Sprintf("snapshots/%s/%s-%s.html", final.Hostname(), a.now().UTC().Format("20060102T150405"), digest[:12])
	uri, err := a.blobs.PutObject(ctx, path, "text/html; charset=utf-8", bytes.NewReader(body))
	if err != nil {
		a.logger.Warn("snapshot upload failed", zap.String("path", path), zap.Error(err))
		return ""
	}
	return uri
}

// AnalyzeAll analyzes urls in windows of Config.Concurrency, pausing between
// windows. Sites that could not be assessed map to nil. progress, when set,
// is called from the calling goroutine after each window.
func (a *Analyzer) AnalyzeAll(ctx context.Context, urls []string, progress func(done, total int)) map[string]*Breakdown {
	unique := make([]string, 0, len(urls))
	results := make(map[string]*Breakdown, len(urls))
	for _, u := range urls {
		if _, ok := results[u]; ok || strings.TrimSpace(u) == "" {
			continue
		}
		results[u] = nil
		unique = append(unique, u)
	}

	var mu sync.Mutex
	total := len(unique)
	for start := 0; start < total; start += a.cfg.Concurrency {
		if start > 0 {
			if err := sleep(ctx, a.cfg.BatchPause); err != nil {
				break
			}
		}
		end := min(start+a.cfg.Concurrency, total)

		var g errgroup.Group
		for _, target := range unique[start:end] {
			g.Go(func() error {
				b := a.Analyze(ctx, target)
				mu.Lock()
				results[target] = b
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()

		if progress != nil {
			progress(end, total)
		}
		if ctx.Err() != nil {
			break
		}
	}
	return results
}

// schemeVariants returns the https and http forms of raw. Scheme-less input
// is accepted.
func schemeVariants(raw string) (string, string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", errors.New("empty url")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", "", fmt.Errorf("invalid url %q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	secure, plain := *u, *u
	secure.Scheme = "https"
	plain.Scheme = "http"
	return secure.String(), plain.String(), nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
