package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/OliWebDevO/clients-scraper/internal/analyzer"
	"github.com/OliWebDevO/clients-scraper/internal/maps"
	"github.com/OliWebDevO/clients-scraper/internal/platform"
	"github.com/OliWebDevO/clients-scraper/internal/progress"
	"github.com/OliWebDevO/clients-scraper/internal/prospect"
)

var testRunID = uuid.MustParse("0190f3c2-7b1e-7c3a-9a51-2f6d1b0c4e21")

type fixedIDs struct{}

func (fixedIDs) NewRunID() (uuid.UUID, error) { return testRunID, nil }

type recorder struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recorder) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recorder) Events() []progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]progress.Event(nil), r.events...)
}

func (r *recorder) Last() progress.Event {
	events := r.Events()
	return events[len(events)-1]
}

// fakeAdapter serves pages[q.Page], or an empty page beyond the end.
type fakeAdapter struct {
	id    prospect.Platform
	pages [][]prospect.JobPosting
	err   string

	mu      sync.Mutex
	queries []platform.Query
	kept    bool
	closed  bool
}

func (a *fakeAdapter) ID() prospect.Platform { return a.id }

func (a *fakeAdapter) Scrape(_ context.Context, q platform.Query) platform.Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.queries = append(a.queries, q)
	if q.Page >= len(a.pages) {
		return platform.Result{Err: a.err}
	}
	return platform.Result{Jobs: append([]prospect.JobPosting(nil), a.pages[q.Page]...), Err: a.err}
}

func (a *fakeAdapter) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.queries)
}

// sessionAdapter also keeps a browser session.
type sessionAdapter struct {
	*fakeAdapter
}

func (a sessionAdapter) KeepAlive(on bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.kept = on
}

func (a sessionAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

type fakeAdapters map[prospect.Platform]platform.Adapter

func (f fakeAdapters) Resolve(id prospect.Platform) (platform.Adapter, error) {
	a, ok := f[id]
	if !ok {
		return nil, fmt.Errorf("platform %s is not registered", id)
	}
	return a, nil
}

type denyGate struct {
	deny map[string]bool
	mu   sync.Mutex
	keys []string
}

func (g *denyGate) Allow(_ context.Context, key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.keys = append(g.keys, key)
	return !g.deny[key]
}

type fakeEnricher struct {
	text string
}

func (e fakeEnricher) Enrich(_ context.Context, jobs []prospect.JobPosting, progress func(done, total int)) int {
	n := 0
	for i := range jobs {
		if jobs[i].HasDescription() {
			continue
		}
		text := e.text
		jobs[i].Description = &text
		n++
	}
	if progress != nil {
		progress(n, n)
	}
	return n
}

type fakeCrawler struct {
	result maps.Result
	err    error
	steps  []maps.Progress

	mu  sync.Mutex
	req maps.Request
}

func (c *fakeCrawler) Crawl(_ context.Context, req maps.Request, observe maps.Observer) (maps.Result, error) {
	c.mu.Lock()
	c.req = req
	c.mu.Unlock()
	if c.err != nil {
		return maps.Result{}, c.err
	}
	for _, p := range c.steps {
		observe(p)
	}
	out := c.result
	out.Businesses = append([]prospect.Business(nil), c.result.Businesses...)
	return out, nil
}

type fakeAnalyzer struct {
	scores map[string]int
}

func (a fakeAnalyzer) AnalyzeAll(_ context.Context, urls []string, progress func(done, total int)) map[string]*analyzer.Breakdown {
	out := make(map[string]*analyzer.Breakdown, len(urls))
	for _, u := range urls {
		score, ok := a.scores[u]
		if !ok {
			out[u] = nil
			continue
		}
		out[u] = &analyzer.Breakdown{URL: u, Score: score, Issues: []string{fmt.Sprintf("score %d", score)}}
	}
	if progress != nil {
		progress(len(urls), len(urls))
	}
	return out
}

// flakyRepo fails the first UpsertJobs call.
type flakyRepo struct {
	failFirst bool

	mu      sync.Mutex
	calls   int
	written []prospect.JobPosting
}

func (r *flakyRepo) UpsertJobs(_ context.Context, jobs []prospect.JobPosting) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.failFirst && r.calls == 1 {
		return errors.New("deadlock detected")
	}
	r.written = append(r.written, jobs...)
	return nil
}

func (r *flakyRepo) UpsertBusinesses(context.Context, []prospect.Business) error { return nil }

func (r *flakyRepo) ExistingJobURLs(context.Context, time.Time) ([]string, error) {
	return nil, errors.New("connection refused")
}

func (r *flakyRepo) ExistingBusinessKeys(context.Context) ([]string, error) { return nil, nil }

func posting(p prospect.Platform, n int, kw string) prospect.JobPosting {
	return prospect.JobPosting{
		Title:           fmt.Sprintf("Web Developer %d", n),
		Company:         "Acme",
		URL:             fmt.Sprintf("https://www.%s.example/jobs/%d", p, n),
		Source:          p,
		KeywordsMatched: []string{kw},
	}
}

func postings(p prospect.Platform, from, to int) []prospect.JobPosting {
	var out []prospect.JobPosting
	for n := from; n <= to; n++ {
		out = append(out, posting(p, n, "web developer"))
	}
	return out
}

// slotAdapter holds one slot of a shared browser pool while its session is
// kept, like a browser-backed board. A slot it cannot get within wait
// becomes a per-source error.
type slotAdapter struct {
	id   prospect.Platform
	pool chan struct{}
	wait time.Duration

	mu   sync.Mutex
	kept bool
	held bool
}

func (a *slotAdapter) ID() prospect.Platform { return a.id }

func (a *slotAdapter) Scrape(ctx context.Context, q platform.Query) platform.Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.held {
		timer := time.NewTimer(a.wait)
		defer timer.Stop()
		select {
		case a.pool <- struct{}{}:
			a.held = true
		case <-timer.C:
			return platform.Result{Err: "browser slot wait timed out"}
		case <-ctx.Done():
			return platform.Result{Err: ctx.Err().Error()}
		}
	}
	defer func() {
		if !a.kept {
			a.releaseLocked()
		}
	}()
	if q.Page > 0 {
		return platform.Result{}
	}
	return platform.Result{Jobs: postings(a.id, 1, 2)}
}

func (a *slotAdapter) KeepAlive(on bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.kept = on
	if !on {
		a.releaseLocked()
	}
}

func (a *slotAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.releaseLocked()
	return nil
}

func (a *slotAdapter) releaseLocked() {
	if a.held {
		<-a.pool
		a.held = false
	}
}

// slotAdapters resolves a fresh adapter per run, as the real registry does.
type slotAdapters struct {
	pool chan struct{}
	wait time.Duration
}

func (s slotAdapters) Resolve(id prospect.Platform) (platform.Adapter, error) {
	return &slotAdapter{id: id, pool: s.pool, wait: s.wait}, nil
}

// poolEnricher records how many browser slots are taken while it runs.
type poolEnricher struct {
	pool chan struct{}

	mu   sync.Mutex
	held []int
}

func (e *poolEnricher) Enrich(_ context.Context, jobs []prospect.JobPosting, _ func(done, total int)) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.held = append(e.held, len(e.pool))
	return 0
}
