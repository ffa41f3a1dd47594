package platform

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/OliWebDevO/clients-scraper/internal/keywords"
	"github.com/OliWebDevO/clients-scraper/internal/metrics"
	"github.com/OliWebDevO/clients-scraper/internal/prospect"
)

// site describes an HTML job board.
type site struct {
	id        prospect.Platform
	base      string
	search    func(keyword, location string, page int) string
	cards     cardSpec
	canonical func(raw string) string
	// defaultCompany fills cards that omit the employer.
	defaultCompany string
}

// htmlAdapter scrapes a board whose result pages are parsed as HTML. The
// loader decides whether the page is fetched or rendered.
type htmlAdapter struct {
	site   site
	loader PageLoader
	logger *zap.Logger
	now    func() time.Time
}

func newHTMLAdapter(s site, loader PageLoader, logger *zap.Logger) *htmlAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &htmlAdapter{
		site:   s,
		loader: loader,
		logger: logger.With(zap.String("platform", string(s.id))),
		now:    time.Now,
	}
}

func (a *htmlAdapter) ID() prospect.Platform { return a.site.id }

// Scrape loads one result page per keyword. A failing keyword is logged and
// skipped.
func (a *htmlAdapter) Scrape(ctx context.Context, q Query) Result {
	base, _ := url.Parse(a.site.base)
	seen := make(map[string]struct{})
	var (
		jobs []prospect.JobPosting
		errs []string
	)

	for _, kw := range q.Keywords {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err().Error())
			break
		}
		target := a.site.search(kw, q.Location, q.Page)
		html, err := a.loader.Load(ctx, target)
		if err != nil {
			metrics.ObserveScrape(string(a.site.id), "error")
			a.logger.Warn("result page failed", zap.String("keyword", kw), zap.String("url", target), zap.Error(err))
			errs = append(errs, kw+": "+err.Error())
			continue
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			metrics.ObserveScrape(string(a.site.id), "error")
			errs = append(errs, kw+": "+err.Error())
			continue
		}
		metrics.ObserveScrape(string(a.site.id), "ok")

		drafts := parseCards(doc, base, a.site.cards)
		added := 0
		for _, d := range drafts {
			job, ok := a.toPosting(d, q.Keywords, kw)
			if !ok {
				continue
			}
			if _, dup := seen[job.URL]; dup {
				continue
			}
			seen[job.URL] = struct{}{}
			jobs = append(jobs, job)
			added++
		}
		a.logger.Debug("result page parsed",
			zap.String("keyword", kw),
			zap.Int("page", q.Page),
			zap.Int("cards", len(drafts)),
			zap.Int("added", added),
		)
	}

	return finish(jobs, errs)
}

func (a *htmlAdapter) toPosting(d draft, expanded []string, seed string) (prospect.JobPosting, bool) {
	job := prospect.JobPosting{
		Title:    d.title,
		Company:  d.company,
		Location: d.location,
		Salary:   optional(d.salary),
		URL:      a.site.canonical(d.href),
		Source:   a.site.id,
		PostedAt: parsePosted(d.posted, a.now()),
	}
	if job.Company == "" {
		job.Company = a.site.defaultCompany
	}
	if !job.Valid() {
		return job, false
	}
	job.KeywordsMatched = keywords.Match(job.Title, expanded, seed)
	return job, len(job.KeywordsMatched) > 0
}

// KeepAlive forwards to the loader when it holds a browser session.
func (a *htmlAdapter) KeepAlive(on bool) {
	if k, ok := a.loader.(SessionKeeper); ok {
		k.KeepAlive(on)
	}
}

// Close releases any session held by the loader.
func (a *htmlAdapter) Close() error {
	if k, ok := a.loader.(SessionKeeper); ok {
		return k.Close()
	}
	return nil
}

func finish(jobs []prospect.JobPosting, errs []string) Result {
	if len(jobs) == 0 && len(errs) > 0 {
		return Result{Err: strings.Join(errs, "; ")}
	}
	return Result{Jobs: jobs}
}

func searchURL(base string, params url.Values) string {
	return base + "?" + params.Encode()
}
