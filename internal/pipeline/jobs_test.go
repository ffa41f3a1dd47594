package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/OliWebDevO/clients-scraper/internal/keywords"
	"github.com/OliWebDevO/clients-scraper/internal/progress"
	"github.com/OliWebDevO/clients-scraper/internal/prospect"
	"github.com/OliWebDevO/clients-scraper/internal/publisher/memory"
	storemem "github.com/OliWebDevO/clients-scraper/internal/storage/memory"
)

func requireOrdered(t *testing.T, events []progress.Event) {
	t.Helper()
	lastRank, lastProgress := -1, -1
	for _, evt := range events {
		require.NoError(t, evt.Validate())
		require.Equal(t, testRunID, evt.RunID)
		require.GreaterOrEqual(t, evt.Phase.Rank(), lastRank, "phase %s out of order", evt.Phase)
		require.GreaterOrEqual(t, evt.Progress, lastProgress)
		lastRank, lastProgress = evt.Phase.Rank(), evt.Progress
	}
	for _, evt := range events[:len(events)-1] {
		require.False(t, evt.Type.Terminal(), "terminal event before the end")
	}
	require.True(t, events[len(events)-1].Type.Terminal())
}

func TestDiscoverJobsCapsResults(t *testing.T) {
	t.Parallel()

	ictjob := &fakeAdapter{id: prospect.ICTJob, pages: [][]prospect.JobPosting{postings(prospect.ICTJob, 1, 8)}}
	repo := storemem.NewRepository()
	pub := memory.New()
	rec := &recorder{}
	c := New(Deps{
		Adapters:  fakeAdapters{prospect.ICTJob: ictjob},
		Enricher:  fakeEnricher{text: strings.Repeat("Nous recherchons un développeur web. ", 3)},
		Prospects: repo,
		Publisher: pub,
		IDs:       fixedIDs{},
	}, Config{})

	res, err := c.DiscoverJobs(context.Background(), prospect.JobSearchConfig{
		Platforms:  []prospect.Platform{"ictjob"},
		Keywords:   []string{"web developer"},
		MaxResults: 5,
	}, rec)
	require.NoError(t, err)
	require.Equal(t, testRunID, res.RunID)
	require.Len(t, res.Jobs, 5)
	urls := map[string]bool{}
	for _, job := range res.Jobs {
		require.NotEmpty(t, job.KeywordsMatched)
		require.True(t, job.HasDescription())
		require.False(t, urls[job.URL], "duplicate %s", job.URL)
		urls[job.URL] = true
	}
	require.Len(t, repo.Jobs(), 5)

	events := rec.Events()
	requireOrdered(t, events)
	final := rec.Last()
	require.Equal(t, progress.TypeComplete, final.Type)
	require.Equal(t, 5, final.ItemsFound)
	require.Empty(t, final.Errors)

	phases := map[progress.Phase]bool{}
	for _, evt := range events {
		phases[evt.Phase] = true
	}
	for _, p := range []progress.Phase{progress.PhaseInit, progress.PhaseScraping, progress.PhaseDescriptions, progress.PhaseSaving, progress.PhaseDone} {
		require.True(t, phases[p], "missing phase %s", p)
	}

	q := ictjob.queries[0]
	expanded := keywords.Expand([]string{"web developer"})
	require.ElementsMatch(t, expanded, q.Keywords)

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	summary, ok := msgs[0].Payload.(RunSummary)
	require.True(t, ok)
	require.Equal(t, 5, summary.ItemsFound)
	require.Equal(t, testRunID, summary.RunID)
}

func TestDiscoverJobsPaginatesUntilNothingNew(t *testing.T) {
	t.Parallel()

	linkedin := &fakeAdapter{id: prospect.LinkedIn, pages: [][]prospect.JobPosting{
		postings(prospect.LinkedIn, 1, 2),
		postings(prospect.LinkedIn, 2, 4),
		postings(prospect.LinkedIn, 3, 4),
	}}
	c := New(Deps{Adapters: fakeAdapters{prospect.LinkedIn: linkedin}, IDs: fixedIDs{}}, Config{MaxPasses: 5})

	res, err := c.DiscoverJobs(context.Background(), prospect.JobSearchConfig{
		Platforms:  []prospect.Platform{prospect.LinkedIn},
		Keywords:   []string{"web developer"},
		MaxResults: 50,
	}, nil)
	require.NoError(t, err)
	require.Len(t, res.Jobs, 4)
	require.Equal(t, 3, linkedin.calls(), "third pass finds nothing new and ends the run")
	for i, q := range linkedin.queries {
		require.Equal(t, i, q.Page)
	}
}

func TestDiscoverJobsStopsAtMaxPasses(t *testing.T) {
	t.Parallel()

	jobat := &fakeAdapter{id: prospect.Jobat, pages: [][]prospect.JobPosting{
		postings(prospect.Jobat, 1, 1),
		postings(prospect.Jobat, 2, 2),
		postings(prospect.Jobat, 3, 3),
		postings(prospect.Jobat, 4, 4),
	}}
	c := New(Deps{Adapters: fakeAdapters{prospect.Jobat: jobat}, IDs: fixedIDs{}}, Config{})

	res, err := c.DiscoverJobs(context.Background(), prospect.JobSearchConfig{
		Platforms:  []prospect.Platform{prospect.Jobat},
		Keywords:   []string{"php developer"},
		MaxResults: 50,
	}, nil)
	require.NoError(t, err)
	require.Len(t, res.Jobs, 3)
	require.Equal(t, 3, jobat.calls())
}

func TestDiscoverJobsSkipsKnownAndInvalidPostings(t *testing.T) {
	t.Parallel()

	page := postings(prospect.Indeed, 1, 3)
	page = append(page,
		prospect.JobPosting{Title: "", URL: "https://www.indeed.example/jobs/9", KeywordsMatched: []string{"web dev"}},
		prospect.JobPosting{Title: "No match", URL: "https://www.indeed.example/jobs/10"},
		posting(prospect.Indeed, 1, "web dev"),
	)
	indeed := &fakeAdapter{id: prospect.Indeed, pages: [][]prospect.JobPosting{page}}
	repo := storemem.NewRepository()
	require.NoError(t, repo.UpsertJobs(context.Background(), []prospect.JobPosting{posting(prospect.Indeed, 2, "web dev")}))

	c := New(Deps{Adapters: fakeAdapters{prospect.Indeed: indeed}, Prospects: repo, IDs: fixedIDs{}}, Config{})
	res, err := c.DiscoverJobs(context.Background(), prospect.JobSearchConfig{
		Platforms:  []prospect.Platform{prospect.Indeed},
		Keywords:   []string{"web developer"},
		MaxResults: 10,
	}, nil)
	require.NoError(t, err)

	var got []string
	for _, job := range res.Jobs {
		got = append(got, job.URL)
	}
	require.Equal(t, []string{"https://www.indeed.example/jobs/1", "https://www.indeed.example/jobs/3"}, got)
}

func TestDiscoverJobsRecordsPartialFailures(t *testing.T) {
	t.Parallel()

	broken := &fakeAdapter{id: prospect.LinkedIn, err: "HTTP status 999"}
	working := sessionAdapter{&fakeAdapter{id: prospect.Jobsora, pages: [][]prospect.JobPosting{postings(prospect.Jobsora, 1, 2)}}}
	rec := &recorder{}
	c := New(Deps{
		Adapters: fakeAdapters{prospect.LinkedIn: broken, prospect.Jobsora: working},
		IDs:      fixedIDs{},
	}, Config{})

	res, err := c.DiscoverJobs(context.Background(), prospect.JobSearchConfig{
		Platforms:  []prospect.Platform{prospect.LinkedIn, prospect.Jobsora, prospect.LinkedIn},
		Keywords:   []string{"web developer"},
		MaxResults: 10,
	}, rec)
	require.NoError(t, err)
	require.Len(t, res.Jobs, 2)
	require.Equal(t, []string{"linkedin: HTTP status 999"}, res.Errors)

	final := rec.Last()
	require.Equal(t, progress.TypeComplete, final.Type)
	require.Equal(t, res.Errors, final.Errors)
	require.True(t, working.closed)
}

func TestDiscoverJobsKeepsSavingAfterBatchFailure(t *testing.T) {
	t.Parallel()

	ictjob := &fakeAdapter{id: prospect.ICTJob, pages: [][]prospect.JobPosting{postings(prospect.ICTJob, 1, 5)}}
	repo := &flakyRepo{failFirst: true}
	c := New(Deps{Adapters: fakeAdapters{prospect.ICTJob: ictjob}, Prospects: repo, IDs: fixedIDs{}}, Config{PersistBatch: 2, MaxPasses: 1})

	res, err := c.DiscoverJobs(context.Background(), prospect.JobSearchConfig{
		Platforms:  []prospect.Platform{prospect.ICTJob},
		Keywords:   []string{"web developer"},
		MaxResults: 5,
	}, nil)
	require.NoError(t, err)
	require.Len(t, res.Jobs, 5)
	require.Equal(t, 3, repo.calls)
	require.Len(t, repo.written, 3)
	require.Len(t, res.Errors, 2)
	require.Contains(t, res.Errors[0], "load existing jobs")
	require.Contains(t, res.Errors[1], "save batch 1-2")
}

func TestDiscoverJobsValidation(t *testing.T) {
	t.Parallel()

	tooMany := make([]string, keywords.MaxKeywords+1)
	for i := range tooMany {
		tooMany[i] = "developer"
	}

	tests := []struct {
		name string
		cfg  prospect.JobSearchConfig
		want error
	}{
		{name: "no platforms", cfg: prospect.JobSearchConfig{Keywords: []string{"web developer"}}, want: ErrNoPlatforms},
		{
			name: "too many keywords",
			cfg:  prospect.JobSearchConfig{Platforms: []prospect.Platform{prospect.ICTJob}, Keywords: tooMany},
			want: keywords.ErrTooManyKeywords,
		},
		{
			name: "keyword too long",
			cfg:  prospect.JobSearchConfig{Platforms: []prospect.Platform{prospect.ICTJob}, Keywords: []string{strings.Repeat("x", 101)}},
			want: keywords.ErrKeywordTooLong,
		},
		{
			name: "unknown platform",
			cfg:  prospect.JobSearchConfig{Platforms: []prospect.Platform{"monster"}, Keywords: []string{"web developer"}},
		},
		{
			name: "no keywords",
			cfg:  prospect.JobSearchConfig{Platforms: []prospect.Platform{prospect.ICTJob}},
		},
		{
			name: "negative max",
			cfg:  prospect.JobSearchConfig{Platforms: []prospect.Platform{prospect.ICTJob}, Keywords: []string{"seo"}, MaxResults: -1},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ictjob := &fakeAdapter{id: prospect.ICTJob}
			rec := &recorder{}
			c := New(Deps{Adapters: fakeAdapters{prospect.ICTJob: ictjob}, IDs: fixedIDs{}}, Config{})

			_, err := c.DiscoverJobs(context.Background(), tt.cfg, rec)
			require.ErrorIs(t, err, ErrInvalidConfig)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			if tt.want != nil {
				require.ErrorIs(t, err, tt.want)
			}
			require.Zero(t, ictjob.calls())

			events := rec.Events()
			require.Len(t, events, 1)
			require.Equal(t, progress.TypeError, events[0].Type)
			require.NoError(t, events[0].Validate())
		})
	}
}

func TestDiscoverJobsRateLimited(t *testing.T) {
	t.Parallel()

	ictjob := &fakeAdapter{id: prospect.ICTJob, pages: [][]prospect.JobPosting{postings(prospect.ICTJob, 1, 2)}}
	gate := &denyGate{deny: map[string]bool{"jobs/ictjob": true}}
	rec := &recorder{}
	c := New(Deps{Adapters: fakeAdapters{prospect.ICTJob: ictjob}, Gate: gate, IDs: fixedIDs{}}, Config{})

	_, err := c.DiscoverJobs(context.Background(), prospect.JobSearchConfig{
		Platforms: []prospect.Platform{prospect.ICTJob},
		Keywords:  []string{"web developer"},
	}, rec)
	require.ErrorIs(t, err, ErrRateLimited)
	require.Zero(t, ictjob.calls())
	require.Equal(t, progress.TypeError, rec.Last().Type)
	require.Equal(t, []string{"jobs/ictjob"}, gate.keys)
}

func TestDiscoverJobsRateLimitedSourceIsSkipped(t *testing.T) {
	t.Parallel()

	ictjob := &fakeAdapter{id: prospect.ICTJob, pages: [][]prospect.JobPosting{postings(prospect.ICTJob, 1, 2)}}
	actiris := &fakeAdapter{id: prospect.Actiris, pages: [][]prospect.JobPosting{postings(prospect.Actiris, 1, 2)}}
	gate := &denyGate{deny: map[string]bool{"jobs/actiris": true}}
	c := New(Deps{
		Adapters: fakeAdapters{prospect.ICTJob: ictjob, prospect.Actiris: actiris},
		Gate:     gate,
		IDs:      fixedIDs{},
	}, Config{MaxPasses: 1})

	res, err := c.DiscoverJobs(context.Background(), prospect.JobSearchConfig{
		Platforms: []prospect.Platform{prospect.ICTJob, prospect.Actiris},
		Keywords:  []string{"web developer"},
	}, nil)
	require.NoError(t, err)
	require.Len(t, res.Jobs, 2)
	require.Equal(t, []string{"actiris: too many requests"}, res.Errors)
	require.Zero(t, actiris.calls())
}

func TestDiscoverJobsReleasesBrowserSlotsBeforeEnrichment(t *testing.T) {
	t.Parallel()

	pool := make(chan struct{}, 2)
	enricher := &poolEnricher{pool: pool}
	c := New(Deps{
		Adapters: slotAdapters{pool: pool, wait: time.Second},
		Enricher: enricher,
		IDs:      fixedIDs{},
	}, Config{})

	res, err := c.DiscoverJobs(context.Background(), prospect.JobSearchConfig{
		Platforms:  []prospect.Platform{prospect.Indeed, prospect.Jobsora},
		Keywords:   []string{"web developer"},
		MaxResults: 10,
	}, nil)
	require.NoError(t, err)
	require.Len(t, res.Jobs, 4)
	require.Equal(t, []int{0}, enricher.held)
	require.Empty(t, pool)
}

func TestDiscoverJobsConcurrentRunsShareBrowserSlots(t *testing.T) {
	t.Parallel()

	pool := make(chan struct{}, 2)
	c := New(Deps{
		Adapters: slotAdapters{pool: pool, wait: 50 * time.Millisecond},
		Enricher: &poolEnricher{pool: pool},
		IDs:      fixedIDs{},
	}, Config{Budget: 10 * time.Second})

	var wg sync.WaitGroup
	results := make([]JobsResult, 2)
	errs := make([]error, 2)
	start := time.Now()
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.DiscoverJobs(context.Background(), prospect.JobSearchConfig{
				Platforms:  []prospect.Platform{prospect.Indeed, prospect.Jobsora},
				Keywords:   []string{"web developer"},
				MaxResults: 10,
			}, nil)
		}(i)
	}
	wg.Wait()

	require.Less(t, time.Since(start), 5*time.Second, "runs must not wait for each other's budget")
	for i := range results {
		require.NoError(t, errs[i])
		require.NotEmpty(t, results[i].Jobs)
		for _, msg := range results[i].Errors {
			require.NotContains(t, msg, "budget exhausted")
		}
	}
	require.Empty(t, pool)
}
