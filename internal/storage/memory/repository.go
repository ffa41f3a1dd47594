package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/OliWebDevO/clients-scraper/internal/prospect"
	"github.com/OliWebDevO/clients-scraper/internal/store"
)

// Repository is an in-memory store.ProspectRepository and store.RunRepository
// for development and tests.
type Repository struct {
	mu         sync.RWMutex
	jobs       map[string]storedJob
	businesses map[string]prospect.Business
	runs       map[uuid.UUID]store.Run
	now        func() time.Time
}

type storedJob struct {
	job       prospect.JobPosting
	createdAt time.Time
}

// NewRepository constructs an empty Repository.
func NewRepository() *Repository {
	return &Repository{
		jobs:       make(map[string]storedJob),
		businesses: make(map[string]prospect.Business),
		runs:       make(map[uuid.UUID]store.Run),
		now:        time.Now,
	}
}

// UpsertJobs stores postings keyed by URL, keeping the first-seen time.
func (r *Repository) UpsertJobs(_ context.Context, jobs []prospect.JobPosting) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	for _, job := range jobs {
		existing, ok := r.jobs[job.URL]
		if !ok {
			r.jobs[job.URL] = storedJob{job: job, createdAt: now}
			continue
		}
		if job.Description == nil {
			job.Description = existing.job.Description
		}
		existing.job = job
		r.jobs[job.URL] = existing
	}
	return nil
}

// UpsertBusinesses stores businesses keyed by their identity.
func (r *Repository) UpsertBusinesses(_ context.Context, businesses []prospect.Business) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range businesses {
		r.businesses[b.Key()] = b
	}
	return nil
}

// ExistingJobURLs returns URLs first stored at or after since.
func (r *Repository) ExistingJobURLs(_ context.Context, since time.Time) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for url, stored := range r.jobs {
		if !stored.createdAt.Before(since) {
			out = append(out, url)
		}
	}
	sort.Strings(out)
	return out, nil
}

// ExistingBusinessKeys returns every stored identity key.
func (r *Repository) ExistingBusinessKeys(context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.businesses))
	for key := range r.businesses {
		out = append(out, key)
	}
	sort.Strings(out)
	return out, nil
}

// Jobs returns a copy of the stored postings ordered by URL.
func (r *Repository) Jobs() []prospect.JobPosting {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]prospect.JobPosting, 0, len(r.jobs))
	for _, stored := range r.jobs {
		out = append(out, stored.job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

// Businesses returns a copy of the stored businesses ordered by identity.
func (r *Repository) Businesses() []prospect.Business {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]prospect.Business, 0, len(r.businesses))
	for _, b := range r.businesses {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// StartRun records a running run once.
func (r *Repository) StartRun(_ context.Context, id uuid.UUID, kind store.RunKind, startedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[id]; ok {
		return nil
	}
	r.runs[id] = store.Run{ID: id, Kind: kind, StartedAt: startedAt.UTC(), Status: store.RunRunning}
	return nil
}

// CompleteRun records the outcome of a known run.
func (r *Repository) CompleteRun(_ context.Context, id uuid.UUID, outcome store.RunOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return store.ErrNotFound
	}
	finished := outcome.FinishedAt.UTC()
	run.FinishedAt = &finished
	run.Status = outcome.Status
	run.ItemsFound = outcome.ItemsFound
	run.Errors = append([]string(nil), outcome.Errors...)
	run.ErrorMessage = outcome.ErrorMessage
	r.runs[id] = run
	return nil
}

// GetRun loads one run.
func (r *Repository) GetRun(_ context.Context, id uuid.UUID) (store.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return store.Run{}, store.ErrNotFound
	}
	return run, nil
}

// ListRuns returns runs newest first.
func (r *Repository) ListRuns(_ context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var runs []store.Run
	for _, run := range r.runs {
		if status != nil && run.Status != *status {
			continue
		}
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	if offset >= len(runs) {
		return nil, nil
	}
	runs = runs[offset:]
	if limit > 0 && limit < len(runs) {
		runs = runs[:limit]
	}
	return runs, nil
}
