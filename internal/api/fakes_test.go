package api

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/OliWebDevO/clients-scraper/internal/pipeline"
	"github.com/OliWebDevO/clients-scraper/internal/progress"
	"github.com/OliWebDevO/clients-scraper/internal/prospect"
)

var testRunID = uuid.MustParse("01920000-0000-7000-8000-000000000001")

// fakeDiscoverer replays a scripted event sequence, then returns result/err.
type fakeDiscoverer struct {
	mu         sync.Mutex
	events     []progress.Event
	jobs       pipeline.JobsResult
	businesses pipeline.BusinessesResult
	err        error
	jobCfg     prospect.JobSearchConfig
	bizCfg     prospect.BusinessSearchConfig
}

func (f *fakeDiscoverer) DiscoverJobs(_ context.Context, cfg prospect.JobSearchConfig, emit progress.Emitter) (pipeline.JobsResult, error) {
	f.mu.Lock()
	f.jobCfg = cfg
	f.mu.Unlock()
	f.replay(emit)
	if f.err != nil {
		return pipeline.JobsResult{}, f.err
	}
	return f.jobs, nil
}

func (f *fakeDiscoverer) DiscoverBusinesses(_ context.Context, cfg prospect.BusinessSearchConfig, emit progress.Emitter) (pipeline.BusinessesResult, error) {
	f.mu.Lock()
	f.bizCfg = cfg
	f.mu.Unlock()
	f.replay(emit)
	if f.err != nil {
		return pipeline.BusinessesResult{}, f.err
	}
	return f.businesses, nil
}

func (f *fakeDiscoverer) replay(emit progress.Emitter) {
	if emit == nil {
		return
	}
	for _, evt := range f.events {
		emit.Emit(evt)
	}
}

func event(typ progress.Type, phase progress.Phase, pct int) progress.Event {
	return progress.Event{
		RunID:    testRunID,
		Kind:     "jobs",
		TS:       time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Type:     typ,
		Phase:    phase,
		Progress: pct,
	}
}
