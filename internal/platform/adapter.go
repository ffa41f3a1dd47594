// Package platform implements one job-board adapter per supported source
// behind a single Adapter interface.
package platform

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/OliWebDevO/clients-scraper/internal/prospect"
)

// Query is one adapter invocation. Every keyword is searched and every
// parsed title is matched against the whole list.
type Query struct {
	Keywords []string
	Location string
	// Page is zero-based; pass n asks for the n-th result page.
	Page int
}

// Result is what an adapter hands back. Err is set only when nothing was
// found and at least one fetch failed.
type Result struct {
	Jobs []prospect.JobPosting
	Err  string
}

// Adapter scrapes one job board.
type Adapter interface {
	ID() prospect.Platform
	Scrape(ctx context.Context, q Query) Result
}

// SessionKeeper is implemented by adapters that can keep a browser session
// open across calls. Close must be called once the caller is done.
type SessionKeeper interface {
	KeepAlive(on bool)
	Close() error
}

// Factory builds a fresh adapter instance.
type Factory func() Adapter

// Registry maps platforms to adapter factories. Each Resolve returns a new
// instance so concurrent runs never share a browser session.
type Registry struct {
	mu        sync.RWMutex
	factories map[prospect.Platform]Factory
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[prospect.Platform]Factory{}}
}

// Register adds or replaces the factory for id.
func (r *Registry) Register(id prospect.Platform, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[id] = factory
}

// Resolve returns a new adapter for id or an error if it is absent.
func (r *Registry) Resolve(id prospect.Platform) (Adapter, error) {
	r.mu.RLock()
	factory, ok := r.factories[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("platform %s is not registered", id)
	}
	return factory(), nil
}

// Platforms lists registered ids in stable order.
func (r *Registry) Platforms() []prospect.Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]prospect.Platform, 0, len(r.factories))
	for id := range r.factories {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
