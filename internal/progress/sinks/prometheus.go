package sinks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/OliWebDevO/clients-scraper/internal/progress"
)

// PrometheusSink exports run-level metrics: runs started, completed and
// running, run duration, items found and per-source errors.
type PrometheusSink struct {
	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runRuntime    *prometheus.HistogramVec
	itemsFound    *prometheus.CounterVec
	sourceErrors  *prometheus.CounterVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prospector_runs_started_total",
			Help: "Total discovery runs that have started.",
		}, []string{"kind"}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prospector_runs_completed_total",
			Help: "Total discovery runs finished, partitioned by kind and result.",
		}, []string{"kind", "result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "prospector_runs_running",
			Help: "Current number of running discovery runs.",
		}),
		runRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "prospector_run_runtime_seconds",
			Help:    "Wall time per finished run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 180, 300, 600},
		}, []string{"kind", "result"}),
		itemsFound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prospector_run_items_found_total",
			Help: "Prospects returned by completed runs.",
		}, []string{"kind"}),
		sourceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prospector_run_source_errors_total",
			Help: "Per-source failures attached to completed runs.",
		}, []string{"kind"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runRuntime,
		s.itemsFound,
		s.sourceErrors,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	kind := evt.Kind
	if kind == "" {
		kind = "unknown"
	}
	if s.tracker.start(evt.RunID, evt.TS) {
		s.runsStarted.WithLabelValues(kind).Inc()
		s.runsRunning.Inc()
	}
	if !evt.Type.Terminal() {
		return
	}
	result := "success"
	if evt.Type == progress.TypeError {
		result = "error"
	} else {
		s.itemsFound.WithLabelValues(kind).Add(float64(evt.ItemsFound))
		if len(evt.Errors) > 0 {
			s.sourceErrors.WithLabelValues(kind).Add(float64(len(evt.Errors)))
		}
	}
	s.runsCompleted.WithLabelValues(kind, result).Inc()
	if startedAt, ok := s.tracker.complete(evt.RunID); ok {
		s.runsRunning.Dec()
		if runtime := evt.TS.Sub(startedAt); runtime > 0 {
			s.runRuntime.WithLabelValues(kind, result).Observe(runtime.Seconds())
		}
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

// runTracker remembers start times of runs in flight. Terminal events are
// the last of their run, so finished runs are forgotten.
type runTracker struct {
	mu      sync.Mutex
	running map[uuid.UUID]time.Time
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[uuid.UUID]time.Time)}
}

// start reports whether id is seen for the first time.
func (t *runTracker) start(id uuid.UUID, at time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = at
	return true
}

func (t *runTracker) complete(id uuid.UUID) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	startedAt, ok := t.running[id]
	if !ok {
		return time.Time{}, false
	}
	delete(t.running, id)
	return startedAt, true
}
