package progress

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Span is the slice of the 0 to 100 range a phase occupies.
type Span struct {
	From int
	To   int
}

// JobSpans lays out a job run's phases.
var JobSpans = map[Phase]Span{
	PhaseInit:         {0, 5},
	PhaseScraping:     {5, 60},
	PhaseDescriptions: {60, 85},
	PhaseSaving:       {85, 99},
}

// BusinessSpans lays out a business run's phases.
var BusinessSpans = map[Phase]Span{
	PhaseInit:       {0, 5},
	PhaseSearching:  {5, 20},
	PhaseExtracting: {20, 60},
	PhaseAnalyzing:  {60, 90},
	PhaseSaving:     {90, 99},
}

// Tracker turns phase-local counts into an ordered event stream for one run.
// Reports for an earlier phase than the current one, and anything after a
// terminal event, are dropped; the percentage never decreases.
type Tracker struct {
	mu       sync.Mutex
	runID    uuid.UUID
	kind     string
	spans    map[Phase]Span
	emitter  Emitter
	now      func() time.Time
	phase    Phase
	progress int
	started  bool
	finished bool
}

// NewTracker builds a Tracker. A nil emitter discards events; a nil now uses
// time.Now.
func NewTracker(runID uuid.UUID, kind string, spans map[Phase]Span, emitter Emitter, now func() time.Time) *Tracker {
	if emitter == nil {
		emitter = Discard
	}
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		runID:   runID,
		kind:    kind,
		spans:   spans,
		emitter: emitter,
		now:     now,
		phase:   PhaseInit,
	}
}

// RunID returns the tracked run's ID.
func (t *Tracker) RunID() uuid.UUID {
	return t.runID
}

// Report emits a progress event for current of total units within phase.
func (t *Tracker) Report(phase Phase, current, total int, message, item string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished || phase.Rank() < 0 || phase == PhaseDone || phase == PhaseError {
		return
	}
	if t.started && phase.Rank() < t.phase.Rank() {
		return
	}
	t.started = true
	t.phase = phase
	if pct := t.percent(phase, current, total); pct > t.progress {
		t.progress = pct
	}
	if current < 0 {
		current = 0
	}
	if total < current {
		total = current
	}
	t.emit(Event{
		Type:    TypeProgress,
		Phase:   phase,
		Current: current,
		Total:   total,
		Message: message,
		Item:    item,
	})
}

// Complete emits the terminal complete event.
func (t *Tracker) Complete(itemsFound int, errs []string, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return
	}
	t.finished = true
	t.phase = PhaseDone
	t.progress = 100
	t.emit(Event{
		Type:       TypeComplete,
		Phase:      PhaseDone,
		Current:    itemsFound,
		Total:      itemsFound,
		Message:    message,
		ItemsFound: itemsFound,
		Errors:     append([]string(nil), errs...),
	})
}

// Fail emits the terminal error event.
func (t *Tracker) Fail(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return
	}
	if message == "" {
		message = "run failed"
	}
	t.finished = true
	t.phase = PhaseError
	t.emit(Event{
		Type:    TypeError,
		Phase:   PhaseError,
		Message: message,
	})
}

// Finished reports whether a terminal event was emitted.
func (t *Tracker) Finished() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finished
}

func (t *Tracker) percent(phase Phase, current, total int) int {
	span, ok := t.spans[phase]
	if !ok {
		return t.progress
	}
	if total <= 0 || current <= 0 {
		return span.From
	}
	if current > total {
		current = total
	}
	return span.From + (span.To-span.From)*current/total
}

func (t *Tracker) emit(evt Event) {
	evt.RunID = t.runID
	evt.Kind = t.kind
	evt.TS = t.now().UTC()
	evt.Progress = t.progress
	t.emitter.Emit(evt)
}
