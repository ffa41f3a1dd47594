// Package progress defines the events emitted by discovery runs.
package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Phase names a stage of a run.
type Phase string

// Supported phases, in run order. Job runs use PhaseScraping where business
// runs use PhaseSearching.
const (
	PhaseInit         Phase = "init"
	PhaseSearching    Phase = "searching"
	PhaseScraping     Phase = "scraping"
	PhaseExtracting   Phase = "extracting"
	PhaseAnalyzing    Phase = "analyzing"
	PhaseDescriptions Phase = "descriptions"
	PhaseSaving       Phase = "saving"
	PhaseDone         Phase = "done"
	PhaseError        Phase = "error"
)

var phaseRank = map[Phase]int{
	PhaseInit:         0,
	PhaseSearching:    1,
	PhaseScraping:     1,
	PhaseExtracting:   2,
	PhaseAnalyzing:    3,
	PhaseDescriptions: 4,
	PhaseSaving:       5,
	PhaseDone:         6,
	PhaseError:        7,
}

// Rank orders phases; unknown phases rank -1.
func (p Phase) Rank() int {
	r, ok := phaseRank[p]
	if !ok {
		return -1
	}
	return r
}

// Type tags an Event as intermediate or terminal.
type Type string

// Event types.
const (
	TypeProgress Type = "progress"
	TypeComplete Type = "complete"
	TypeError    Type = "error"
)

// Terminal reports whether the event ends its run's stream.
func (t Type) Terminal() bool {
	return t == TypeComplete || t == TypeError
}

// Event is one progress report of a run.
type Event struct {
	RunID uuid.UUID `json:"run_id"`
	// Kind is "jobs" or "businesses".
	Kind  string    `json:"kind"`
	TS    time.Time `json:"ts"`
	Type  Type      `json:"type"`
	Phase Phase     `json:"phase"`
	// Current and Total count work units within Phase.
	Current int `json:"current"`
	Total   int `json:"total"`
	// Progress is the run-wide percentage, 0 to 100.
	Progress int    `json:"progress"`
	Message  string `json:"message,omitempty"`
	// Item optionally names the business or platform being processed.
	Item string `json:"item,omitempty"`
	// ItemsFound and Errors are set on complete events. Complete events
	// always encode items_found, zero included.
	ItemsFound int      `json:"items_found,omitempty"`
	Errors     []string `json:"errors,omitempty"`
}

// MarshalJSON encodes e, keeping items_found on complete events.
func (e Event) MarshalJSON() ([]byte, error) {
	type plain Event
	if e.Type != TypeComplete {
		return json.Marshal(plain(e))
	}
	return json.Marshal(struct {
		plain
		ItemsFound int `json:"items_found"`
	}{plain: plain(e), ItemsFound: e.ItemsFound})
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == uuid.Nil {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	if e.Phase.Rank() < 0 {
		return fmt.Errorf("unknown phase %q", e.Phase)
	}
	switch e.Type {
	case TypeProgress:
	case TypeComplete:
		if e.Phase != PhaseDone {
			return errors.New("complete event requires done phase")
		}
	case TypeError:
		if e.Message == "" {
			return errors.New("error event requires message")
		}
	default:
		return fmt.Errorf("unknown type %q", e.Type)
	}
	if e.Progress < 0 || e.Progress > 100 {
		return fmt.Errorf("progress %d out of range", e.Progress)
	}
	if e.Current < 0 || e.Total < 0 {
		return errors.New("counts must be >= 0")
	}
	return nil
}
