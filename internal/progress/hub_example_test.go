package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type exampleCountingSink struct {
	total int
}

func (s *exampleCountingSink) Consume(_ context.Context, batch []Event) error {
	s.total += len(batch)
	return nil
}

func (s *exampleCountingSink) Close(context.Context) error {
	return nil
}

// ExampleHub_Emit demonstrates emitting an event and flushing via Close.
func ExampleHub_Emit() {
	sink := &exampleCountingSink{}
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 1,
		MaxBatchWait:   time.Second,
	}, sink)

	hub.Emit(Event{
		RunID: uuid.MustParse("00000000-0000-0000-0000-000000000001"),
		TS:    time.Unix(0, 0),
		Type:  TypeProgress,
		Phase: PhaseInit,
	})
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("events forwarded: %d\n", sink.total)
	// Output:
	// events forwarded: 1
}

// ExampleSink implements a custom Sink that totals items found by completed runs.
func ExampleSink() {
	var found int
	capture := sinkFunc(func(_ context.Context, batch []Event) error {
		for _, evt := range batch {
			if evt.Type == TypeComplete {
				found += evt.ItemsFound
			}
		}
		return nil
	})
	hub := NewHub(Config{
		BufferSize:     2,
		MaxBatchEvents: 1,
		MaxBatchWait:   time.Second,
	}, capture)

	hub.Emit(Event{
		RunID:      uuid.MustParse("00000000-0000-0000-0000-000000000002"),
		TS:         time.Unix(0, 0),
		Type:       TypeComplete,
		Phase:      PhaseDone,
		Progress:   100,
		ItemsFound: 12,
	})
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("items found: %d\n", found)
	// Output:
	// items found: 12
}

// ExampleTracker shows how phase-local counts map onto run-wide percentages.
func ExampleTracker() {
	var events []Event
	tracker := NewTracker(
		uuid.MustParse("00000000-0000-0000-0000-000000000003"),
		"jobs",
		JobSpans,
		EmitterFunc(func(evt Event) { events = append(events, evt) }),
		func() time.Time { return time.Unix(0, 0) },
	)
	tracker.Report(PhaseInit, 0, 0, "starting", "")
	tracker.Report(PhaseScraping, 3, 6, "scraping", "ictjob")
	tracker.Report(PhaseDescriptions, 1, 2, "descriptions", "")
	tracker.Complete(5, nil, "done")

	for _, evt := range events {
		fmt.Printf("%s %s %d\n", evt.Type, evt.Phase, evt.Progress)
	}
	// Output:
	// progress init 0
	// progress scraping 32
	// progress descriptions 72
	// complete done 100
}

type sinkFunc func(context.Context, []Event) error

func (f sinkFunc) Consume(ctx context.Context, batch []Event) error {
	return f(ctx, batch)
}

func (sinkFunc) Close(context.Context) error {
	return nil
}
