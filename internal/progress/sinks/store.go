package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/OliWebDevO/clients-scraper/internal/progress"
	"github.com/OliWebDevO/clients-scraper/internal/store"
)

// StoreSink records run history via a store.RunRepository. Intermediate
// progress is not persisted; only the first event of a run and its terminal
// event produce writes.
type StoreSink struct {
	repo   store.RunRepository
	logger *zap.Logger

	mu      sync.Mutex
	started map[uuid.UUID]struct{}
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger, started: make(map[uuid.UUID]struct{})}
}

// Consume forwards run starts and outcomes to the repository. It respects
// ctx deadlines and returns the first repository error.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	for _, evt := range batch {
		if s.markStarted(evt.RunID) {
			if err := s.repo.StartRun(ctx, evt.RunID, store.RunKind(evt.Kind), evt.TS); err != nil {
				return fmt.Errorf("start run: %w", err)
			}
		}
		if !evt.Type.Terminal() {
			continue
		}
		if err := s.repo.CompleteRun(ctx, evt.RunID, outcomeOf(evt)); err != nil {
			return fmt.Errorf("complete run: %w", err)
		}
		s.forget(evt.RunID)
		s.logger.Debug("run recorded", zap.String("run_id", evt.RunID.String()), zap.String("type", string(evt.Type)))
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

func (s *StoreSink) markStarted(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.started[id]; ok {
		return false
	}
	s.started[id] = struct{}{}
	return true
}

func (s *StoreSink) forget(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.started, id)
}

func outcomeOf(evt progress.Event) store.RunOutcome {
	outcome := store.RunOutcome{
		FinishedAt: evt.TS,
		Status:     store.RunSuccess,
		ItemsFound: evt.ItemsFound,
		Errors:     evt.Errors,
	}
	if evt.Type == progress.TypeError {
		msg := evt.Message
		outcome.Status = store.RunError
		outcome.ErrorMessage = &msg
	}
	return outcome
}
