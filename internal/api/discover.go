package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/OliWebDevO/clients-scraper/internal/pipeline"
	"github.com/OliWebDevO/clients-scraper/internal/progress"
	"github.com/OliWebDevO/clients-scraper/internal/prospect"
)

const (
	ndjsonContentType = "application/x-ndjson"
	maxRequestBody    = 1 << 20
)

// Discoverer runs discoveries. *pipeline.Controller satisfies it.
type Discoverer interface {
	DiscoverJobs(ctx context.Context, cfg prospect.JobSearchConfig, emit progress.Emitter) (pipeline.JobsResult, error)
	DiscoverBusinesses(ctx context.Context, cfg prospect.BusinessSearchConfig, emit progress.Emitter) (pipeline.BusinessesResult, error)
}

// DiscoverHandler serves the two discovery entry points, either awaited
// (one JSON response) or streamed as NDJSON progress events.
type DiscoverHandler struct {
	discoverer Discoverer
	logger     *zap.Logger
}

// NewDiscoverHandler builds a DiscoverHandler.
func NewDiscoverHandler(discoverer Discoverer, logger *zap.Logger) *DiscoverHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DiscoverHandler{discoverer: discoverer, logger: logger}
}

// Jobs handles POST /v1/discover/jobs.
func (h *DiscoverHandler) Jobs(w http.ResponseWriter, r *http.Request) {
	var cfg prospect.JobSearchConfig
	if !decodeBody(w, r, &cfg) {
		return
	}
	serve(w, r, h.logger, func(ctx context.Context, emit progress.Emitter) (any, error) {
		return h.discoverer.DiscoverJobs(ctx, cfg, emit)
	})
}

// Businesses handles POST /v1/discover/businesses.
func (h *DiscoverHandler) Businesses(w http.ResponseWriter, r *http.Request) {
	var cfg prospect.BusinessSearchConfig
	if !decodeBody(w, r, &cfg) {
		return
	}
	serve(w, r, h.logger, func(ctx context.Context, emit progress.Emitter) (any, error) {
		return h.discoverer.DiscoverBusinesses(ctx, cfg, emit)
	})
}

type runFunc func(ctx context.Context, emit progress.Emitter) (any, error)

func serve(w http.ResponseWriter, r *http.Request, logger *zap.Logger, run runFunc) {
	if !wantsStream(r) {
		result, err := run(r.Context(), nil)
		if err != nil {
			writeRunError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	stream := newEventStream(w)
	result, err := run(r.Context(), stream)
	if err != nil && !stream.Started() {
		// Nothing but the terminal error was produced, so the failure can
		// still be reported with a proper status code.
		writeRunError(w, logger, err)
		return
	}
	if err == nil {
		stream.Result(result)
	}
	if flushErr := stream.Finish(); flushErr != nil {
		logger.Debug("stream closed by client", zap.Error(flushErr))
	}
}

func writeRunError(w http.ResponseWriter, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, pipeline.ErrInvalidConfig):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, pipeline.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		logger.Error("discovery failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

func wantsStream(r *http.Request) bool {
	switch strings.ToLower(r.URL.Query().Get("stream")) {
	case "1", "true", "yes":
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), ndjsonContentType)
}

// eventStream writes progress events as NDJSON lines. The terminal event is
// held back so the result line can precede it, and so that a run which only
// ever produced its terminal error can still be answered with a status code.
type eventStream struct {
	mu       sync.Mutex
	w        http.ResponseWriter
	enc      *json.Encoder
	flusher  http.Flusher
	started  bool
	terminal *progress.Event
	err      error
}

func newEventStream(w http.ResponseWriter) *eventStream {
	flusher, _ := w.(http.Flusher)
	return &eventStream{w: w, enc: json.NewEncoder(w), flusher: flusher}
}

// Emit implements progress.Emitter.
func (s *eventStream) Emit(evt progress.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if evt.Type.Terminal() {
		s.terminal = &evt
		return
	}
	s.writeLocked(evt)
}

// Started reports whether any line has been written.
func (s *eventStream) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

type resultLine struct {
	Type   string `json:"type"`
	Result any    `json:"result"`
}

// Result writes the run's records ahead of the terminal event.
func (s *eventStream) Result(result any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeLocked(resultLine{Type: "result", Result: result})
}

// Finish writes the held terminal event and returns the first write error.
func (s *eventStream) Finish() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminal != nil {
		s.writeLocked(*s.terminal)
		s.terminal = nil
	}
	return s.err
}

func (s *eventStream) writeLocked(v any) {
	if s.err != nil {
		return
	}
	if !s.started {
		s.w.Header().Set("Content-Type", ndjsonContentType)
		s.w.Header().Set("Cache-Control", "no-cache")
		s.w.Header().Set("X-Content-Type-Options", "nosniff")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	if err := s.enc.Encode(v); err != nil {
		s.err = err
		return
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
}
