package store

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/OliWebDevO/clients-scraper/internal/prospect"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// RunKind distinguishes the two discovery pipelines.
type RunKind string

// Run kinds.
const (
	KindJobs       RunKind = "jobs"
	KindBusinesses RunKind = "businesses"
)

// RunStatus mirrors the runs.status column.
type RunStatus string

// Run statuses persisted in runs.status.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// Run is one discovery invocation.
type Run struct {
	ID         uuid.UUID  `json:"id"`
	Kind       RunKind    `json:"kind"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     RunStatus  `json:"status"`
	ItemsFound int        `json:"items_found"`
	// Errors lists per-source failures of a run that still completed.
	Errors       []string `json:"errors,omitempty"`
	ErrorMessage *string  `json:"error_message,omitempty"`
}

// RunOutcome is what CompleteRun records.
type RunOutcome struct {
	FinishedAt   time.Time
	Status       RunStatus
	ItemsFound   int
	Errors       []string
	ErrorMessage *string
}

// RunRepository persists run history.
type RunRepository interface {
	// StartRun inserts (or idempotently updates) a running run.
	StartRun(ctx context.Context, id uuid.UUID, kind RunKind, startedAt time.Time) error
	// CompleteRun marks the run finished.
	CompleteRun(ctx context.Context, id uuid.UUID, outcome RunOutcome) error
	// GetRun loads a single run or returns ErrNotFound.
	GetRun(ctx context.Context, id uuid.UUID) (Run, error)
	// ListRuns returns runs, newest first, filtered by optional status.
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]Run, error)
}

// ProspectRepository is the persistence sink for discovered prospects.
type ProspectRepository interface {
	// UpsertJobs writes postings keyed by canonical URL.
	UpsertJobs(ctx context.Context, jobs []prospect.JobPosting) error
	// UpsertBusinesses writes businesses keyed by the (name, address) pair.
	UpsertBusinesses(ctx context.Context, businesses []prospect.Business) error
	// ExistingJobURLs returns URLs of postings stored at or after since.
	ExistingJobURLs(ctx context.Context, since time.Time) ([]string, error)
	// ExistingBusinessKeys returns prospect.BusinessKey values already stored.
	ExistingBusinessKeys(ctx context.Context) ([]string, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes run notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
