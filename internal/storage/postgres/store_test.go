package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/OliWebDevO/clients-scraper/internal/prospect"
	"github.com/OliWebDevO/clients-scraper/internal/store"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	s, err := NewWithPool(mock)
	require.NoError(t, err)
	return s, mock
}

func anyArgs(n int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = pgxmock.AnyArg()
	}
	return out
}

func TestUpsertJobsWritesInOneTransaction(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	posted := time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)
	salary := "€3.500"
	jobs := []prospect.JobPosting{
		{
			Title:           "Développeur Web",
			Company:         "Acme",
			Location:        "Bruxelles",
			Salary:          &salary,
			URL:             "https://www.ictjob.be/fr/offre/1",
			Source:          prospect.ICTJob,
			KeywordsMatched: []string{"développeur web"},
			PostedAt:        &posted,
		},
		{Title: "Web Dev", URL: "https://be.indeed.com/viewjob?jk=2", Source: prospect.Indeed},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO job_postings").
		WithArgs(
			jobs[0].URL,
			jobs[0].Title,
			"Acme",
			"Bruxelles",
			&salary,
			(*string)(nil),
			"ictjob",
			[]byte(`["développeur web"]`),
			&posted,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO job_postings").
		WithArgs(anyArgs(9)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, s.UpsertJobs(context.Background(), jobs))
	require.NoError(t, s.UpsertJobs(context.Background(), nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBusinessesRollsBackOnError(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	b := prospect.Business{Name: "Chez Léon", Address: "Rue des Bouchers 18"}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO businesses").
		WithArgs(anyArgs(14)...).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := s.UpsertBusinesses(context.Background(), []prospect.Business{b})
	require.ErrorContains(t, err, "connection reset")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExistingIdentities(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	since := time.Date(2026, 9, 18, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT url FROM job_postings").
		WithArgs(since).
		WillReturnRows(mock.NewRows([]string{"url"}).AddRow("https://a.example/1").AddRow("https://a.example/2"))
	mock.ExpectQuery("SELECT identity_key FROM businesses").
		WillReturnRows(mock.NewRows([]string{"identity_key"}).AddRow("chez léon|rue des bouchers 18"))

	urls, err := s.ExistingJobURLs(context.Background(), since)
	require.NoError(t, err)
	require.Equal(t, []string{"https://a.example/1", "https://a.example/2"}, urls)

	keys, err := s.ExistingBusinessKeys(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"chez léon|rue des bouchers 18"}, keys)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunLifecycle(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	id := uuid.New()
	started := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	finished := started.Add(2 * time.Minute)

	mock.ExpectExec("INSERT INTO runs").
		WithArgs(id, "jobs", started, "running").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE runs").
		WithArgs(id, finished, "success", 4, []byte(`["jobat: 503"]`), (*string)(nil)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE runs").
		WithArgs(anyArgs(6)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ctx := context.Background()
	require.NoError(t, s.StartRun(ctx, id, store.KindJobs, started))
	require.NoError(t, s.CompleteRun(ctx, id, store.RunOutcome{
		FinishedAt: finished,
		Status:     store.RunSuccess,
		ItemsFound: 4,
		Errors:     []string{"jobat: 503"},
	}))
	err := s.CompleteRun(ctx, uuid.New(), store.RunOutcome{FinishedAt: finished, Status: store.RunError})
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAndListRuns(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	id := uuid.New()
	started := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	finished := started.Add(time.Minute)
	msg := "browser launch failed"
	columns := []string{"id", "kind", "started_at", "finished_at", "status", "items_found", "errors", "error_message"}

	mock.ExpectQuery("FROM runs WHERE id").
		WithArgs(id).
		WillReturnRows(mock.NewRows(columns).
			AddRow(id, "businesses", started, &finished, "error", 0, []byte(`[]`), &msg))
	mock.ExpectQuery("FROM runs WHERE id").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(mock.NewRows(columns))

	status := store.RunError
	filter := "error"
	mock.ExpectQuery("ORDER BY started_at DESC").
		WithArgs(&filter, 10, 0).
		WillReturnRows(mock.NewRows(columns).
			AddRow(id, "businesses", started, &finished, "error", 0, []byte(`[]`), &msg))

	ctx := context.Background()
	run, err := s.GetRun(ctx, id)
	require.NoError(t, err)
	require.Equal(t, store.KindBusinesses, run.Kind)
	require.Equal(t, store.RunError, run.Status)
	require.Equal(t, finished, *run.FinishedAt)
	require.Equal(t, msg, *run.ErrorMessage)
	require.Empty(t, run.Errors)

	_, err = s.GetRun(ctx, uuid.New())
	require.ErrorIs(t, err, store.ErrNotFound)

	runs, err := s.ListRuns(ctx, &status, 10, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, id, runs[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateAppliesSchema(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS businesses").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPingWrapsPoolError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	s, err := NewWithPool(mock)
	require.NoError(t, err)

	mock.ExpectPing()
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	require.NoError(t, s.Ping(context.Background()))
	err = s.Ping(context.Background())
	require.ErrorContains(t, err, "ping postgres: connection refused")
	require.NoError(t, mock.ExpectationsWereMet())
}
