package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/OliWebDevO/clients-scraper/internal/prospect"
	"github.com/OliWebDevO/clients-scraper/internal/store"
)

func TestRepositoryJobWindowAndDescriptionKept(t *testing.T) {
	t.Parallel()

	repo := NewRepository()
	ctx := context.Background()
	day := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	desc := "Rejoignez notre équipe de développement web à Liège."

	repo.now = func() time.Time { return day }
	require.NoError(t, repo.UpsertJobs(ctx, []prospect.JobPosting{{Title: "Dev", URL: "https://a/1", Description: &desc}}))
	repo.now = func() time.Time { return day.AddDate(0, 0, 45) }
	require.NoError(t, repo.UpsertJobs(ctx, []prospect.JobPosting{
		{Title: "Dev (refreshed)", URL: "https://a/1"},
		{Title: "Other", URL: "https://a/2"},
	}))

	urls, err := repo.ExistingJobURLs(ctx, day.AddDate(0, 0, 30))
	require.NoError(t, err)
	require.Equal(t, []string{"https://a/2"}, urls)

	jobs := repo.Jobs()
	require.Len(t, jobs, 2)
	require.Equal(t, "Dev (refreshed)", jobs[0].Title)
	require.Equal(t, desc, *jobs[0].Description)
}

func TestRepositoryBusinessesAndRuns(t *testing.T) {
	t.Parallel()

	repo := NewRepository()
	ctx := context.Background()
	require.NoError(t, repo.UpsertBusinesses(ctx, []prospect.Business{
		{Name: "Boulangerie Dupont", Address: "Rue Haute 1"},
		{Name: "boulangerie dupont", Address: "rue haute 1"},
	}))
	keys, err := repo.ExistingBusinessKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	require.Len(t, repo.Businesses(), 1)

	older, newer := uuid.New(), uuid.New()
	start := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, repo.StartRun(ctx, older, store.KindJobs, start))
	require.NoError(t, repo.StartRun(ctx, newer, store.KindBusinesses, start.Add(time.Hour)))
	require.NoError(t, repo.CompleteRun(ctx, older, store.RunOutcome{FinishedAt: start.Add(time.Minute), Status: store.RunSuccess, ItemsFound: 3}))
	require.ErrorIs(t, repo.CompleteRun(ctx, uuid.New(), store.RunOutcome{}), store.ErrNotFound)

	runs, err := repo.ListRuns(ctx, nil, 0, 0)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{newer, older}, []uuid.UUID{runs[0].ID, runs[1].ID})

	success := store.RunSuccess
	runs, err = repo.ListRuns(ctx, &success, 10, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, 3, runs[0].ItemsFound)

	runs, err = repo.ListRuns(ctx, nil, 10, 5)
	require.NoError(t, err)
	require.Empty(t, runs)

	_, err = repo.GetRun(ctx, uuid.New())
	require.ErrorIs(t, err, store.ErrNotFound)
}
