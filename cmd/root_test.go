package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/OliWebDevO/clients-scraper/internal/pipeline"
	"github.com/OliWebDevO/clients-scraper/internal/progress"
	"github.com/OliWebDevO/clients-scraper/internal/prospect"
)

var cliRunID = uuid.MustParse("01920000-0000-7000-8000-0000000000aa")

type fakeRunner struct {
	jobCfg prospect.JobSearchConfig
	bizCfg prospect.BusinessSearchConfig
	err    error
	closed bool
}

func (f *fakeRunner) DiscoverJobs(_ context.Context, cfg prospect.JobSearchConfig, emit progress.Emitter) (pipeline.JobsResult, error) {
	f.jobCfg = cfg
	if emit != nil {
		emit.Emit(progress.Event{
			RunID: cliRunID,
			Kind:  "jobs",
			TS:    time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
			Type:  progress.TypeProgress,
			Phase: progress.PhaseInit,
		})
	}
	if f.err != nil {
		return pipeline.JobsResult{}, f.err
	}
	return pipeline.JobsResult{RunID: cliRunID, Jobs: []prospect.JobPosting{{Title: "Web Developer", URL: "https://www.jobat.example/jobs/1"}}}, nil
}

func (f *fakeRunner) DiscoverBusinesses(_ context.Context, cfg prospect.BusinessSearchConfig, _ progress.Emitter) (pipeline.BusinessesResult, error) {
	f.bizCfg = cfg
	if f.err != nil {
		return pipeline.BusinessesResult{}, f.err
	}
	return pipeline.BusinessesResult{RunID: cliRunID}, nil
}

func (f *fakeRunner) Close(context.Context) error {
	f.closed = true
	return nil
}

// runCLI swaps in runner and executes the root command. Not parallel-safe:
// newApp is package state.
func runCLI(t *testing.T, runner *fakeRunner, args ...string) (string, string, error) {
	t.Helper()
	orig := newApp
	newApp = func(context.Context, string, bool) (Runner, error) { return runner, nil }
	t.Cleanup(func() { newApp = orig })

	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestJobsCommand(t *testing.T) {
	runner := &fakeRunner{}
	stdout, stderr, err := runCLI(t, runner,
		"jobs", "--platform", "linkedin,jobat", "-k", "web developer", "-k", "php", "--location", "Bruxelles", "-n", "15", "--progress")
	require.NoError(t, err)

	require.Equal(t, []prospect.Platform{prospect.LinkedIn, prospect.Jobat}, runner.jobCfg.Platforms)
	require.Equal(t, []string{"web developer", "php"}, runner.jobCfg.Keywords)
	require.Equal(t, "Bruxelles", runner.jobCfg.Location)
	require.Equal(t, 15, runner.jobCfg.MaxResults)
	require.True(t, runner.closed)

	var result pipeline.JobsResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &result))
	require.Equal(t, cliRunID, result.RunID)
	require.Len(t, result.Jobs, 1)

	var evt progress.Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(stderr)), &evt))
	require.Equal(t, progress.PhaseInit, evt.Phase)
}

func TestJobsCommandDefaultsToAllPlatforms(t *testing.T) {
	runner := &fakeRunner{}
	_, stderr, err := runCLI(t, runner, "jobs", "-k", "seo")
	require.NoError(t, err)
	require.Equal(t, prospect.Platforms(), runner.jobCfg.Platforms)
	require.Empty(t, stderr)
}

func TestJobsCommandRequiresKeyword(t *testing.T) {
	_, _, err := runCLI(t, &fakeRunner{}, "jobs")
	require.ErrorContains(t, err, `required flag(s) "keyword" not set`)
}

func TestBusinessesCommand(t *testing.T) {
	exclusions := filepath.Join(t.TempDir(), "known.txt")
	require.NoError(t, os.WriteFile(exclusions, []byte("# known\nChez Léon | Rue des Bouchers 18\n\n"), 0o600))

	runner := &fakeRunner{}
	_, _, err := runCLI(t, runner,
		"businesses", "--location", "Namur", "-c", "restaurant", "--min-rating", "4.2", "--exclude", exclusions)
	require.NoError(t, err)

	require.Equal(t, "Namur", runner.bizCfg.LocationQuery)
	require.Equal(t, []string{"restaurant"}, runner.bizCfg.Categories)
	require.NotNil(t, runner.bizCfg.MinRating)
	require.InDelta(t, 4.2, *runner.bizCfg.MinRating, 1e-9)
	require.Equal(t, []prospect.BusinessRef{{Name: "Chez Léon", Address: "Rue des Bouchers 18"}}, runner.bizCfg.ExcludeExisting)
}

func TestBusinessesCommandLeavesMinRatingUnset(t *testing.T) {
	runner := &fakeRunner{}
	_, _, err := runCLI(t, runner, "businesses", "-l", "Mons")
	require.NoError(t, err)
	require.Nil(t, runner.bizCfg.MinRating)
}

func TestCommandPropagatesRunErrors(t *testing.T) {
	runner := &fakeRunner{err: pipeline.ErrRateLimited}
	_, _, err := runCLI(t, runner, "businesses", "-l", "Mons")
	require.ErrorIs(t, err, pipeline.ErrRateLimited)
	require.True(t, runner.closed)
}

func TestInitFailure(t *testing.T) {
	orig := newApp
	newApp = func(context.Context, string, bool) (Runner, error) { return nil, errors.New("postgres down") }
	t.Cleanup(func() { newApp = orig })

	root := newRootCmd()
	root.SetArgs([]string{"jobs", "-k", "go"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	err := root.ExecuteContext(context.Background())
	require.ErrorContains(t, err, "failed to initialize application services: postgres down")
}

func TestParseExclusionsRejectsMalformedLines(t *testing.T) {
	_, err := parseExclusions(strings.NewReader("Chez Léon|Rue 1\nno separator\n"))
	require.ErrorContains(t, err, "exclusions line 2")
}
