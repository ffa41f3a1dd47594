package platform

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/OliWebDevO/clients-scraper/internal/browser"
	"github.com/OliWebDevO/clients-scraper/internal/fetch"
)

type fakeSession struct {
	closed    bool
	navigated []string
}

func (s *fakeSession) Navigate(_ context.Context, url string) error {
	s.navigated = append(s.navigated, url)
	return nil
}

func (s *fakeSession) WaitFor(context.Context, string, time.Duration) error {
	return errors.New("no results")
}

func (s *fakeSession) Evaluate(_ context.Context, _ string, out any) error {
	if p, ok := out.(*string); ok {
		*p = "<html><body>rendered</body></html>"
	}
	return nil
}

func (s *fakeSession) Scroll(context.Context, string, int) error { return nil }

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeLauncher struct {
	sessions []*fakeSession
	err      error
}

func (l *fakeLauncher) Launch(context.Context) (browser.Session, error) {
	if l.err != nil {
		return nil, l.err
	}
	s := &fakeSession{}
	l.sessions = append(l.sessions, s)
	return s, nil
}

func TestBrowserLoaderClosesWithoutKeepAlive(t *testing.T) {
	t.Parallel()

	launcher := &fakeLauncher{}
	loader := &BrowserLoader{Launcher: launcher, WaitSelector: ".results"}

	for i := 0; i < 2; i++ {
		html, err := loader.Load(context.Background(), "https://be.jobsora.com/emplois")
		require.NoError(t, err)
		require.Contains(t, html, "rendered")
	}
	require.Len(t, launcher.sessions, 2)
	for _, s := range launcher.sessions {
		require.True(t, s.closed)
	}
}

func TestBrowserLoaderKeepAliveReusesSession(t *testing.T) {
	t.Parallel()

	launcher := &fakeLauncher{}
	loader := &BrowserLoader{Launcher: launcher}
	loader.KeepAlive(true)

	for _, page := range []string{"?page=1", "?page=2", "?page=3"} {
		_, err := loader.Load(context.Background(), "https://be.indeed.com/jobs"+page)
		require.NoError(t, err)
	}
	require.Len(t, launcher.sessions, 1)
	require.Len(t, launcher.sessions[0].navigated, 3)
	require.False(t, launcher.sessions[0].closed)

	require.NoError(t, loader.Close())
	require.True(t, launcher.sessions[0].closed)
}

func TestBrowserLoaderLaunchFailure(t *testing.T) {
	t.Parallel()

	loader := &BrowserLoader{Launcher: &fakeLauncher{err: browser.ErrLaunch}}
	_, err := loader.Load(context.Background(), "https://be.indeed.com/jobs")
	require.ErrorIs(t, err, browser.ErrLaunch)
}

func TestDefaultRegistryResolvesAllPlatforms(t *testing.T) {
	t.Parallel()

	reg := DefaultRegistry(Deps{Launcher: &fakeLauncher{}})
	require.Len(t, reg.Platforms(), 6)

	a, err := reg.Resolve("indeed")
	require.NoError(t, err)
	b, err := reg.Resolve("indeed")
	require.NoError(t, err)
	require.NotSame(t, a, b)
	_, ok := a.(SessionKeeper)
	require.True(t, ok)

	_, err = reg.Resolve("monster")
	require.Error(t, err)
}

func TestHTTPLoaderFollowsBoardRedirect(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/search" {
			http.Redirect(w, r, "/search/", http.StatusMovedPermanently)
			return
		}
		_, _ = io.WriteString(w, "<html><body>offres</body></html>")
	}))
	defer srv.Close()

	loader := HTTPLoader{Fetcher: fetch.NewColly(fetch.CollyConfig{Timeout: 2 * time.Second, FollowRedirects: true})}
	html, err := loader.Load(context.Background(), srv.URL+"/search")
	require.NoError(t, err)
	require.Contains(t, html, "offres")
}

func TestHTTPLoaderRejectsErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	loader := HTTPLoader{Fetcher: fetch.NewColly(fetch.CollyConfig{Timeout: 2 * time.Second, FollowRedirects: true})}
	_, err := loader.Load(context.Background(), srv.URL)
	var fetchErr *fetch.Error
	require.ErrorAs(t, err, &fetchErr)
	require.Contains(t, fetchErr.Message, "403")
}
