package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"
)

type stubHooks struct {
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) { s.onResponse = cb }
func (s *stubHooks) OnError(cb colly.ErrorCallback)       { s.onError = cb }

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := NewColly(CollyConfig{})
	var result Response
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, time.Now(), &result, &fetchErr)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	u, err := url.Parse("https://www.jobat.be/fr/emplois")
	require.NoError(t, err)
	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusCreated,
		Body:       []byte("body"),
		Headers:    &http.Header{"X-Resp": {"ok"}},
		Request:    &colly.Request{URL: u},
	})
	require.Equal(t, http.StatusCreated, result.StatusCode)
	require.Equal(t, "body", string(result.Body))
	require.Equal(t, "ok", result.Headers.Get("X-Resp"))

	hooks.onError(nil, errors.New("boom"))
	require.EqualError(t, fetchErr, "boom")
}

func TestCollyFetcherDoesNotFollowRedirects(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/old" {
			http.Redirect(w, r, "/new", http.StatusMovedPermanently)
			return
		}
		_, _ = io.WriteString(w, "<html>new</html>")
	}))
	defer srv.Close()

	f := NewColly(CollyConfig{Timeout: 2 * time.Second})
	resp, err := f.Fetch(context.Background(), Request{URL: srv.URL + "/old"})
	require.NoError(t, err)
	require.Equal(t, http.StatusMovedPermanently, resp.StatusCode)
	require.Equal(t, "/new", resp.Headers.Get("Location"))
}

func TestCollyFetcherFollowsRedirectsWhenAsked(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search":
			http.Redirect(w, r, "/search/", http.StatusMovedPermanently)
		case "/loop":
			http.Redirect(w, r, "/loop", http.StatusFound)
		default:
			_, _ = io.WriteString(w, "<html>results</html>")
		}
	}))
	defer srv.Close()

	f := NewColly(CollyConfig{Timeout: 2 * time.Second, FollowRedirects: true})
	resp, err := f.Fetch(context.Background(), Request{URL: srv.URL + "/search"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "<html>results</html>", string(resp.Body))

	_, err = f.Fetch(context.Background(), Request{URL: srv.URL + "/loop"})
	require.ErrorIs(t, err, ErrTooManyRedirects)
}

func TestCollyFetcherPostAndErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		body, _ := io.ReadAll(r.Body)
		if r.Header.Get("Content-Type") != "application/json" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	f := NewColly(CollyConfig{Timeout: 2 * time.Second})
	resp, err := f.Fetch(context.Background(), Request{
		URL:     srv.URL,
		Method:  http.MethodPost,
		Body:    strings.NewReader(`{"q":"go"}`),
		Headers: http.Header{"Content-Type": {"application/json"}},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusTeapot, resp.StatusCode)
	require.False(t, resp.OK())
	require.JSONEq(t, `{"q":"go"}`, string(resp.Body))
}

type countingWaiter struct{ calls int }

func (w *countingWaiter) Wait(context.Context, string) error {
	w.calls++
	return nil
}

func TestCollyFetcherConsultsWaiter(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	waiter := &countingWaiter{}
	f := NewColly(CollyConfig{Waiter: waiter})
	for i := 0; i < 2; i++ {
		resp, err := f.Fetch(context.Background(), Request{URL: srv.URL})
		require.NoError(t, err)
		require.True(t, resp.OK())
	}
	require.Equal(t, 2, waiter.calls)
}
