// Package fetch issues outbound HTTP requests for adapters, the website
// analyzer and the description enricher.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout bounds a single request when the caller sets none.
const DefaultTimeout = 15 * time.Second

// DefaultUserAgent mimics a desktop browser; several boards serve an empty
// shell to unknown agents.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

// Request describes one outbound call.
type Request struct {
	URL     string
	Method  string
	Body    io.Reader
	Headers http.Header
}

// Response captures what came back. Redirects are not followed, so a 3xx
// status is returned as-is with its Location header.
type Response struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// OK reports a 2xx status.
func (r Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Fetcher performs a single request without following redirects.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (Response, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, req Request) (Response, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// Waiter delays a request until the target host may be contacted again.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Error represents an error during URL fetching.
type Error struct {
	URL     string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch error for %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("fetch error for %s: %s", e.URL, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// BrowserHeaders returns request headers resembling a desktop browser
// navigation in a Belgian locale.
func BrowserHeaders() http.Header {
	return http.Header{
		"User-Agent":      {DefaultUserAgent},
		"Accept":          {"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"},
		"Accept-Language": {"fr-BE,fr;q=0.9,en-US;q=0.8,en;q=0.7,nl;q=0.6"},
		"Cache-Control":   {"no-cache"},
		"Pragma":          {"no-cache"},
	}
}

// MergeHeaders returns base overlaid with extra.
func MergeHeaders(base, extra http.Header) http.Header {
	out := base.Clone()
	if out == nil {
		out = http.Header{}
	}
	for key, values := range extra {
		out[http.CanonicalHeaderKey(key)] = append([]string(nil), values...)
	}
	return out
}
