package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// MaxRedirects is the number of redirect hops GuardedClient follows.
const MaxRedirects = 3

// ErrTooManyRedirects is returned when a chain exceeds MaxRedirects hops.
var ErrTooManyRedirects = errors.New("too many redirects")

// URLChecker vets a destination before it is contacted.
type URLChecker interface {
	Check(ctx context.Context, rawURL string) error
}

// GuardedClient follows redirects by hand so every hop is vetted before the
// request leaves the process.
type GuardedClient struct {
	fetcher Fetcher
	checker URLChecker
}

// NewGuardedClient wraps fetcher. The fetcher must not follow redirects itself.
func NewGuardedClient(fetcher Fetcher, checker URLChecker) *GuardedClient {
	return &GuardedClient{fetcher: fetcher, checker: checker}
}

// Get fetches rawURL, following up to MaxRedirects redirects. The returned
// Response carries the URL of the final hop.
func (c *GuardedClient) Get(ctx context.Context, rawURL string, headers http.Header) (Response, error) {
	current := rawURL
	for hop := 0; ; hop++ {
		if err := c.checker.Check(ctx, current); err != nil {
			return Response{}, fmt.Errorf("check %s: %w", current, err)
		}
		resp, err := c.fetcher.Fetch(ctx, Request{URL: current, Method: http.MethodGet, Headers: headers})
		if err != nil {
			return Response{}, err
		}
		if !isRedirect(resp.StatusCode) {
			if resp.URL == "" {
				resp.URL = current
			}
			return resp, nil
		}
		if hop >= MaxRedirects {
			return Response{}, &Error{URL: rawURL, Message: "redirect chain", Cause: ErrTooManyRedirects}
		}
		next, err := resolveLocation(current, resp.Headers.Get("Location"))
		if err != nil {
			return Response{}, &Error{URL: current, Message: "bad redirect", Cause: err}
		}
		current = next
	}
}

func isRedirect(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

func resolveLocation(base, location string) (string, error) {
	if location == "" {
		return "", errors.New("missing location header")
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base: %w", err)
	}
	ref, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("parse location: %w", err)
	}
	return baseURL.ResolveReference(ref).String(), nil
}
