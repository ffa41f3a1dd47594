package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/OliWebDevO/clients-scraper/internal/metrics"
)

// CollyConfig controls collector behavior.
type CollyConfig struct {
	UserAgent string
	Timeout   time.Duration
	// MaxBodyBytes caps how much of a response is read; zero keeps colly's default.
	MaxBodyBytes int
	// Dial replaces the transport dialer, e.g. with netguard's address check.
	Dial func(ctx context.Context, network, addr string) (net.Conn, error)
	// Waiter, when set, is consulted before every request.
	Waiter Waiter
	// FollowRedirects lets colly follow redirects itself. Leave it off when
	// each hop must be vetted by GuardedClient; Dial still screens every
	// connection either way.
	FollowRedirects bool
}

// CollyFetcher implements Fetcher using the Colly collector.
type CollyFetcher struct {
	cfg           CollyConfig
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// NewColly builds a CollyFetcher.
func NewColly(cfg CollyConfig) *CollyFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	c := colly.NewCollector(colly.Async(false))
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = true
	c.ParseHTTPErrorResponse = true
	c.UserAgent = cfg.UserAgent
	if cfg.MaxBodyBytes > 0 {
		c.MaxBodySize = cfg.MaxBodyBytes
	}
	c.WithTransport(newHTTPTransport(cfg.Dial))
	c.SetRequestTimeout(cfg.Timeout)
	if cfg.FollowRedirects {
		c.SetRedirectHandler(func(_ *http.Request, via []*http.Request) error {
			if len(via) > MaxRedirects {
				return ErrTooManyRedirects
			}
			return nil
		})
	} else {
		// Redirects are surfaced to the caller so each hop can be validated.
		c.SetRedirectHandler(func(_ *http.Request, _ []*http.Request) error {
			return http.ErrUseLastResponse
		})
	}

	return &CollyFetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Fetch executes a single request using Colly.
func (f *CollyFetcher) Fetch(ctx context.Context, request Request) (Response, error) {
	if f.cfg.Waiter != nil {
		if err := f.cfg.Waiter.Wait(ctx, request.URL); err != nil {
			return Response{}, &Error{URL: request.URL, Message: "rate limit", Cause: err}
		}
	}

	var (
		result   Response
		fetchErr error
	)
	start := time.Now()
	collector := f.baseCollector.Clone()
	collector.AllowURLRevisit = true
	collector.ParseHTTPErrorResponse = true
	collector.Context = ctx
	f.configureCollectorHooks(collector, start, &result, &fetchErr)

	err := f.runCollector(ctx, collector, request, &fetchErr)
	if err != nil {
		metrics.ObserveFetch(request.URL, 0, 0, time.Since(start))
		return Response{}, &Error{URL: request.URL, Message: "request failed", Cause: err}
	}
	metrics.ObserveFetch(request.URL, result.StatusCode, len(result.Body), result.Duration)
	return result, nil
}

func (f *CollyFetcher) configureCollectorHooks(
	hooks collectorHooks,
	start time.Time,
	result *Response,
	fetchErr *error,
) {
	hooks.OnResponse(func(r *colly.Response) {
		var headers http.Header
		if r.Headers != nil {
			headers = r.Headers.Clone()
		}
		*result = Response{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    headers,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (f *CollyFetcher) runCollector(ctx context.Context, collector *colly.Collector, request Request, fetchErr *error) error {
	method := request.Method
	if method == "" {
		method = http.MethodGet
	}
	headers := MergeHeaders(BrowserHeaders(), request.Headers)
	headers.Set("User-Agent", f.cfg.UserAgent)

	done := make(chan error, 1)
	go func() {
		done <- collector.Request(method, request.URL, request.Body, nil, headers)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil && !errors.Is(err, http.ErrUseLastResponse) {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport(dial func(ctx context.Context, network, addr string) (net.Conn, error)) *http.Transport {
	proxy := http.ProxyFromEnvironment
	if dial == nil {
		dial = (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext
	} else {
		// A proxy would hide the real destination from the dial check.
		proxy = nil
	}
	return &http.Transport{
		Proxy:                 proxy,
		DialContext:           dial,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
