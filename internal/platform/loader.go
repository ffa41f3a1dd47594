package platform

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/OliWebDevO/clients-scraper/internal/browser"
	"github.com/OliWebDevO/clients-scraper/internal/fetch"
)

// PageLoader returns the HTML of a result page, however it has to be obtained.
type PageLoader interface {
	Load(ctx context.Context, url string) (string, error)
}

// HTTPLoader loads pages with a plain request.
type HTTPLoader struct {
	Fetcher fetch.Fetcher
	Headers http.Header
}

// Load fetches url and fails on non-2xx statuses.
func (l HTTPLoader) Load(ctx context.Context, url string) (string, error) {
	resp, err := l.Fetcher.Fetch(ctx, fetch.Request{URL: url, Headers: l.Headers})
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", &fetch.Error{URL: url, Message: fmt.Sprintf("HTTP status %d", resp.StatusCode)}
	}
	return string(resp.Body), nil
}

// BrowserLoader renders pages in a browser session. With keep-alive on the
// session survives between loads so pagination does not relaunch Chrome.
type BrowserLoader struct {
	Launcher browser.Launcher
	// WaitSelector marks a rendered result list. A timeout waiting for it
	// is not an error: the page may simply have no results.
	WaitSelector string
	WaitTimeout  time.Duration
	Settle       time.Duration

	mu        sync.Mutex
	session   browser.Session
	keepAlive bool
}

// Load navigates to url and returns the rendered document.
func (l *BrowserLoader) Load(ctx context.Context, url string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.session == nil {
		session, err := l.Launcher.Launch(ctx)
		if err != nil {
			return "", err
		}
		l.session = session
	}
	if !l.keepAlive {
		defer l.closeLocked()
	}

	if err := l.session.Navigate(ctx, url); err != nil {
		return "", err
	}
	if l.WaitSelector != "" {
		timeout := l.WaitTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		_ = l.session.WaitFor(ctx, l.WaitSelector, timeout)
	}
	if err := browser.Sleep(ctx, l.Settle); err != nil {
		return "", err
	}
	return browser.OuterHTML(ctx, l.session)
}

// KeepAlive toggles session reuse. Turning it off closes any open session.
func (l *BrowserLoader) KeepAlive(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keepAlive = on
	if !on {
		_ = l.closeLocked()
	}
}

// Close releases the session.
func (l *BrowserLoader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeLocked()
}

func (l *BrowserLoader) closeLocked() error {
	if l.session == nil {
		return nil
	}
	err := l.session.Close()
	l.session = nil
	return err
}
