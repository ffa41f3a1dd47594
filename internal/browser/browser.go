// Package browser drives a headless Chrome through a narrow session
// interface so crawl logic can be exercised against a fake.
package browser

import (
	"context"
	"errors"
	"time"
)

// ErrLaunch is returned when the browser process cannot be started.
var ErrLaunch = errors.New("browser launch failed")

// ErrNoSlot is returned when every browser slot stayed busy for a full
// navigation timeout.
var ErrNoSlot = errors.New("no browser slot available")

// Session is one browser tab owned by a single crawl or adapter.
type Session interface {
	// Navigate loads url and waits for the document body.
	Navigate(ctx context.Context, url string) error
	// WaitFor blocks until selector is visible or timeout elapses.
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error
	// Evaluate runs script and decodes its JSON result into out. A nil out
	// discards the result.
	Evaluate(ctx context.Context, script string, out any) error
	// Scroll scrolls the element matching selector by px pixels, or the
	// window when nothing matches.
	Scroll(ctx context.Context, selector string, px int) error
	Close() error
}

// Launcher starts sessions.
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

// OuterHTML returns the rendered document.
func OuterHTML(ctx context.Context, s Session) (string, error) {
	var html string
	if err := s.Evaluate(ctx, "document.documentElement.outerHTML", &html); err != nil {
		return "", err
	}
	return html, nil
}

// Sleep pauses for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
