package browser

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// Config controls the behavior of launched Chrome sessions.
type Config struct {
	// MaxSessions caps concurrently open sessions; zero means unbounded.
	MaxSessions       int
	Headless          bool
	NoSandbox         bool
	ExecPath          string
	UserAgent         string
	AcceptLanguage    string
	NavigationTimeout time.Duration
}

// ChromeLauncher starts chromedp-backed sessions.
type ChromeLauncher struct {
	cfg     Config
	limiter chan struct{}
}

// NewChrome creates a launcher backed by chromedp.
func NewChrome(cfg Config) (*ChromeLauncher, error) {
	if cfg.MaxSessions < 0 {
		return nil, fmt.Errorf("max sessions must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 30 * time.Second
	}
	var limiter chan struct{}
	if cfg.MaxSessions > 0 {
		limiter = make(chan struct{}, cfg.MaxSessions)
	}
	return &ChromeLauncher{cfg: cfg, limiter: limiter}, nil
}

func (l *ChromeLauncher) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("lang", "fr-BE"),
		chromedp.WindowSize(1366, 900),
	)
	if l.cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if l.cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if l.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.cfg.ExecPath))
	}
	return opts
}

// Launch starts a browser process and opens one tab in it.
func (l *ChromeLauncher) Launch(ctx context.Context) (Session, error) {
	if err := l.acquire(ctx); err != nil {
		return nil, err
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), l.allocatorOptions()...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	s := &chromeSession{
		tab:     tabCtx,
		navWait: l.cfg.NavigationTimeout,
		cancel: func() {
			tabCancel()
			allocCancel()
		},
		release: l.release,
	}

	// The first Run starts the browser and must use the tab context itself;
	// a derived deadline would tear the browser down with it.
	if err := chromedp.Run(tabCtx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("%w: %v", ErrLaunch, err)
	}
	setupCtx, stop := s.bind(ctx, l.cfg.NavigationTimeout)
	defer stop()
	if err := chromedp.Run(setupCtx, l.networkSetupAction()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("%w: %v", ErrLaunch, err)
	}
	return s, nil
}

func (l *ChromeLauncher) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if l.cfg.UserAgent != "" {
			override := emulation.SetUserAgentOverride(l.cfg.UserAgent)
			if l.cfg.AcceptLanguage != "" {
				override = override.WithAcceptLanguage(l.cfg.AcceptLanguage)
			}
			if err := override.Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if l.cfg.AcceptLanguage != "" {
			headers := toNetworkHeaders(http.Header{"Accept-Language": {l.cfg.AcceptLanguage}})
			if err := network.SetExtraHTTPHeaders(headers).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

func (l *ChromeLauncher) acquire(ctx context.Context) error {
	if l.limiter == nil {
		return nil
	}
	timer := time.NewTimer(l.cfg.NavigationTimeout)
	defer timer.Stop()
	select {
	case l.limiter <- struct{}{}:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w after %s", ErrNoSlot, l.cfg.NavigationTimeout)
	case <-ctx.Done():
		return fmt.Errorf("browser slot wait canceled: %w", ctx.Err())
	}
}

func (l *ChromeLauncher) release() {
	if l.limiter == nil {
		return
	}
	select {
	case <-l.limiter:
	default:
	}
}

type chromeSession struct {
	tab       context.Context
	navWait   time.Duration
	cancel    func()
	release   func()
	closeOnce sync.Once
}

// bind derives a context from the tab that also ends when ctx does.
func (s *chromeSession) bind(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithTimeout(s.tab, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	runCtx, stop := s.bind(ctx, s.navWait)
	defer stop()
	if err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (s *chromeSession) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	runCtx, stop := s.bind(ctx, timeout)
	defer stop()
	if err := chromedp.Run(runCtx, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait for %s: %w", selector, err)
	}
	return nil
}

func (s *chromeSession) Evaluate(ctx context.Context, script string, out any) error {
	runCtx, stop := s.bind(ctx, s.navWait)
	defer stop()
	if err := chromedp.Run(runCtx, chromedp.Evaluate(script, out)); err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	return nil
}

func (s *chromeSession) Scroll(ctx context.Context, selector string, px int) error {
	return s.Evaluate(ctx, scrollScript(selector, px), nil)
}

func (s *chromeSession) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.release()
	})
	return nil
}

func scrollScript(selector string, px int) string {
	return fmt.Sprintf(`(() => {
  const el = document.querySelector(%s);
  if (el) { el.scrollBy(0, %d); return true; }
  window.scrollBy(0, %d);
  return false;
})()`, strconv.Quote(selector), px, px)
}

func toNetworkHeaders(h http.Header) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		if len(values) == 1 {
			headers[key] = values[0]
		} else {
			headers[key] = append([]string(nil), values...)
		}
	}
	return headers
}
