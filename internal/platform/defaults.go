package platform

import (
	"time"

	"go.uber.org/zap"

	"github.com/OliWebDevO/clients-scraper/internal/browser"
	"github.com/OliWebDevO/clients-scraper/internal/fetch"
	"github.com/OliWebDevO/clients-scraper/internal/prospect"
)

// Deps are the collaborators shared by the built-in adapters.
type Deps struct {
	Fetcher fetch.Fetcher
	// Launcher renders JavaScript boards. Without it those boards fall back
	// to plain fetches.
	Launcher browser.Launcher
	Logger   *zap.Logger
}

// DefaultRegistry registers all six boards.
func DefaultRegistry(deps Deps) *Registry {
	r := NewRegistry()
	for _, s := range []site{linkedInSite, ictJobSite, jobatSite} {
		s := s
		r.Register(s.id, func() Adapter {
			return newHTMLAdapter(s, HTTPLoader{Fetcher: deps.Fetcher}, deps.Logger)
		})
	}
	r.Register(prospect.Indeed, func() Adapter {
		return newHTMLAdapter(indeedSite, deps.loader("#mosaic-provider-jobcards"), deps.Logger)
	})
	r.Register(prospect.Jobsora, func() Adapter {
		return newHTMLAdapter(jobsoraSite, deps.loader(".c-job-item"), deps.Logger)
	})
	r.Register(prospect.Actiris, func() Adapter {
		return newActirisAdapter(deps.Fetcher, deps.Logger)
	})
	return r
}

func (d Deps) loader(waitSelector string) PageLoader {
	if d.Launcher == nil {
		return HTTPLoader{Fetcher: d.Fetcher}
	}
	return &BrowserLoader{
		Launcher:     d.Launcher,
		WaitSelector: waitSelector,
		WaitTimeout:  10 * time.Second,
		Settle:       750 * time.Millisecond,
	}
}
