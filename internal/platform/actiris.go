package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/OliWebDevO/clients-scraper/internal/fetch"
	"github.com/OliWebDevO/clients-scraper/internal/keywords"
	"github.com/OliWebDevO/clients-scraper/internal/metrics"
	"github.com/OliWebDevO/clients-scraper/internal/prospect"
)

const (
	actirisSearchURL = "https://www.actiris.brussels/Umbraco/api/OffersApi/GetAllOffers"
	actirisDetailURL = "https://www.actiris.brussels/fr/citoyens/detail-offre-d-emploi/"
	actirisPageSize  = 30
)

type actirisRequest struct {
	Filter actirisFilter `json:"offreFilter"`
}

type actirisFilter struct {
	Text       string            `json:"texte"`
	Languages  []string          `json:"langues"`
	Communes   []string          `json:"communes"`
	PageOption actirisPageOption `json:"pageOption"`
}

type actirisPageOption struct {
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
}

type actirisResponse struct {
	Total int           `json:"total"`
	Items []actirisItem `json:"items"`
}

type actirisItem struct {
	Reference   string `json:"reference"`
	TitleFR     string `json:"titreFr"`
	TitleNL     string `json:"titreNl"`
	Employer    string `json:"nomEmployeur"`
	Commune     string `json:"commune"`
	Salary      string `json:"salaire"`
	CreatedAt   string `json:"dateCreation"`
	Description string `json:"description"`
}

// actirisAdapter queries Actiris' JSON search endpoint, which serves the
// listing page of the Brussels employment office.
type actirisAdapter struct {
	fetcher fetch.Fetcher
	logger  *zap.Logger
	now     func() time.Time
}

func newActirisAdapter(fetcher fetch.Fetcher, logger *zap.Logger) *actirisAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &actirisAdapter{
		fetcher: fetcher,
		logger:  logger.With(zap.String("platform", string(prospect.Actiris))),
		now:     time.Now,
	}
}

func (a *actirisAdapter) ID() prospect.Platform { return prospect.Actiris }

func (a *actirisAdapter) Scrape(ctx context.Context, q Query) Result {
	seen := make(map[string]struct{})
	var (
		jobs []prospect.JobPosting
		errs []string
	)
	for _, kw := range q.Keywords {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err().Error())
			break
		}
		items, err := a.search(ctx, kw, q.Page)
		if err != nil {
			metrics.ObserveScrape(string(prospect.Actiris), "error")
			a.logger.Warn("offer search failed", zap.String("keyword", kw), zap.Error(err))
			errs = append(errs, kw+": "+err.Error())
			continue
		}
		metrics.ObserveScrape(string(prospect.Actiris), "ok")
		for _, item := range items {
			job, ok := a.toPosting(item, q.Keywords, kw)
			if !ok {
				continue
			}
			if _, dup := seen[job.URL]; dup {
				continue
			}
			seen[job.URL] = struct{}{}
			jobs = append(jobs, job)
		}
	}
	return finish(jobs, errs)
}

func (a *actirisAdapter) search(ctx context.Context, keyword string, page int) ([]actirisItem, error) {
	body, err := json.Marshal(actirisRequest{Filter: actirisFilter{
		Text:       keyword,
		Languages:  []string{},
		Communes:   []string{},
		PageOption: actirisPageOption{Page: page + 1, PageSize: actirisPageSize},
	}})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	resp, err := a.fetcher.Fetch(ctx, fetch.Request{
		URL:    actirisSearchURL,
		Method: http.MethodPost,
		Body:   bytes.NewReader(body),
		Headers: http.Header{
			"Content-Type": {"application/json"},
			"Accept":       {"application/json"},
		},
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, &fetch.Error{URL: actirisSearchURL, Message: fmt.Sprintf("HTTP status %d", resp.StatusCode)}
	}
	var decoded actirisResponse
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return nil, fmt.Errorf("decode offers: %w", err)
	}
	return decoded.Items, nil
}

func (a *actirisAdapter) toPosting(item actirisItem, expanded []string, seed string) (prospect.JobPosting, bool) {
	title := strings.TrimSpace(item.TitleFR)
	if title == "" {
		title = strings.TrimSpace(item.TitleNL)
	}
	var link string
	if ref := strings.TrimSpace(item.Reference); ref != "" {
		link = actirisDetailURL + "?" + url.Values{"reference": {ref}}.Encode()
	}
	job := prospect.JobPosting{
		Title:    collapse(title),
		Company:  collapse(item.Employer),
		Location: collapse(item.Commune),
		Salary:   optional(item.Salary),
		URL:      canonicalize(link, "reference"),
		Source:   prospect.Actiris,
		PostedAt: parsePosted(item.CreatedAt, a.now()),
	}
	if job.Location == "" {
		job.Location = "Bruxelles"
	}
	if desc := collapse(item.Description); len([]rune(desc)) >= 50 {
		job.Description = &desc
	}
	if !job.Valid() {
		return job, false
	}
	job.KeywordsMatched = keywords.Match(job.Title, expanded, seed)
	return job, len(job.KeywordsMatched) > 0
}
