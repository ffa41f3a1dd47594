package api_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"

	"go.uber.org/zap"

	"github.com/OliWebDevO/clients-scraper/internal/api"
	"github.com/OliWebDevO/clients-scraper/internal/pipeline"
	"github.com/OliWebDevO/clients-scraper/internal/progress"
	"github.com/OliWebDevO/clients-scraper/internal/prospect"
	"github.com/OliWebDevO/clients-scraper/internal/storage/memory"
)

type staticDiscoverer struct{}

func (staticDiscoverer) DiscoverJobs(context.Context, prospect.JobSearchConfig, progress.Emitter) (pipeline.JobsResult, error) {
	return pipeline.JobsResult{}, nil
}

func (staticDiscoverer) DiscoverBusinesses(_ context.Context, cfg prospect.BusinessSearchConfig, _ progress.Emitter) (pipeline.BusinessesResult, error) {
	return pipeline.BusinessesResult{Businesses: []prospect.Business{{Name: "Chez Léon", Address: cfg.LocationQuery}}}, nil
}

func ExampleNewServer() {
	server := api.NewServer(staticDiscoverer{}, memory.NewRepository(), api.Options{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/v1/discover/businesses",
		strings.NewReader(`{"location_query":"Brussels","categories":["restaurant"]}`))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	fmt.Println(rec.Code)
	fmt.Println(strings.Contains(rec.Body.String(), "Chez Léon"))
	// Output:
	// 200
	// true
}
