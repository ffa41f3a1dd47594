package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/OliWebDevO/clients-scraper/internal/app"
	"github.com/OliWebDevO/clients-scraper/internal/config"
	"github.com/OliWebDevO/clients-scraper/internal/storage/memory"
	"github.com/OliWebDevO/clients-scraper/internal/storage/sqlite"
)

func baseConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Headless.Enabled = false
	return cfg
}

func newApp(t *testing.T, cfg config.Config) *app.App {
	t.Helper()
	a, err := app.New(context.Background(), cfg, zap.NewNop(), app.Options{Registerer: prometheus.NewRegistry()})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close(context.Background())) })
	return a
}

func TestNewWithInMemoryBackends(t *testing.T) {
	t.Parallel()

	cfg := baseConfig(t)
	cfg.Storage.SnapshotBackend = "memory"
	a := newApp(t, cfg)
	require.IsType(t, &memory.Repository{}, a.Repository)
	require.NotNil(t, a.Controller)

	rec := httptest.NewRecorder()
	a.Server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestNewWithSQLite(t *testing.T) {
	t.Parallel()

	cfg := baseConfig(t)
	cfg.DB.Driver = "sqlite"
	cfg.DB.DSN = filepath.Join(t.TempDir(), "prospects.db")
	cfg.Storage.SnapshotBackend = "local"
	cfg.Storage.BaseDir = t.TempDir()

	a := newApp(t, cfg)
	require.IsType(t, &sqlite.Store{}, a.Repository)

	rec := httptest.NewRecorder()
	a.Server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"runs":[]}`, rec.Body.String())
}

func TestNewRejectsUnknownBackends(t *testing.T) {
	t.Parallel()

	cfg := baseConfig(t)
	cfg.DB.Driver = "mysql"
	_, err := app.New(context.Background(), cfg, zap.NewNop(), app.Options{Registerer: prometheus.NewRegistry()})
	require.ErrorContains(t, err, `unknown db driver "mysql"`)

	cfg = baseConfig(t)
	cfg.Storage.SnapshotBackend = "s3"
	_, err = app.New(context.Background(), cfg, zap.NewNop(), app.Options{Registerer: prometheus.NewRegistry()})
	require.ErrorContains(t, err, `unknown snapshot backend "s3"`)

	cfg = baseConfig(t)
	cfg.Storage.SnapshotBackend = "local"
	notADir := filepath.Join(t.TempDir(), "snapshots")
	require.NoError(t, os.WriteFile(notADir, []byte("x"), 0o600))
	cfg.Storage.BaseDir = notADir
	_, err = app.New(context.Background(), cfg, zap.NewNop(), app.Options{Registerer: prometheus.NewRegistry()})
	require.ErrorContains(t, err, "init local snapshots")
}

func TestDiscoverBusinessesWithoutBrowser(t *testing.T) {
	t.Parallel()

	a := newApp(t, baseConfig(t))

	invalid := httptest.NewRequest(http.MethodPost, "/v1/discover/businesses", strings.NewReader(`{"location_query":""}`))
	rec := httptest.NewRecorder()
	a.Server.Handler().ServeHTTP(rec, invalid)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	valid := httptest.NewRequest(http.MethodPost, "/v1/discover/businesses", strings.NewReader(`{"location_query":"Mons"}`))
	rec = httptest.NewRecorder()
	a.Server.Handler().ServeHTTP(rec, valid)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "no business crawler configured")
}
