// Package main hosts the discovery service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, run history and
//     the two discovery endpoints. Discoveries run inside the request; clients
//     either await the JSON result or read NDJSON progress as it happens.
//   - Pipeline: internal/pipeline.Controller drives the job board adapters
//     (internal/platform) or the map-search crawler (internal/maps), then the
//     website analyzer or the description enricher, then persistence.
//   - Outbound traffic: every fetch goes through the Colly fetcher with a
//     per-host token bucket, and every analyzed or enriched URL is vetted by
//     the SSRF guard (internal/netguard) on each redirect hop. Chrome sessions
//     are capped by headless.max_parallel.
//   - Persistence & fanout: prospects and run history live in memory, SQLite
//     or Postgres. Website snapshots optionally go to a local directory or GCS,
//     and a run summary is published to Pub/Sub when enabled.
//   - Observability: zap logs, Prometheus metrics on /metrics, and the
//     progress Hub fanning run events out to log, metric and history sinks.
//
// Quick checklist:
//   - Configure env vars: PROSPECTOR_SERVER_PORT or PORT, PROSPECTOR_DB_DRIVER
//     and PROSPECTOR_DB_DSN, PROSPECTOR_HEADLESS_ENABLED,
//     PROSPECTOR_STORAGE_SNAPSHOT_BACKEND, PROSPECTOR_PUBSUB_*. A .env file in
//     the working directory is loaded first.
//   - Run locally: go run ./cmd/prospector -config prospector.yaml
package main
