// Package api hosts the HTTP server, middleware, and handlers of the
// discovery service. Notable routes:
//   - POST /v1/discover/jobs and /v1/discover/businesses run a discovery,
//     awaited or streamed as NDJSON when the client accepts
//     application/x-ndjson or passes ?stream=1.
//   - GET /api/runs and /api/runs/{run_id} read run history.
//   - GET /healthz, /readyz for probes and /metrics for Prometheus.
package api
