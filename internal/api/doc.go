// Package api hosts the ops HTTP server. Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/runs/latest and /v1/runs/{run_id} for batch progress.
package api
