// Package api hosts the HTTP server, middleware and handlers. Notable routes:
//   - GET|POST /api/cron/run-pipeline triggers a crawl+process run.
//   - POST /v1/crawl/urls scrapes an explicit URL list, then processes.
//   - GET /v1/jobs, /v1/jobs/{id} and /v1/stats expose the scored view.
//   - GET|PUT /v1/profile reads and replaces the user profile.
//   - POST /v1/jobs/manual stores a sample posting; GET /v1/alerts lists recent alerts.
//   - GET /healthz, /readyz and /metrics for probes and Prometheus.
package api
