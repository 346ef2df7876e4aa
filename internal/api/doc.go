// Package api hosts the optional operator HTTP server that exposes a live,
// read-only view of the running download session. Notable routes:
//   - GET /healthz and /readyz for liveness and backend reachability.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/session for the current session snapshot.
//   - GET /v1/session/logs for the session log, filterable by level.
package api
