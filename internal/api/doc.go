// Package api hosts the HTTP server, middleware, and REST handlers.
// Notable routes:
//   - GET|HEAD /healthz reports database reachability.
//   - GET /metrics for Prometheus scraping.
//   - /v1/assignments for assignment CRUD, Basic-auth protected.
//   - /v1/assignments/{id}/submission to submit and list attempts.
package api
