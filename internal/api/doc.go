// Package api hosts the HTTP server, middleware, and REST handlers for the
// scan bridge. Notable routes:
//   - GET /health for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /scan for batch submission; the whole batch is served by a single
//     worker invocation.
package api
