// Package api implements the HTTP REST API and WebSocket server of the
// floor plan service.
//
// This package provides:
//   - REST endpoints for widget and building configuration
//   - One WebSocket session per open floor plan view, each driving a
//     mapview.Controller
//   - Session-scoped image serving for level backgrounds
//   - Middleware stack (request ID, logging, recovery, CORS, metrics)
//   - Health, Prometheus and status endpoints
//
// # Sessions
//
// A client opens GET /api/v1/widgets/{id}/ws. The server mounts the widget
// and pushes level, legend, view, marker_color and popup messages as the
// controller renders. The client sends select_level, marker_click,
// popup_close, viewport and ping messages. Closing the socket disposes the
// controller, which stops its feeds, releases its images and flushes view
// state.
//
// # Security
//
// REST and WebSocket routes require an HS256 bearer token issued by the
// platform's identity service. Browsers cannot set headers on a WebSocket
// upgrade, so the session route also accepts the token in the "token"
// query parameter. Image URLs carry an unguessable per-session token and
// stop resolving once the image is released.
package api
