// Package viewer serves the browser floor plan viewer as an embedded asset.
//
// The viewer is a single page that opens one WebSocket session for the
// widget named in its query string and draws the levels, markers, popups
// and legend the session renders. Assets are embedded with go:embed; a
// directory can be served instead during development.
package viewer
