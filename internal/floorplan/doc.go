// Package floorplan provides the floor plan configuration model.
//
// A Building is an ordered list of Levels; each Level carries its image
// reference, dimensions and the Markers that place devices on it. A
// WidgetConfig binds a building to a primary datapoint, an ordered
// Threshold list (list order is evaluation priority) and the secondary
// datapoints shown in marker popups.
//
// Configuration is read-only during a viewing session. Runtime telemetry is
// never stored on these types; see the livestate package.
//
// The package provides a Repository interface with a SQLite implementation.
//
// # Thread Safety
//
// SQLiteRepository is safe for concurrent use from multiple goroutines
// (SQLite WAL mode + connection pooling).
package floorplan
