// Package viewstate persists the viewport (zoom and centre) of each level.
//
// A view state is keyed by the widget scope, the building and the level
// index. Writes are last-write-wins. Load reports found=false for a key
// that was never saved; callers then fall back to the widget's default
// zoom and the level's geometric centre.
//
// Three stores are provided: SQLiteStore (default), RedisStore for
// deployments that share view state across service instances, and
// MemoryStore. Writer sits in front of a store and coalesces the stream
// of viewport events a map surface produces while the user pans.
package viewstate

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-floorplan/internal/floorplan"
)

var (
	// ErrInvalidKey is returned for a key without scope or building.
	ErrInvalidKey = errors.New("invalid view state key")

	// ErrWriterClosed is returned by Writer.Save after Close.
	ErrWriterClosed = errors.New("view state writer closed")
)

// Key identifies one persisted viewport.
type Key struct {
	Scope      string
	BuildingID string
	Level      int
}

func (k Key) validate() error {
	if k.Scope == "" || k.BuildingID == "" || k.Level < 0 {
		return fmt.Errorf("%w: %+v", ErrInvalidKey, k)
	}
	return nil
}

// ViewState is a saved viewport.
type ViewState struct {
	Zoom   float64            `json:"zoom"`
	Center floorplan.Position `json:"center"`
}

// Store loads and saves view states.
type Store interface {
	Load(ctx context.Context, key Key) (ViewState, bool, error)
	Save(ctx context.Context, key Key, vs ViewState) error
}

// Logger defines the logging interface used by the Writer.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
