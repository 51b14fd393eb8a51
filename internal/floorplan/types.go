package floorplan

import (
	"time"
)

// DefaultZoomLevel is used when a widget does not configure one.
const DefaultZoomLevel = 0

// Datapoint identifies one measurement series of a device, e.g.
// fragment "c8y_Temperature" with series "T".
type Datapoint struct {
	Fragment string `json:"fragment"`
	Series   string `json:"series"`
}

// Key returns the "fragment.series" form used to index live values.
func (d Datapoint) Key() string {
	return d.Fragment + "." + d.Series
}

// IsZero reports whether the datapoint is unset.
func (d Datapoint) IsZero() bool {
	return d.Fragment == "" && d.Series == ""
}

// Position is a point in the level image's coordinate system.
type Position struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Marker places a device on a level. Markers without a position are still
// part of the level's telemetry scope but are not drawn.
type Marker struct {
	DeviceID   string    `json:"device_id"`
	DeviceName string    `json:"device_name"`
	Position   *Position `json:"position,omitempty"`
}

// Dimensions of a level image in image units.
type Dimensions struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Level is one floor of a building.
type Level struct {
	Name       string       `json:"name"`
	BinaryID   string       `json:"binary_id,omitempty"`
	Dimensions Dimensions   `json:"dimensions"`
	Corners    [][2]float64 `json:"corners,omitempty"`
	Markers    []Marker     `json:"markers"`
}

// DeviceIDs returns the IDs of all devices placed on the level, in marker order.
func (l Level) DeviceIDs() []string {
	ids := make([]string, 0, len(l.Markers))
	for _, m := range l.Markers {
		ids = append(ids, m.DeviceID)
	}
	return ids
}

// Center returns the geometric centre of the level image. The map surface
// uses (y, x) ordering, so Lat is half the height and Lng half the width.
func (l Level) Center() Position {
	return Position{Lat: l.Dimensions.Height / 2, Lng: l.Dimensions.Width / 2}
}

// Marker returns the marker of deviceID on this level.
func (l Level) Marker(deviceID string) (Marker, bool) {
	for _, m := range l.Markers {
		if m.DeviceID == deviceID {
			return m, true
		}
	}
	return Marker{}, false
}

// Building is a map configuration: an ordered list of levels.
type Building struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Levels    []Level   `json:"levels"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Level returns the level at index.
func (b *Building) Level(index int) (Level, error) {
	if index < 0 || index >= len(b.Levels) {
		return Level{}, ErrLevelOutOfRange
	}
	return b.Levels[index], nil
}

// ThresholdKind discriminates the two threshold variants.
type ThresholdKind string

// Threshold kinds.
const (
	ThresholdMeasurement ThresholdKind = "measurement"
	ThresholdEvent       ThresholdKind = "event"
)

// Threshold maps a live condition to a marker colour.
//
// Measurement thresholds match when the primary measurement value lies in
// [Min, Max]. Event thresholds match when the latest event has exactly this
// Text and EventType. A threshold's position in its list is its priority.
type Threshold struct {
	ID    string        `json:"id"`
	Label string        `json:"label"`
	Color string        `json:"color"`
	Kind  ThresholdKind `json:"type"`

	Min float64 `json:"min,omitempty"`
	Max float64 `json:"max,omitempty"`

	Text      string `json:"text,omitempty"`
	EventType string `json:"event_type,omitempty"`
}

// PopupDatapoint is a secondary datapoint shown in a marker popup.
type PopupDatapoint struct {
	Datapoint Datapoint `json:"datapoint"`
	Label     string    `json:"label"`
}

// WidgetConfig is the persisted configuration of one floor plan view.
type WidgetConfig struct {
	ID              string           `json:"id"`
	BuildingID      string           `json:"building_id"`
	Primary         Datapoint        `json:"primary"`
	ZoomLevel       float64          `json:"zoom_level"`
	LegendTitle     string           `json:"legend_title,omitempty"`
	Thresholds      []Threshold      `json:"thresholds"`
	PopupDatapoints []PopupDatapoint `json:"popup_datapoints"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// EventThresholds returns the event thresholds in priority order.
func (w *WidgetConfig) EventThresholds() []Threshold {
	var out []Threshold
	for _, t := range w.Thresholds {
		if t.Kind == ThresholdEvent {
			out = append(out, t)
		}
	}
	return out
}

// SecondaryDatapoints returns the popup datapoints in display order.
func (w *WidgetConfig) SecondaryDatapoints() []Datapoint {
	out := make([]Datapoint, 0, len(w.PopupDatapoints))
	for _, p := range w.PopupDatapoints {
		out = append(out, p.Datapoint)
	}
	return out
}
