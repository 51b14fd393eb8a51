package mapview

import (
	"html"
	"strconv"
	"strings"

	"github.com/nerrad567/gray-logic-floorplan/internal/floorplan"
	"github.com/nerrad567/gray-logic-floorplan/internal/livestate"
	"github.com/nerrad567/gray-logic-floorplan/internal/viewstate"
)

// LoadingText is shown in a popup while its measurements are fetched.
const LoadingText = "Loading measurements..."

// Renderer is the external map surface. Implementations must be safe for
// concurrent use and must not block: live updates are rendered from feed
// goroutines.
type Renderer interface {
	Level(LevelView)
	MarkerColor(MarkerColor)
	Popup(Popup)
	Legend(Legend)
	View(View)
}

// LevelView is everything needed to draw a level.
type LevelView struct {
	Index      int                  `json:"index"`
	Name       string               `json:"name"`
	Levels     []string             `json:"levels"`
	ImageURL   string               `json:"image_url,omitempty"`
	Dimensions floorplan.Dimensions `json:"dimensions"`
	Corners    [][2]float64         `json:"corners,omitempty"`
	Markers    []MarkerView         `json:"markers"`
}

// MarkerView is one drawn marker.
type MarkerView struct {
	DeviceID string             `json:"device_id"`
	Name     string             `json:"name"`
	Position floorplan.Position `json:"position"`
	Color    string             `json:"color"`
}

// MarkerColor recolours one marker.
type MarkerColor struct {
	DeviceID string `json:"device_id"`
	Color    string `json:"color"`
}

// Popup is the content of a marker popup.
type Popup struct {
	DeviceID string `json:"device_id"`
	HTML     string `json:"html"`
}

// Legend lists the threshold colours.
type Legend struct {
	Title   string        `json:"title,omitempty"`
	Entries []LegendEntry `json:"entries"`
}

// LegendEntry is one legend row.
type LegendEntry struct {
	Label string `json:"label"`
	Color string `json:"color"`
}

// View positions the map surface.
type View struct {
	Level    int                `json:"level"`
	Zoom     float64            `json:"zoom"`
	Center   floorplan.Position `json:"center"`
	Restored bool               `json:"restored"`
}

func viewFrom(level int, vs viewstate.ViewState, restored bool) View {
	return View{Level: level, Zoom: vs.Zoom, Center: vs.Center, Restored: restored}
}

// BuildLegend returns the legend of thresholds in list order.
func BuildLegend(title string, thresholds []floorplan.Threshold) Legend {
	l := Legend{Title: title, Entries: make([]LegendEntry, 0, len(thresholds))}
	for _, t := range thresholds {
		l.Entries = append(l.Entries, LegendEntry{Label: t.Label, Color: t.Color})
	}
	return l
}

// PopupHTML renders the popup of a device: a link header followed by one
// line per popup datapoint with a cached value. While loading and with
// nothing cached yet, a placeholder is shown instead.
func PopupHTML(marker floorplan.Marker, datapoints []floorplan.PopupDatapoint, state *livestate.State, loading bool) string {
	var b strings.Builder
	b.WriteString(`<a href="#/device/`)
	b.WriteString(html.EscapeString(marker.DeviceID))
	b.WriteString(`"><h5>`)
	name := marker.DeviceName
	if name == "" {
		name = marker.DeviceID
	}
	b.WriteString(html.EscapeString(name))
	b.WriteString(`</h5></a><hr />`)

	var lines []string
	for _, dp := range datapoints {
		m, ok := state.Measurement(dp.Datapoint.Key())
		if !ok {
			continue
		}
		label := dp.Label
		if label == "" {
			label = dp.Datapoint.Key()
		}
		lines = append(lines, "<p>"+html.EscapeString(label)+`: <span class="measurement-value">`+
			strconv.FormatFloat(m.Value, 'f', -1, 64)+html.EscapeString(m.Unit)+"</span></p>")
	}

	if len(lines) == 0 && loading && len(datapoints) > 0 {
		b.WriteString(LoadingText)
		return b.String()
	}
	for _, l := range lines {
		b.WriteString(l)
	}
	return b.String()
}
