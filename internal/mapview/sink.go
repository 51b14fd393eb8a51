package mapview

import (
	"github.com/nerrad567/gray-logic-floorplan/internal/floorplan"
	"github.com/nerrad567/gray-logic-floorplan/internal/telemetry"
	"github.com/nerrad567/gray-logic-floorplan/internal/threshold"
)

// sink applies live telemetry of one activation. It captures the widget
// and level at activation time and never takes the controller mutex.
type sink struct {
	c      *Controller
	widget *floorplan.WidgetConfig
	level  floorplan.Level
}

func (s *sink) UpsertPrimaryMeasurement(deviceID string, m telemetry.Measurement) {
	s.c.live.UpsertPrimaryMeasurement(deviceID, m)
	s.recolor(deviceID)
	s.refreshPopup(deviceID)
}

func (s *sink) UpsertMeasurement(deviceID, datapointKey string, m telemetry.Measurement) {
	s.c.live.UpsertMeasurement(deviceID, datapointKey, m)
	s.refreshPopup(deviceID)
}

func (s *sink) UpsertPrimaryEvent(deviceID string, e telemetry.Event) {
	s.c.live.UpsertPrimaryEvent(deviceID, e)
	s.recolor(deviceID)
}

func (s *sink) recolor(deviceID string) {
	mk, ok := s.level.Marker(deviceID)
	if !ok || mk.Position == nil {
		return
	}
	s.c.deps.Renderer.MarkerColor(MarkerColor{
		DeviceID: deviceID,
		Color:    threshold.Resolve(s.c.live.Get(deviceID), s.widget.Thresholds),
	})
}

func (s *sink) refreshPopup(deviceID string) {
	if s.c.openPopup() != deviceID {
		return
	}
	mk, ok := s.level.Marker(deviceID)
	if !ok {
		return
	}
	s.c.deps.Renderer.Popup(Popup{
		DeviceID: deviceID,
		HTML:     PopupHTML(mk, s.widget.PopupDatapoints, s.c.live.Get(deviceID), false),
	})
}
