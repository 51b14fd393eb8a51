// Package threshold maps a device's live state to a marker colour.
//
// Thresholds form one ordered list per widget. A measurement threshold
// matches when the primary value lies in [Min, Max]; an event threshold
// matches when the latest event's text and type are equal to its own.
// When thresholds of both kinds match, the one earlier in the list wins.
package threshold

import (
	"github.com/nerrad567/gray-logic-floorplan/internal/floorplan"
	"github.com/nerrad567/gray-logic-floorplan/internal/livestate"
)

// DefaultColor is used when no threshold matches.
const DefaultColor = "#1776BF"

// Resolve returns the colour of the winning threshold, or DefaultColor.
func Resolve(state *livestate.State, thresholds []floorplan.Threshold) string {
	t, _, ok := Match(state, thresholds)
	if !ok {
		return DefaultColor
	}
	return t.Color
}

// Match returns the winning threshold and its index in thresholds.
func Match(state *livestate.State, thresholds []floorplan.Threshold) (floorplan.Threshold, int, bool) {
	if state == nil || len(thresholds) == 0 {
		return floorplan.Threshold{}, -1, false
	}

	measurementIdx := -1
	eventIdx := -1
	for i, t := range thresholds {
		switch t.Kind {
		case floorplan.ThresholdMeasurement:
			if measurementIdx < 0 && matchesMeasurement(state, t) {
				measurementIdx = i
			}
		case floorplan.ThresholdEvent:
			if eventIdx < 0 && matchesEvent(state, t) {
				eventIdx = i
			}
		}
	}

	winner := measurementIdx
	if winner < 0 || (eventIdx >= 0 && eventIdx < winner) {
		winner = eventIdx
	}
	if winner < 0 {
		return floorplan.Threshold{}, -1, false
	}
	return thresholds[winner], winner, true
}

func matchesMeasurement(state *livestate.State, t floorplan.Threshold) bool {
	if state.Primary == nil {
		return false
	}
	v := state.Primary.Value
	return v >= t.Min && v <= t.Max
}

func matchesEvent(state *livestate.State, t floorplan.Threshold) bool {
	if state.Event == nil {
		return false
	}
	return state.Event.Text == t.Text && state.Event.Type == t.EventType
}

// EventTypes returns the distinct event types the event thresholds of list
// refer to, in list order. all is true when some event threshold has an
// empty type: such a threshold only matches untyped events, which a type
// filter would exclude, so callers must not filter by type.
func EventTypes(list []floorplan.Threshold) (types []string, all bool) {
	seen := make(map[string]bool)
	for _, t := range list {
		if t.Kind != floorplan.ThresholdEvent {
			continue
		}
		if t.EventType == "" {
			all = true
			continue
		}
		if !seen[t.EventType] {
			seen[t.EventType] = true
			types = append(types, t.EventType)
		}
	}
	if all {
		return nil, true
	}
	return types, false
}
