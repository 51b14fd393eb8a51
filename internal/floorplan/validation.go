package floorplan

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	maxNameLength  = 100
	maxThresholds  = 50
	maxPopupPoints = 20
)

var colorRegex = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// ValidateThresholds checks a threshold list: unique non-empty IDs, a hex
// colour on every entry, min <= max for measurement thresholds and a
// non-empty text for event thresholds.
func ValidateThresholds(thresholds []Threshold) error {
	if len(thresholds) > maxThresholds {
		return fmt.Errorf("%w: more than %d thresholds", ErrInvalidThreshold, maxThresholds)
	}

	seen := make(map[string]bool, len(thresholds))
	for i, t := range thresholds {
		if t.ID == "" {
			return fmt.Errorf("%w: threshold %d has no id", ErrInvalidThreshold, i)
		}
		if seen[t.ID] {
			return fmt.Errorf("%w: duplicate id %q", ErrInvalidThreshold, t.ID)
		}
		seen[t.ID] = true

		if !colorRegex.MatchString(t.Color) {
			return fmt.Errorf("%w: %q has invalid color %q", ErrInvalidThreshold, t.ID, t.Color)
		}

		switch t.Kind {
		case ThresholdMeasurement:
			if t.Min > t.Max {
				return fmt.Errorf("%w: %q has min %v greater than max %v", ErrInvalidThreshold, t.ID, t.Min, t.Max)
			}
		case ThresholdEvent:
			if strings.TrimSpace(t.Text) == "" {
				return fmt.Errorf("%w: %q needs event text", ErrInvalidThreshold, t.ID)
			}
		default:
			return fmt.Errorf("%w: %q has unknown type %q", ErrInvalidThreshold, t.ID, t.Kind)
		}
	}
	return nil
}

// ValidateWidget checks a widget configuration before it is stored or mounted.
func ValidateWidget(w *WidgetConfig) error {
	if w.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidWidget)
	}
	if w.BuildingID == "" {
		return fmt.Errorf("%w: building_id is required", ErrInvalidWidget)
	}
	if w.Primary.Fragment == "" || w.Primary.Series == "" {
		return fmt.Errorf("%w: primary datapoint needs fragment and series", ErrInvalidWidget)
	}
	if len(w.PopupDatapoints) > maxPopupPoints {
		return fmt.Errorf("%w: more than %d popup datapoints", ErrInvalidWidget, maxPopupPoints)
	}
	for i, p := range w.PopupDatapoints {
		if p.Datapoint.Fragment == "" || p.Datapoint.Series == "" {
			return fmt.Errorf("%w: popup datapoint %d needs fragment and series", ErrInvalidWidget, i)
		}
	}
	return ValidateThresholds(w.Thresholds)
}

// ValidateBuilding checks names and that no device is placed twice on a level.
func ValidateBuilding(b *Building) error {
	if b.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidBuilding)
	}
	if err := validateName(b.Name); err != nil {
		return err
	}
	for i, l := range b.Levels {
		if err := validateName(l.Name); err != nil {
			return fmt.Errorf("level %d: %w", i, err)
		}
		if l.Dimensions.Width < 0 || l.Dimensions.Height < 0 {
			return fmt.Errorf("%w: level %d has negative dimensions", ErrInvalidBuilding, i)
		}
		seen := make(map[string]bool, len(l.Markers))
		for _, m := range l.Markers {
			if m.DeviceID == "" {
				return fmt.Errorf("%w: level %d has a marker without device id", ErrInvalidBuilding, i)
			}
			if seen[m.DeviceID] {
				return fmt.Errorf("%w: device %q placed twice on level %d", ErrInvalidBuilding, m.DeviceID, i)
			}
			seen[m.DeviceID] = true
		}
	}
	return nil
}

func validateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidBuilding)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidBuilding, maxNameLength)
	}
	return nil
}
