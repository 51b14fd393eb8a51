package floorplan

import "errors"

var (
	// ErrBuildingNotFound is returned when a building ID does not exist.
	ErrBuildingNotFound = errors.New("building not found")

	// ErrWidgetNotFound is returned when a widget ID does not exist.
	ErrWidgetNotFound = errors.New("widget not found")

	// ErrLevelOutOfRange is returned for a level index outside the building.
	ErrLevelOutOfRange = errors.New("level index out of range")

	// ErrInvalidBuilding is returned when a building fails validation.
	ErrInvalidBuilding = errors.New("invalid building")

	// ErrInvalidWidget is returned when a widget configuration fails validation.
	ErrInvalidWidget = errors.New("invalid widget configuration")

	// ErrInvalidThreshold is returned when a threshold list fails validation.
	ErrInvalidThreshold = errors.New("invalid threshold")
)
