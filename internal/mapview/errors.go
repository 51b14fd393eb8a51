package mapview

import "errors"

var (
	// ErrDisposed is returned by every operation after Dispose.
	ErrDisposed = errors.New("map view disposed")

	// ErrNotMounted is returned when a level is selected before Mount succeeded.
	ErrNotMounted = errors.New("map view not mounted")

	// ErrAlreadyMounted is returned by a second successful Mount.
	ErrAlreadyMounted = errors.New("map view already mounted")

	// ErrNotActive is returned for interactions while no level is active.
	ErrNotActive = errors.New("no active level")

	// ErrUnknownDevice is returned for a marker click on a device not on
	// the active level.
	ErrUnknownDevice = errors.New("device not on active level")

	// ErrNoLevels is returned when the building has no levels.
	ErrNoLevels = errors.New("building has no levels")
)
