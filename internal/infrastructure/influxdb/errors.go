package influxdb

import "errors"

// Sentinel errors for InfluxDB operations.
//
//	if errors.Is(err, influxdb.ErrNotConnected) {
//	    // Handle disconnected state
//	}
var (
	ErrNotConnected     = errors.New("influxdb: not connected")
	ErrConnectionFailed = errors.New("influxdb: connection failed")
	ErrQueryFailed      = errors.New("influxdb: query failed")
	ErrWriteFailed      = errors.New("influxdb: write failed")

	// ErrUnexpectedValue is returned when a measurement value is not numeric.
	ErrUnexpectedValue = errors.New("influxdb: unexpected value type")

	// ErrDisabled indicates InfluxDB integration is disabled in config.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
