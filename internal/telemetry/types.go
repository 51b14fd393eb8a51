package telemetry

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-floorplan/internal/floorplan"
)

// Measurement is one value of one device datapoint.
type Measurement struct {
	Datapoint floorplan.Datapoint `json:"datapoint"`
	Value     float64             `json:"value"`
	Unit      string              `json:"unit,omitempty"`
	Time      time.Time           `json:"time"`
}

// Event is a discrete device event such as "door_open".
type Event struct {
	ID       string    `json:"id"`
	DeviceID string    `json:"device_id"`
	Type     string    `json:"type"`
	Text     string    `json:"text"`
	Time     time.Time `json:"time"`
}

// MeasurementSource answers "latest value" queries for a device datapoint.
// found is false when the device has no value for the datapoint.
type MeasurementSource interface {
	LatestMeasurement(ctx context.Context, deviceID string, dp floorplan.Datapoint) (m Measurement, found bool, err error)
}

// EventSource answers "latest event" queries. A non-empty types list
// restricts the query to those event types.
type EventSource interface {
	LatestEvent(ctx context.Context, deviceID string, types []string) (e Event, found bool, err error)
}

// MeasurementHandler receives every measurement carried by one message.
// It runs on the transport's delivery goroutine.
type MeasurementHandler func(deviceID string, measurements []Measurement)

// Subscription is a live measurement stream. Unsubscribe is idempotent.
type Subscription interface {
	Unsubscribe() error
}

// Subscriber opens live measurement streams per device.
type Subscriber interface {
	SubscribeMeasurements(deviceID string, handler MeasurementHandler) (Subscription, error)
}

// Logger defines the logging interface used by the adapters.
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
