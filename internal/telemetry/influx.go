package telemetry

import (
	"context"

	"github.com/nerrad567/gray-logic-floorplan/internal/floorplan"
	"github.com/nerrad567/gray-logic-floorplan/internal/infrastructure/influxdb"
)

// Querier is the subset of the InfluxDB client used by InfluxSource.
type Querier interface {
	LatestMeasurement(ctx context.Context, deviceID, fragment, series string) (influxdb.MeasurementPoint, bool, error)
	LatestEvent(ctx context.Context, deviceID string, types []string) (influxdb.EventPoint, bool, error)
}

// InfluxSource implements MeasurementSource and EventSource with Flux queries.
type InfluxSource struct {
	q Querier
}

// NewInfluxSource wraps an InfluxDB client.
func NewInfluxSource(q Querier) *InfluxSource {
	return &InfluxSource{q: q}
}

// LatestMeasurement returns the newest stored value of dp for the device.
func (s *InfluxSource) LatestMeasurement(ctx context.Context, deviceID string, dp floorplan.Datapoint) (Measurement, bool, error) {
	p, found, err := s.q.LatestMeasurement(ctx, deviceID, dp.Fragment, dp.Series)
	if err != nil || !found {
		return Measurement{}, false, err
	}
	return Measurement{Datapoint: dp, Value: p.Value, Unit: p.Unit, Time: p.Time}, true, nil
}

// LatestEvent returns the newest stored event for the device.
func (s *InfluxSource) LatestEvent(ctx context.Context, deviceID string, types []string) (Event, bool, error) {
	p, found, err := s.q.LatestEvent(ctx, deviceID, types)
	if err != nil || !found {
		return Event{}, false, err
	}
	return Event{ID: p.ID, DeviceID: deviceID, Type: p.Type, Text: p.Text, Time: p.Time}, true, nil
}
