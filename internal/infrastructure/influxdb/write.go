package influxdb

import (
	"context"
	"fmt"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteMeasurement stores one datapoint value in the schema LatestMeasurement
// reads. Used by seeding tools and integration tests; the service itself
// only reads telemetry.
func (c *Client) WriteMeasurement(ctx context.Context, deviceID, fragment, series string, value float64, unit string, ts time.Time) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	tags := map[string]string{
		TagDeviceID: deviceID,
		TagFragment: fragment,
		TagSeries:   series,
	}
	if unit != "" {
		tags[TagUnit] = unit
	}
	p := write.NewPoint(MeasurementDeviceMeasurements, tags, map[string]any{FieldValue: value}, ts)
	if err := c.writeAPI.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return nil
}

// WriteEvent stores one device event in the schema LatestEvent reads.
func (c *Client) WriteEvent(ctx context.Context, deviceID string, e EventPoint) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	tags := map[string]string{
		TagDeviceID: deviceID,
		TagType:     e.Type,
	}
	if e.ID != "" {
		tags[TagEventID] = e.ID
	}
	p := write.NewPoint(MeasurementDeviceEvents, tags, map[string]any{FieldText: e.Text}, e.Time)
	if err := c.writeAPI.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return nil
}
