package influxdb

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Measurement and tag names of the telemetry schema.
const (
	MeasurementDeviceMeasurements = "device_measurements"
	MeasurementDeviceEvents       = "device_events"

	TagDeviceID = "device_id"
	TagFragment = "fragment"
	TagSeries   = "series"
	TagUnit     = "unit"
	TagType     = "type"
	TagEventID  = "event_id"

	FieldValue = "value"
	FieldText  = "text"
)

// MeasurementPoint is the newest stored value of one device datapoint.
type MeasurementPoint struct {
	Value float64
	Unit  string
	Time  time.Time
}

// EventPoint is the newest stored event of a device.
type EventPoint struct {
	ID   string
	Type string
	Text string
	Time time.Time
}

// LatestMeasurement returns the newest value of fragment.series for the
// device. found is false when nothing was recorded inside the lookback window.
func (c *Client) LatestMeasurement(ctx context.Context, deviceID, fragment, series string) (MeasurementPoint, bool, error) {
	if !c.IsConnected() {
		return MeasurementPoint{}, false, ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	result, err := c.queryAPI.Query(ctx, latestMeasurementQuery(c.cfg.Bucket, c.lookback, deviceID, fragment, series))
	if err != nil {
		return MeasurementPoint{}, false, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	defer result.Close()

	var (
		point MeasurementPoint
		found bool
	)
	for result.Next() {
		rec := result.Record()
		v, ok := toFloat(rec.Value())
		if !ok {
			return MeasurementPoint{}, false, fmt.Errorf("%w: %T", ErrUnexpectedValue, rec.Value())
		}
		point = MeasurementPoint{Value: v, Time: rec.Time()}
		if unit, ok := rec.ValueByKey(TagUnit).(string); ok {
			point.Unit = unit
		}
		found = true
	}
	if err := result.Err(); err != nil {
		return MeasurementPoint{}, false, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	return point, found, nil
}

// LatestEvent returns the newest event of the device. When types is non-empty
// only events of those types are considered.
func (c *Client) LatestEvent(ctx context.Context, deviceID string, types []string) (EventPoint, bool, error) {
	if !c.IsConnected() {
		return EventPoint{}, false, ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	result, err := c.queryAPI.Query(ctx, latestEventQuery(c.cfg.Bucket, c.lookback, deviceID, types))
	if err != nil {
		return EventPoint{}, false, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	defer result.Close()

	var (
		event EventPoint
		found bool
	)
	for result.Next() {
		rec := result.Record()
		event = EventPoint{Time: rec.Time()}
		event.Text, _ = rec.Value().(string)
		event.Type, _ = rec.ValueByKey(TagType).(string)
		event.ID, _ = rec.ValueByKey(TagEventID).(string)
		if event.ID == "" {
			// Events written without an ID are identified by their timestamp.
			event.ID = rec.Time().UTC().Format(time.RFC3339Nano)
		}
		found = true
	}
	if err := result.Err(); err != nil {
		return EventPoint{}, false, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	return event, found, nil
}

func latestMeasurementQuery(bucket, lookback, deviceID, fragment, series string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "from(bucket: %s)\n", fluxString(bucket))
	fmt.Fprintf(&b, "  |> range(start: %s)\n", lookback)
	fmt.Fprintf(&b, "  |> filter(fn: (r) => r._measurement == %s and r._field == %s)\n",
		fluxString(MeasurementDeviceMeasurements), fluxString(FieldValue))
	fmt.Fprintf(&b, "  |> filter(fn: (r) => r.%s == %s and r.%s == %s and r.%s == %s)\n",
		TagDeviceID, fluxString(deviceID), TagFragment, fluxString(fragment), TagSeries, fluxString(series))
	b.WriteString("  |> group()\n")
	b.WriteString("  |> sort(columns: [\"_time\"])\n")
	b.WriteString("  |> last()\n")
	return b.String()
}

func latestEventQuery(bucket, lookback, deviceID string, types []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "from(bucket: %s)\n", fluxString(bucket))
	fmt.Fprintf(&b, "  |> range(start: %s)\n", lookback)
	fmt.Fprintf(&b, "  |> filter(fn: (r) => r._measurement == %s and r._field == %s)\n",
		fluxString(MeasurementDeviceEvents), fluxString(FieldText))
	fmt.Fprintf(&b, "  |> filter(fn: (r) => r.%s == %s)\n", TagDeviceID, fluxString(deviceID))
	if len(types) > 0 {
		quoted := make([]string, len(types))
		for i, t := range types {
			quoted[i] = fluxString(t)
		}
		fmt.Fprintf(&b, "  |> filter(fn: (r) => contains(value: r.%s, set: [%s]))\n", TagType, strings.Join(quoted, ", "))
	}
	b.WriteString("  |> group()\n")
	b.WriteString("  |> sort(columns: [\"_time\"])\n")
	b.WriteString("  |> last()\n")
	return b.String()
}

// fluxString quotes s as a Flux string literal. Flux interpolates ${...}
// inside strings, so the dollar sign is escaped along with quotes and
// backslashes.
func fluxString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, `$`, `\$`, "\n", `\n`, "\r", `\r`, "\t", `\t`)
	return `"` + r.Replace(s) + `"`
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
