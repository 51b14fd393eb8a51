package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-floorplan/internal/floorplan"
	"github.com/nerrad567/gray-logic-floorplan/internal/infrastructure/influxdb"
)

type fakeQuerier struct {
	measurement influxdb.MeasurementPoint
	event       influxdb.EventPoint
	found       bool
	err         error

	gotFragment, gotSeries string
	gotTypes               []string
}

func (f *fakeQuerier) LatestMeasurement(_ context.Context, _, fragment, series string) (influxdb.MeasurementPoint, bool, error) {
	f.gotFragment, f.gotSeries = fragment, series
	return f.measurement, f.found, f.err
}

func (f *fakeQuerier) LatestEvent(_ context.Context, _ string, types []string) (influxdb.EventPoint, bool, error) {
	f.gotTypes = types
	return f.event, f.found, f.err
}

func TestInfluxSource_LatestMeasurement(t *testing.T) {
	ts := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	q := &fakeQuerier{measurement: influxdb.MeasurementPoint{Value: 4.2, Unit: "kW", Time: ts}, found: true}
	src := NewInfluxSource(q)
	dp := floorplan.Datapoint{Fragment: "c8y_Power", Series: "P"}

	m, found, err := src.LatestMeasurement(context.Background(), "dev-1", dp)
	if err != nil || !found {
		t.Fatalf("LatestMeasurement() = %v, %v", found, err)
	}
	if m.Datapoint != dp || m.Value != 4.2 || m.Unit != "kW" || !m.Time.Equal(ts) {
		t.Errorf("measurement = %+v", m)
	}
	if q.gotFragment != "c8y_Power" || q.gotSeries != "P" {
		t.Errorf("queried %s.%s", q.gotFragment, q.gotSeries)
	}
}

func TestInfluxSource_NotFoundAndError(t *testing.T) {
	src := NewInfluxSource(&fakeQuerier{})
	if _, found, err := src.LatestMeasurement(context.Background(), "dev-1", floorplan.Datapoint{}); found || err != nil {
		t.Errorf("not found: got found=%v err=%v", found, err)
	}

	src = NewInfluxSource(&fakeQuerier{err: influxdb.ErrQueryFailed})
	if _, _, err := src.LatestEvent(context.Background(), "dev-1", nil); !errors.Is(err, influxdb.ErrQueryFailed) {
		t.Errorf("error = %v, want ErrQueryFailed", err)
	}
}

func TestInfluxSource_LatestEvent(t *testing.T) {
	q := &fakeQuerier{event: influxdb.EventPoint{ID: "e-1", Type: "c8y_DoorEvent", Text: "door_open"}, found: true}
	src := NewInfluxSource(q)

	e, found, err := src.LatestEvent(context.Background(), "dev-7", []string{"c8y_DoorEvent"})
	if err != nil || !found {
		t.Fatalf("LatestEvent() = %v, %v", found, err)
	}
	if e.DeviceID != "dev-7" || e.ID != "e-1" || e.Text != "door_open" || e.Type != "c8y_DoorEvent" {
		t.Errorf("event = %+v", e)
	}
	if len(q.gotTypes) != 1 || q.gotTypes[0] != "c8y_DoorEvent" {
		t.Errorf("types = %v", q.gotTypes)
	}
}
