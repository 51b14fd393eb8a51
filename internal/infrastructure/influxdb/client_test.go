package influxdb_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-floorplan/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-floorplan/internal/infrastructure/influxdb"
)

// testConfig returns a configuration for the local dev InfluxDB.
func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:        true,
		URL:            "http://127.0.0.1:8086",
		Token:          "graylogic-dev-token",
		Org:            "graylogic",
		Bucket:         "telemetry",
		QueryTimeout:   5,
		LookbackWindow: "-1h",
	}
}

// connectOrSkip connects to the local InfluxDB or skips the test.
func connectOrSkip(t *testing.T) *influxdb.Client {
	t.Helper()
	client, err := influxdb.Connect(testConfig())
	if err != nil {
		t.Skip("InfluxDB not available, skipping integration test")
	}
	t.Cleanup(func() { client.Close() }) //nolint:errcheck // Test cleanup
	return client
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	_, err := influxdb.Connect(cfg)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_InvalidURL(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:59999"

	_, err := influxdb.Connect(cfg)
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestClose_Nil(t *testing.T) {
	client := &influxdb.Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestQueriesAfterClose(t *testing.T) {
	client := connectOrSkip(t)
	client.Close() //nolint:errcheck // Closing early on purpose

	ctx := context.Background()
	if _, _, err := client.LatestMeasurement(ctx, "d", "f", "s"); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("LatestMeasurement() error = %v, want ErrNotConnected", err)
	}
	if _, _, err := client.LatestEvent(ctx, "d", nil); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("LatestEvent() error = %v, want ErrNotConnected", err)
	}
	if err := client.HealthCheck(ctx); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestLatestMeasurement_Roundtrip(t *testing.T) {
	client := connectOrSkip(t)
	ctx := context.Background()
	device := "it-" + uuid.NewString()
	now := time.Now().UTC().Truncate(time.Second)

	if err := client.WriteMeasurement(ctx, device, "c8y_Temperature", "T", 19.0, "C", now.Add(-time.Minute)); err != nil {
		t.Fatalf("WriteMeasurement() error = %v", err)
	}
	if err := client.WriteMeasurement(ctx, device, "c8y_Temperature", "T", 21.5, "C", now); err != nil {
		t.Fatalf("WriteMeasurement() error = %v", err)
	}

	point, found, err := client.LatestMeasurement(ctx, device, "c8y_Temperature", "T")
	if err != nil {
		t.Fatalf("LatestMeasurement() error = %v", err)
	}
	if !found || point.Value != 21.5 || point.Unit != "C" {
		t.Errorf("LatestMeasurement() = %+v, %v; want 21.5 C", point, found)
	}

	_, found, err = client.LatestMeasurement(ctx, device, "c8y_Humidity", "H")
	if err != nil || found {
		t.Errorf("LatestMeasurement(missing) = found %v, err %v; want not found", found, err)
	}
}

func TestLatestEvent_Roundtrip(t *testing.T) {
	client := connectOrSkip(t)
	ctx := context.Background()
	device := "it-" + uuid.NewString()
	now := time.Now().UTC().Truncate(time.Second)

	events := []influxdb.EventPoint{
		{ID: "e1", Type: "c8y_DoorOpen", Text: "Door open", Time: now.Add(-2 * time.Minute)},
		{ID: "e2", Type: "c8y_Heartbeat", Text: "alive", Time: now.Add(-time.Minute)},
	}
	for _, e := range events {
		if err := client.WriteEvent(ctx, device, e); err != nil {
			t.Fatalf("WriteEvent() error = %v", err)
		}
	}

	got, found, err := client.LatestEvent(ctx, device, []string{"c8y_DoorOpen"})
	if err != nil {
		t.Fatalf("LatestEvent() error = %v", err)
	}
	if !found || got.ID != "e1" || got.Text != "Door open" {
		t.Errorf("LatestEvent(filtered) = %+v, %v; want e1", got, found)
	}

	got, _, err = client.LatestEvent(ctx, device, nil)
	if err != nil {
		t.Fatalf("LatestEvent() error = %v", err)
	}
	if got.ID != "e2" {
		t.Errorf("LatestEvent(any) ID = %q, want e2", got.ID)
	}
}
