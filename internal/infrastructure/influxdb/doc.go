// Package influxdb provides the telemetry query side of the floor plan service.
//
// Device measurements and events are stored in InfluxDB v2 by the platform's
// ingestion pipeline. This package reads the newest value of a datapoint
// (measurement "device_measurements", tags device_id/fragment/series/unit,
// field "value") and the newest event of a device (measurement
// "device_events", tags device_id/type/event_id, field "text") with Flux.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	point, found, err := client.LatestMeasurement(ctx, "sensor-12", "c8y_Temperature", "T")
package influxdb
