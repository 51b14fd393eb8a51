// Package telemetry is the boundary to the telemetry and asset services.
//
// It defines the Measurement and Event values that flow into a session's
// live state and the three collaborators the floor plan engine consumes:
//
//   - MeasurementSource / EventSource: point-in-time "latest" queries,
//     backed by InfluxDB (InfluxSource)
//   - Subscriber: live per-device measurement streams, backed by MQTT
//     (MQTTSubscriber)
//   - HTTPAssetLoader: level image bytes from the binary asset service
//
// MQTTSubscriber fans one broker subscription per device out to every
// session interested in that device, so sessions can come and go without
// disturbing each other.
package telemetry
