package mqtt

import (
	"fmt"
	"strings"
)

const (
	// TopicPrefix is the root of the Gray Logic topic tree.
	TopicPrefix = "graylogic"

	// TopicPrefixMeasurements carries per-device measurement payloads.
	TopicPrefixMeasurements = TopicPrefix + "/measurements"
)

// Topics provides builders for the topics the floor plan service uses.
//
//	topic := mqtt.Topics{}.Measurements("sensor-3f-12")
//	// Returns: "graylogic/measurements/sensor-3f-12"
type Topics struct{}

// Measurements returns the measurement topic for one device.
func (Topics) Measurements(deviceID string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixMeasurements, deviceID)
}

// AllMeasurements matches the measurement topics of every device.
func (Topics) AllMeasurements() string {
	return TopicPrefixMeasurements + "/+"
}

// ServiceStatus returns the retained online/offline status topic.
func (Topics) ServiceStatus() string {
	return TopicPrefix + "/system/floorplan/status"
}

// DeviceFromMeasurementTopic extracts the device ID from a measurement topic.
func DeviceFromMeasurementTopic(topic string) (string, bool) {
	id, ok := strings.CutPrefix(topic, TopicPrefixMeasurements+"/")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
