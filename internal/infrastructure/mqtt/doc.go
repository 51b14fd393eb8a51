// Package mqtt provides the MQTT connection used for live device measurements.
//
// The floor plan service subscribes to one topic per device on the visible
// floor level (graylogic/measurements/{deviceID}) and unsubscribes when the
// level changes. The client tracks its subscriptions and restores them after
// paho reconnects, and it publishes a retained online/offline status with a
// Last Will for crash detection.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.Measurements("sensor-12"), 1,
//	    func(topic string, payload []byte) error {
//	        return handle(payload)
//	    })
package mqtt
