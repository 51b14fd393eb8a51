package telemetry

import (
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-floorplan/internal/infrastructure/mqtt"
)

// Broker is the subset of the MQTT client used by MQTTSubscriber.
type Broker interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// MQTTSubscriber implements Subscriber on top of the MQTT client.
//
// The broker subscription for a device is made when the first handler for
// it registers and dropped when the last one unsubscribes. Messages are
// decoded once and handed to each registered handler.
type MQTTSubscriber struct {
	broker Broker
	qos    byte
	logger Logger
	now    func() time.Time

	brokerMu sync.Mutex
	mu       sync.Mutex
	devices  map[string]*deviceHandlers
	nextID   uint64
}

type deviceHandlers struct {
	handlers map[uint64]MeasurementHandler
}

// NewMQTTSubscriber creates a subscriber using qos for broker subscriptions.
func NewMQTTSubscriber(broker Broker, qos byte) *MQTTSubscriber {
	return &MQTTSubscriber{
		broker:  broker,
		qos:     qos,
		logger:  noopLogger{},
		now:     time.Now,
		devices: make(map[string]*deviceHandlers),
	}
}

// SetLogger sets the logger for the subscriber.
func (s *MQTTSubscriber) SetLogger(logger Logger) {
	s.logger = logger
}

// SubscribeMeasurements registers handler for the device's measurements.
func (s *MQTTSubscriber) SubscribeMeasurements(deviceID string, handler MeasurementHandler) (Subscription, error) {
	// brokerMu serialises broker calls. mu is never held across them because
	// paho blocks acknowledgements while a message handler is waiting.
	s.brokerMu.Lock()
	defer s.brokerMu.Unlock()

	s.mu.Lock()
	_, subscribed := s.devices[deviceID]
	s.mu.Unlock()

	if !subscribed {
		if err := s.broker.Subscribe(mqtt.Topics{}.Measurements(deviceID), s.qos, s.onMessage); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	dh, ok := s.devices[deviceID]
	if !ok {
		dh = &deviceHandlers{handlers: make(map[uint64]MeasurementHandler)}
		s.devices[deviceID] = dh
	}
	s.nextID++
	id := s.nextID
	dh.handlers[id] = handler

	return &mqttSubscription{subscriber: s, deviceID: deviceID, id: id}, nil
}

// ActiveDevices returns the number of devices with a broker subscription.
func (s *MQTTSubscriber) ActiveDevices() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.devices)
}

func (s *MQTTSubscriber) remove(deviceID string, id uint64) error {
	s.brokerMu.Lock()
	defer s.brokerMu.Unlock()

	s.mu.Lock()
	dh, ok := s.devices[deviceID]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	delete(dh.handlers, id)
	last := len(dh.handlers) == 0
	if last {
		delete(s.devices, deviceID)
	}
	s.mu.Unlock()

	if !last {
		return nil
	}
	return s.broker.Unsubscribe(mqtt.Topics{}.Measurements(deviceID))
}

func (s *MQTTSubscriber) onMessage(topic string, payload []byte) error {
	deviceID, ok := mqtt.DeviceFromMeasurementTopic(topic)
	if !ok {
		return nil
	}

	measurements, err := DecodeMeasurements(payload, s.now())
	if err != nil {
		return err
	}
	if len(measurements) == 0 {
		return nil
	}

	s.mu.Lock()
	dh, ok := s.devices[deviceID]
	var handlers []MeasurementHandler
	if ok {
		handlers = make([]MeasurementHandler, 0, len(dh.handlers))
		for _, h := range dh.handlers {
			handlers = append(handlers, h)
		}
	}
	s.mu.Unlock()

	for _, h := range handlers {
		h(deviceID, measurements)
	}
	return nil
}

type mqttSubscription struct {
	subscriber *MQTTSubscriber
	deviceID   string
	id         uint64
	once       sync.Once
	err        error
}

func (m *mqttSubscription) Unsubscribe() error {
	m.once.Do(func() {
		m.err = m.subscriber.remove(m.deviceID, m.id)
	})
	return m.err
}
