package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-floorplan/internal/floorplan"
	"github.com/nerrad567/gray-logic-floorplan/internal/telemetry"
)

var (
	tempDP     = floorplan.Datapoint{Fragment: "c8y_Temperature", Series: "T"}
	humidityDP = floorplan.Datapoint{Fragment: "c8y_Humidity", Series: "H"}
	otherDP    = floorplan.Datapoint{Fragment: "c8y_Battery", Series: "level"}
)

// countingSink counts calls by kind.
type countingSink struct {
	primary, secondary, events atomic.Int64

	mu     sync.Mutex
	last   map[string]telemetry.Event
	values map[string]float64
}

func newCountingSink() *countingSink {
	return &countingSink{last: make(map[string]telemetry.Event), values: make(map[string]float64)}
}

func (s *countingSink) UpsertPrimaryMeasurement(deviceID string, m telemetry.Measurement) {
	s.primary.Add(1)
	s.mu.Lock()
	s.values[deviceID+"/primary"] = m.Value
	s.mu.Unlock()
}

func (s *countingSink) UpsertMeasurement(deviceID, key string, m telemetry.Measurement) {
	s.secondary.Add(1)
	s.mu.Lock()
	s.values[deviceID+"/"+key] = m.Value
	s.mu.Unlock()
}

func (s *countingSink) UpsertPrimaryEvent(deviceID string, e telemetry.Event) {
	s.events.Add(1)
	s.mu.Lock()
	s.last[deviceID] = e
	s.mu.Unlock()
}

func (s *countingSink) total() int64 {
	return s.primary.Load() + s.secondary.Load() + s.events.Load()
}

// fakeSubscriber keeps every handler ever registered, including released
// ones, so tests can simulate messages already in flight at Stop time.
type fakeSubscriber struct {
	mu       sync.Mutex
	handlers map[string][]telemetry.MeasurementHandler
	active   map[string]int
	failOn   string
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{
		handlers: make(map[string][]telemetry.MeasurementHandler),
		active:   make(map[string]int),
	}
}

type fakeSubscription struct {
	s        *fakeSubscriber
	deviceID string
	once     sync.Once
}

func (f *fakeSubscription) Unsubscribe() error {
	f.once.Do(func() {
		f.s.mu.Lock()
		f.s.active[f.deviceID]--
		f.s.mu.Unlock()
	})
	return nil
}

func (s *fakeSubscriber) SubscribeMeasurements(deviceID string, h telemetry.MeasurementHandler) (telemetry.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if deviceID == s.failOn {
		return nil, errors.New("broker rejected subscription")
	}
	s.handlers[deviceID] = append(s.handlers[deviceID], h)
	s.active[deviceID]++
	return &fakeSubscription{s: s, deviceID: deviceID}, nil
}

// push calls every handler ever registered for deviceID.
func (s *fakeSubscriber) push(deviceID string, ms ...telemetry.Measurement) {
	s.mu.Lock()
	hs := append([]telemetry.MeasurementHandler(nil), s.handlers[deviceID]...)
	s.mu.Unlock()
	for _, h := range hs {
		h(deviceID, ms)
	}
}

func (s *fakeSubscriber) activeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.active {
		n += c
	}
	return n
}

// sequenceEvents returns a new event on every call, or a fixed one.
// With emptyID the fixed event carries no ID.
type sequenceEvents struct {
	calls   atomic.Int64
	fixed   bool
	emptyID bool
	err     error

	mu        sync.Mutex
	gotTypes  []string
	typesSeen bool
}

func (s *sequenceEvents) LatestEvent(ctx context.Context, deviceID string, types []string) (telemetry.Event, bool, error) {
	n := s.calls.Add(1)
	s.mu.Lock()
	s.gotTypes, s.typesSeen = types, true
	s.mu.Unlock()
	if s.err != nil {
		return telemetry.Event{}, false, s.err
	}
	if err := ctx.Err(); err != nil {
		return telemetry.Event{}, false, err
	}
	id := "fixed"
	switch {
	case s.emptyID:
		id = ""
	case !s.fixed:
		id = fmt.Sprintf("e-%d", n)
	}
	return telemetry.Event{ID: id, Type: "c8y_DoorEvent", Text: "door_open"}, true, nil
}

func testScope(devices ...string) Scope {
	return Scope{
		DeviceIDs: devices,
		Primary:   tempDP,
		Secondary: []floorplan.Datapoint{humidityDP},
		EventThresholds: []floorplan.Threshold{
			{ID: "door", Kind: floorplan.ThresholdEvent, Text: "door_open", EventType: "c8y_DoorEvent", Color: "#f00"},
		},
	}
}

func fastManager(sub telemetry.Subscriber, events telemetry.EventSource) *Manager {
	m := NewManager(sub, events, 0)
	m.interval = 5 * time.Millisecond
	return m
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestNewManager_ClampsInterval(t *testing.T) {
	tests := []struct {
		in, want time.Duration
	}{
		{0, DefaultPollInterval},
		{time.Millisecond, MinPollInterval},
		{time.Hour, MaxPollInterval},
		{30 * time.Second, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := NewManager(nil, nil, tt.in).PollInterval(); got != tt.want {
			t.Errorf("NewManager(%v).PollInterval() = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestStart_RoutesMeasurements(t *testing.T) {
	sub := newFakeSubscriber()
	m := NewManager(sub, nil, 0)
	sink := newCountingSink()

	h, err := m.Start(context.Background(), testScope("dev-1", "dev-2"), sink)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop(h)

	sub.push("dev-1",
		telemetry.Measurement{Datapoint: tempDP, Value: 21},
		telemetry.Measurement{Datapoint: humidityDP, Value: 40},
		telemetry.Measurement{Datapoint: otherDP, Value: 99},
	)

	if sink.primary.Load() != 1 || sink.secondary.Load() != 1 {
		t.Errorf("primary/secondary calls = %d/%d, want 1/1", sink.primary.Load(), sink.secondary.Load())
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.values["dev-1/primary"] != 21 || sink.values["dev-1/"+humidityDP.Key()] != 40 {
		t.Errorf("values = %v", sink.values)
	}
	if _, ok := sink.values["dev-1/"+otherDP.Key()]; ok {
		t.Error("unconfigured datapoint reached the sink")
	}
}

func TestStop_NoCallbacksAfterStop(t *testing.T) {
	sub := newFakeSubscriber()
	events := &sequenceEvents{}
	m := fastManager(sub, events)
	sink := newCountingSink()

	h, err := m.Start(context.Background(), testScope("dev-1"), sink)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	sub.push("dev-1", telemetry.Measurement{Datapoint: tempDP, Value: 1})
	waitFor(t, func() bool { return sink.events.Load() >= 2 })

	// Keep pushing from another goroutine while stopping.
	stopPushing := make(chan struct{})
	pusherDone := make(chan struct{})
	go func() {
		defer close(pusherDone)
		for {
			select {
			case <-stopPushing:
				return
			default:
				sub.push("dev-1", telemetry.Measurement{Datapoint: tempDP, Value: 2})
			}
		}
	}()

	m.Stop(h)
	atStop := sink.total()

	// In-flight deliveries and later poll intervals must not move the counters.
	time.Sleep(50 * time.Millisecond)
	close(stopPushing)
	<-pusherDone
	sub.push("dev-1", telemetry.Measurement{Datapoint: humidityDP, Value: 3})

	if got := sink.total(); got != atStop {
		t.Errorf("sink calls after Stop: %d -> %d", atStop, got)
	}
	if sub.activeCount() != 0 {
		t.Errorf("active subscriptions after Stop = %d", sub.activeCount())
	}
	if !h.Stopped() {
		t.Error("Stopped() = false")
	}

	// Idempotent.
	m.Stop(h)
	h.Stop()
	var nilHandle *Handle
	nilHandle.Stop()
}

func TestPoll_DeliversOnlyNewEvents(t *testing.T) {
	events := &sequenceEvents{fixed: true}
	m := fastManager(nil, events)
	sink := newCountingSink()

	h, err := m.Start(context.Background(), testScope("dev-1"), sink)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer h.Stop()

	waitFor(t, func() bool { return events.calls.Load() >= 5 })
	if got := sink.events.Load(); got != 1 {
		t.Errorf("event deliveries = %d, want 1 for an unchanged event", got)
	}
	sink.mu.Lock()
	e := sink.last["dev-1"]
	sink.mu.Unlock()
	if e.DeviceID != "dev-1" || e.Text != "door_open" {
		t.Errorf("delivered event = %+v", e)
	}

	events.mu.Lock()
	defer events.mu.Unlock()
	if len(events.gotTypes) != 1 || events.gotTypes[0] != "c8y_DoorEvent" {
		t.Errorf("poll types = %v", events.gotTypes)
	}
}

func TestPoll_DeliversFirstEventWithoutID(t *testing.T) {
	events := &sequenceEvents{fixed: true, emptyID: true}
	m := fastManager(nil, events)
	sink := newCountingSink()

	h, err := m.Start(context.Background(), testScope("dev-1"), sink)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer h.Stop()

	waitFor(t, func() bool { return events.calls.Load() >= 5 })
	if got := sink.events.Load(); got != 1 {
		t.Errorf("event deliveries = %d, want 1", got)
	}
}

func TestPoll_UntypedThresholdDisablesTypeFilter(t *testing.T) {
	events := &sequenceEvents{fixed: true}
	m := fastManager(nil, events)
	scope := testScope("dev-1")
	scope.EventThresholds = append(scope.EventThresholds,
		floorplan.Threshold{ID: "any", Kind: floorplan.ThresholdEvent, Text: "tamper", Color: "#000"})

	h, err := m.Start(context.Background(), scope, newCountingSink())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer h.Stop()

	waitFor(t, func() bool { return events.calls.Load() >= 1 })
	events.mu.Lock()
	defer events.mu.Unlock()
	if !events.typesSeen || events.gotTypes != nil {
		t.Errorf("poll types = %v, want nil (unfiltered)", events.gotTypes)
	}
}

func TestPoll_ErrorsAreSkipped(t *testing.T) {
	events := &sequenceEvents{err: errors.New("influx down")}
	m := fastManager(nil, events)
	sink := newCountingSink()

	h, err := m.Start(context.Background(), testScope("dev-1", "dev-2"), sink)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer h.Stop()

	// Polling continues on later ticks despite failures.
	waitFor(t, func() bool { return events.calls.Load() >= 6 })
	if sink.total() != 0 {
		t.Errorf("sink calls = %d, want 0", sink.total())
	}
}

func TestPoll_NotStartedWithoutEventThresholds(t *testing.T) {
	events := &sequenceEvents{}
	m := fastManager(nil, events)
	scope := testScope("dev-1")
	scope.EventThresholds = nil

	h, err := m.Start(context.Background(), scope, newCountingSink())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	h.Stop()

	if events.calls.Load() != 0 {
		t.Errorf("event source called %d times without event thresholds", events.calls.Load())
	}
}

func TestPoll_StopsWithContext(t *testing.T) {
	events := &sequenceEvents{}
	m := fastManager(nil, events)
	ctx, cancel := context.WithCancel(context.Background())

	h, err := m.Start(ctx, testScope("dev-1"), newCountingSink())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer h.Stop()

	waitFor(t, func() bool { return events.calls.Load() >= 1 })
	cancel()
	time.Sleep(20 * time.Millisecond)
	before := events.calls.Load()
	time.Sleep(50 * time.Millisecond)
	if after := events.calls.Load(); after != before {
		t.Errorf("polling continued after context cancel: %d -> %d", before, after)
	}
}

func TestStart_RollsBackOnSubscribeFailure(t *testing.T) {
	sub := newFakeSubscriber()
	sub.failOn = "dev-3"
	m := NewManager(sub, nil, 0)

	_, err := m.Start(context.Background(), testScope("dev-1", "dev-2", "dev-3"), newCountingSink())
	if !errors.Is(err, ErrSubscribeFailed) {
		t.Fatalf("Start() error = %v, want ErrSubscribeFailed", err)
	}
	if sub.activeCount() != 0 {
		t.Errorf("active subscriptions after failed Start = %d, want 0", sub.activeCount())
	}
}

func TestStart_NilSink(t *testing.T) {
	if _, err := NewManager(nil, nil, 0).Start(context.Background(), Scope{}, nil); !errors.Is(err, ErrNilSink) {
		t.Errorf("Start() error = %v, want ErrNilSink", err)
	}
}
