package livestate

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-floorplan/internal/floorplan"
	"github.com/nerrad567/gray-logic-floorplan/internal/telemetry"
)

var (
	tempDP     = floorplan.Datapoint{Fragment: "c8y_Temperature", Series: "T"}
	humidityDP = floorplan.Datapoint{Fragment: "c8y_Humidity", Series: "H"}
)

func TestGetUnknownDevice(t *testing.T) {
	s := NewStore()
	if got := s.Get("nope"); got != nil {
		t.Errorf("Get() = %+v, want nil", got)
	}
	var st *State
	if _, ok := st.Measurement("x"); ok {
		t.Error("nil State should report no measurements")
	}
}

func TestUpsertsMerge(t *testing.T) {
	s := NewStore()
	now := time.Now()

	s.UpsertPrimaryMeasurement("dev-1", telemetry.Measurement{Datapoint: tempDP, Value: 21, Time: now})
	s.UpsertMeasurement("dev-1", humidityDP.Key(), telemetry.Measurement{Datapoint: humidityDP, Value: 40})
	s.UpsertPrimaryEvent("dev-1", telemetry.Event{ID: "e1", Text: "door_open"})

	st := s.Get("dev-1")
	if st == nil {
		t.Fatal("Get() = nil")
	}
	if st.Primary == nil || st.Primary.Value != 21 {
		t.Errorf("Primary = %+v", st.Primary)
	}
	if st.Event == nil || st.Event.Text != "door_open" {
		t.Errorf("Event = %+v", st.Event)
	}
	if m, ok := st.Measurement(humidityDP.Key()); !ok || m.Value != 40 {
		t.Errorf("humidity = %+v, %v", m, ok)
	}
	// The primary value is visible under its own key as well.
	if m, ok := st.Measurement(tempDP.Key()); !ok || m.Value != 21 {
		t.Errorf("temperature key = %+v, %v", m, ok)
	}

	// Overwrite one key; the other keys survive.
	s.UpsertMeasurement("dev-1", humidityDP.Key(), telemetry.Measurement{Datapoint: humidityDP, Value: 55})
	s.UpsertPrimaryMeasurement("dev-1", telemetry.Measurement{Datapoint: tempDP, Value: 22})
	st = s.Get("dev-1")
	if m, _ := st.Measurement(humidityDP.Key()); m.Value != 55 {
		t.Errorf("humidity after overwrite = %v, want 55", m.Value)
	}
	if st.Primary.Value != 22 || st.Event == nil {
		t.Errorf("state after overwrite = %+v", st)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := NewStore()
	s.UpsertPrimaryMeasurement("dev-1", telemetry.Measurement{Datapoint: tempDP, Value: 1})

	st := s.Get("dev-1")
	st.Primary.Value = 99
	st.Measurements["other"] = telemetry.Measurement{}

	again := s.Get("dev-1")
	if again.Primary.Value != 1 {
		t.Errorf("store mutated through snapshot: Primary = %v", again.Primary.Value)
	}
	if _, ok := again.Measurements["other"]; ok {
		t.Error("store mutated through snapshot map")
	}
}

func TestRetainAndReset(t *testing.T) {
	s := NewStore()
	for _, id := range []string{"a", "b", "c"} {
		s.UpsertPrimaryEvent(id, telemetry.Event{ID: id})
	}

	if dropped := s.Retain([]string{"b", "z"}); dropped != 2 {
		t.Errorf("Retain() dropped %d, want 2", dropped)
	}
	if s.Get("a") != nil || s.Get("c") != nil || s.Get("b") == nil {
		t.Error("Retain() kept the wrong devices")
	}
	// Retain does not create state for devices in scope.
	if s.Get("z") != nil {
		t.Error("Retain() created state for z")
	}

	s.Reset()
	if s.Len() != 0 {
		t.Errorf("Len() after Reset = %d", s.Len())
	}
}

func TestConcurrentDevices(t *testing.T) {
	s := NewStore()
	const devices, updates = 8, 200

	var wg sync.WaitGroup
	for d := 0; d < devices; d++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < updates; i++ {
				s.UpsertPrimaryMeasurement(id, telemetry.Measurement{Datapoint: tempDP, Value: float64(i)})
				s.UpsertMeasurement(id, fmt.Sprintf("k%d", i%4), telemetry.Measurement{Value: float64(i)})
				_ = s.Get(id)
			}
		}(fmt.Sprintf("dev-%d", d))
	}
	wg.Wait()

	if s.Len() != devices {
		t.Fatalf("Len() = %d, want %d", s.Len(), devices)
	}
	for d := 0; d < devices; d++ {
		st := s.Get(fmt.Sprintf("dev-%d", d))
		if st.Primary.Value != updates-1 {
			t.Errorf("dev-%d primary = %v, want %d", d, st.Primary.Value, updates-1)
		}
		// four secondary keys plus the primary key
		if len(st.Measurements) != 5 {
			t.Errorf("dev-%d has %d keys, want 5", d, len(st.Measurements))
		}
	}
}
