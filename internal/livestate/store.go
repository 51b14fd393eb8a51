// Package livestate holds the latest telemetry of each device on screen.
//
// State lives in a side table keyed by device ID and is owned by one
// viewing session. Configuration records are never mutated.
package livestate

import (
	"sync"

	"github.com/nerrad567/gray-logic-floorplan/internal/telemetry"
)

// State is the runtime snapshot of one device.
type State struct {
	DeviceID string

	// Primary is the latest value of the widget's primary datapoint.
	Primary *telemetry.Measurement

	// Event is the latest event matching the widget's event thresholds.
	Event *telemetry.Event

	// Measurements holds secondary datapoint values keyed by "fragment.series".
	Measurements map[string]telemetry.Measurement
}

// Measurement returns the cached value of a secondary datapoint.
func (s *State) Measurement(key string) (telemetry.Measurement, bool) {
	if s == nil {
		return telemetry.Measurement{}, false
	}
	m, ok := s.Measurements[key]
	return m, ok
}

func (s *State) clone() *State {
	c := &State{DeviceID: s.DeviceID}
	if s.Primary != nil {
		p := *s.Primary
		c.Primary = &p
	}
	if s.Event != nil {
		e := *s.Event
		c.Event = &e
	}
	c.Measurements = make(map[string]telemetry.Measurement, len(s.Measurements))
	for k, v := range s.Measurements {
		c.Measurements[k] = v
	}
	return c
}

// Store is the per-session live state table.
//
// Updates merge into the existing state: a datapoint key is overwritten,
// never removed, until Retain or Reset drops the whole device.
//
// All methods are safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	states map[string]*State
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{states: make(map[string]*State)}
}

// stateLocked returns the state of deviceID, creating it. Caller holds mu.
func (s *Store) stateLocked(deviceID string) *State {
	st, ok := s.states[deviceID]
	if !ok {
		st = &State{DeviceID: deviceID, Measurements: make(map[string]telemetry.Measurement)}
		s.states[deviceID] = st
	}
	return st
}

// UpsertMeasurement records a secondary datapoint value.
func (s *Store) UpsertMeasurement(deviceID, datapointKey string, m telemetry.Measurement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stateLocked(deviceID).Measurements[datapointKey] = m
}

// UpsertPrimaryMeasurement records the primary datapoint value. The value is
// also stored under its datapoint key so popups can show it.
func (s *Store) UpsertPrimaryMeasurement(deviceID string, m telemetry.Measurement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stateLocked(deviceID)
	st.Primary = &m
	if !m.Datapoint.IsZero() {
		st.Measurements[m.Datapoint.Key()] = m
	}
}

// UpsertPrimaryEvent records the latest event.
func (s *Store) UpsertPrimaryEvent(deviceID string, e telemetry.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stateLocked(deviceID).Event = &e
}

// Get returns a copy of the device's state, or nil when nothing is known.
func (s *Store) Get(deviceID string) *State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[deviceID]
	if !ok {
		return nil
	}
	return st.clone()
}

// Retain drops every device not in deviceIDs and returns how many were dropped.
func (s *Store) Retain(deviceIDs []string) int {
	keep := make(map[string]struct{}, len(deviceIDs))
	for _, id := range deviceIDs {
		keep[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := 0
	for id := range s.states {
		if _, ok := keep[id]; !ok {
			delete(s.states, id)
			dropped++
		}
	}
	return dropped
}

// Reset drops all state.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = make(map[string]*State)
}

// Len returns the number of devices with state.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}
