package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-floorplan/internal/floorplan"
	"github.com/nerrad567/gray-logic-floorplan/internal/metrics"
	"github.com/nerrad567/gray-logic-floorplan/internal/telemetry"
	"github.com/nerrad567/gray-logic-floorplan/internal/threshold"
)

// Poll interval bounds.
const (
	MinPollInterval     = time.Second
	MaxPollInterval     = 5 * time.Minute
	DefaultPollInterval = 10 * time.Second

	// pollConcurrency bounds the event queries of one tick.
	pollConcurrency = 4
)

// Sink receives live telemetry for the devices in scope.
// livestate.Store satisfies it.
type Sink interface {
	UpsertPrimaryMeasurement(deviceID string, m telemetry.Measurement)
	UpsertMeasurement(deviceID, datapointKey string, m telemetry.Measurement)
	UpsertPrimaryEvent(deviceID string, e telemetry.Event)
}

// Scope is what one handle watches.
type Scope struct {
	DeviceIDs       []string
	Primary         floorplan.Datapoint
	Secondary       []floorplan.Datapoint
	EventThresholds []floorplan.Threshold
}

// Logger defines the logging interface used by the Manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Manager starts and stops feed handles. A nil subscriber disables the push
// feed and a nil event source disables polling.
type Manager struct {
	subscriber telemetry.Subscriber
	events     telemetry.EventSource
	interval   time.Duration
	logger     Logger
	metrics    *metrics.Metrics
}

// NewManager creates a manager polling events every interval, clamped to
// [MinPollInterval, MaxPollInterval]. A zero interval selects the default.
func NewManager(subscriber telemetry.Subscriber, events telemetry.EventSource, interval time.Duration) *Manager {
	switch {
	case interval == 0:
		interval = DefaultPollInterval
	case interval < MinPollInterval:
		interval = MinPollInterval
	case interval > MaxPollInterval:
		interval = MaxPollInterval
	}
	return &Manager{
		subscriber: subscriber,
		events:     events,
		interval:   interval,
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// SetMetrics sets the metrics recorder.
func (m *Manager) SetMetrics(mt *metrics.Metrics) {
	m.metrics = mt
}

// PollInterval returns the effective poll interval.
func (m *Manager) PollInterval() time.Duration {
	return m.interval
}

// Start subscribes every device in scope and starts the event poll. If a
// subscription fails, those already made are released and the error is
// returned. Polling stops when ctx is cancelled or the handle is stopped.
func (m *Manager) Start(ctx context.Context, scope Scope, sink Sink) (*Handle, error) {
	if sink == nil {
		return nil, ErrNilSink
	}

	h := &Handle{
		sink:       sink,
		logger:     m.logger,
		metrics:    m.metrics,
		primaryKey: scope.Primary.Key(),
		secondary:  make(map[string]bool, len(scope.Secondary)),
		lastEvent:  make(map[string]string),
	}
	for _, dp := range scope.Secondary {
		h.secondary[dp.Key()] = true
	}

	if m.subscriber != nil {
		for _, id := range scope.DeviceIDs {
			sub, err := m.subscriber.SubscribeMeasurements(id, h.onMeasurements)
			if err != nil {
				h.Stop()
				return nil, fmt.Errorf("%w: device %s: %w", ErrSubscribeFailed, id, err)
			}
			h.subs = append(h.subs, sub)
		}
	}

	pollCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	if m.events != nil && len(scope.EventThresholds) > 0 && len(scope.DeviceIDs) > 0 {
		types, _ := threshold.EventTypes(scope.EventThresholds)
		p := &poller{
			handle:   h,
			source:   m.events,
			devices:  append([]string(nil), scope.DeviceIDs...),
			types:    types,
			interval: m.interval,
		}
		h.wg.Add(1)
		go p.run(pollCtx)
	}

	return h, nil
}

// Stop stops the handle. It is equivalent to h.Stop.
func (m *Manager) Stop(h *Handle) {
	h.Stop()
}

// Handle is one running pair of feeds.
type Handle struct {
	sink    Sink
	logger  Logger
	metrics *metrics.Metrics

	primaryKey string
	secondary  map[string]bool

	// mu guards stopped and lastEvent and is held for every sink call.
	mu        sync.Mutex
	stopped   bool
	lastEvent map[string]string

	subs   []telemetry.Subscription
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// deliver runs fn unless the handle is stopped.
func (h *Handle) deliver(fn func()) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return false
	}
	fn()
	return true
}

func (h *Handle) onMeasurements(deviceID string, measurements []telemetry.Measurement) {
	for _, m := range measurements {
		key := m.Datapoint.Key()
		if key == h.primaryKey {
			if h.deliver(func() { h.sink.UpsertPrimaryMeasurement(deviceID, m) }) {
				h.metrics.IncFeedUpdate(metrics.KindPrimary)
			}
		}
		if h.secondary[key] {
			if h.deliver(func() { h.sink.UpsertMeasurement(deviceID, key, m) }) {
				h.metrics.IncFeedUpdate(metrics.KindSecondary)
			}
		}
	}
}

// onEvent forwards e unless it is the event last forwarded for the device.
func (h *Handle) onEvent(deviceID string, e telemetry.Event) {
	delivered := h.deliver(func() {
		if prev, seen := h.lastEvent[deviceID]; seen && prev == e.ID {
			return
		}
		h.lastEvent[deviceID] = e.ID
		h.sink.UpsertPrimaryEvent(deviceID, e)
		h.metrics.IncFeedUpdate(metrics.KindEvent)
	})
	if !delivered {
		h.logger.Debug("dropping event for stopped feed", "device_id", deviceID)
	}
}

// Stopped reports whether Stop has been called.
func (h *Handle) Stopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

// Stop ends both feeds. After Stop returns the sink is not called again.
// Stop is idempotent and safe on a nil handle.
func (h *Handle) Stop() {
	if h == nil {
		return
	}

	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	h.mu.Unlock()

	for _, sub := range h.subs {
		if err := sub.Unsubscribe(); err != nil {
			h.logger.Warn("unsubscribing measurement feed", "error", err)
		}
	}
	if h.cancel != nil {
		h.cancel()
	}
	h.wg.Wait()
}

type poller struct {
	handle   *Handle
	source   telemetry.EventSource
	devices  []string
	types    []string
	interval time.Duration
}

func (p *poller) run(ctx context.Context) {
	defer p.handle.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// tick polls every device once. Failures are logged and skipped.
func (p *poller) tick(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pollConcurrency)

	for _, id := range p.devices {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			e, found, err := p.source.LatestEvent(gctx, id, p.types)
			if err != nil {
				if gctx.Err() == nil {
					p.handle.logger.Warn("event poll failed", "device_id", id, "error", err)
					p.handle.metrics.IncPollError()
				}
				return nil
			}
			if !found {
				return nil
			}
			if e.DeviceID == "" {
				e.DeviceID = id
			}
			p.handle.onEvent(id, e)
			return nil
		})
	}
	_ = g.Wait()
}
