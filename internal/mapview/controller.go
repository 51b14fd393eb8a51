package mapview

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-floorplan/internal/feed"
	"github.com/nerrad567/gray-logic-floorplan/internal/floorplan"
	"github.com/nerrad567/gray-logic-floorplan/internal/imagecache"
	"github.com/nerrad567/gray-logic-floorplan/internal/livestate"
	"github.com/nerrad567/gray-logic-floorplan/internal/metrics"
	"github.com/nerrad567/gray-logic-floorplan/internal/telemetry"
	"github.com/nerrad567/gray-logic-floorplan/internal/threshold"
	"github.com/nerrad567/gray-logic-floorplan/internal/viewstate"
)

// loadConcurrency bounds the parallel latest-value queries of one load.
const loadConcurrency = 8

// State is the controller's lifecycle state.
type State int

// Controller states.
const (
	StateIdle State = iota
	StateLoading
	StateActive
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateActive:
		return "active"
	case StateDisposed:
		return "disposed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ConfigStore provides widget and building configuration.
type ConfigStore interface {
	GetWidget(ctx context.Context, id string) (*floorplan.WidgetConfig, error)
	GetBuilding(ctx context.Context, id string) (*floorplan.Building, error)
}

// FeedStarter starts live feeds. *feed.Manager satisfies it.
type FeedStarter interface {
	Start(ctx context.Context, scope feed.Scope, sink feed.Sink) (*feed.Handle, error)
}

// ViewStates loads and records viewports. *viewstate.Writer satisfies it.
type ViewStates interface {
	Load(ctx context.Context, key viewstate.Key) (viewstate.ViewState, bool, error)
	Save(key viewstate.Key, vs viewstate.ViewState) error
	Flush(ctx context.Context) error
}

// Logger defines the logging interface used by the Controller.
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

// Deps are the collaborators of a Controller. Images and Live are owned by
// the session; a nil Live creates a fresh store. A nil Measurements source
// leaves every device without a value until the feed delivers one.
type Deps struct {
	Config       ConfigStore
	Measurements telemetry.MeasurementSource
	Feeds        FeedStarter
	ViewStates   ViewStates
	Images       *imagecache.Cache
	LoadImage    imagecache.Loader
	Live         *livestate.Store
	Renderer     Renderer
	Logger       Logger
	Metrics      *metrics.Metrics
}

// Controller is the per-session level switch state machine.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Controller struct {
	widgetID string
	deps     Deps
	live     *livestate.Store
	logger   Logger

	mu         sync.Mutex
	state      State
	widget     *floorplan.WidgetConfig
	building   *floorplan.Building
	levelIndex int
	level      floorplan.Level
	generation uint64
	cancelLoad context.CancelFunc
	handle     *feed.Handle
	assets     map[string]bool

	// popupMu guards popupDevice. It is separate from mu so the feed sink
	// can refresh an open popup.
	popupMu     sync.Mutex
	popupDevice string
}

// NewController creates an idle controller for the widget.
func NewController(widgetID string, deps Deps) *Controller {
	live := deps.Live
	if live == nil {
		live = livestate.NewStore()
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Controller{
		widgetID: widgetID,
		deps:     deps,
		live:     live,
		logger:   logger,
		assets:   make(map[string]bool),
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ActiveLevel returns the index of the level being shown or loaded.
func (c *Controller) ActiveLevel() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.levelIndex
}

// Generation returns the activation counter.
func (c *Controller) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Live returns the session's live state store.
func (c *Controller) Live() *livestate.Store {
	return c.live
}

// Mount loads the widget and its building and activates the first level.
// On failure the controller stays in Loading and nothing is rendered;
// Mount may then be retried.
func (c *Controller) Mount(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.state == StateDisposed:
		c.mu.Unlock()
		return ErrDisposed
	case c.widget != nil:
		c.mu.Unlock()
		return ErrAlreadyMounted
	}
	c.state = StateLoading
	c.mu.Unlock()

	widget, err := c.deps.Config.GetWidget(ctx, c.widgetID)
	if err != nil {
		return fmt.Errorf("loading widget %s: %w", c.widgetID, err)
	}
	if err := floorplan.ValidateThresholds(widget.Thresholds); err != nil {
		return fmt.Errorf("widget %s: %w", c.widgetID, err)
	}
	building, err := c.deps.Config.GetBuilding(ctx, widget.BuildingID)
	if err != nil {
		return fmt.Errorf("loading building %s: %w", widget.BuildingID, err)
	}
	if len(building.Levels) == 0 {
		return fmt.Errorf("building %s: %w", building.ID, ErrNoLevels)
	}

	c.mu.Lock()
	if c.state == StateDisposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	c.widget = widget
	c.building = building
	c.mu.Unlock()

	return c.SelectLevel(ctx, 0)
}

// SelectLevel switches to the level at index. The previous level's feed is
// stopped before anything for the new level is loaded. When a newer switch
// supersedes this one while it is loading, SelectLevel returns nil without
// rendering.
func (c *Controller) SelectLevel(ctx context.Context, index int) error {
	started := time.Now()

	c.mu.Lock()
	if c.state == StateDisposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	if c.building == nil {
		c.mu.Unlock()
		return ErrNotMounted
	}
	level, err := c.building.Level(index)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("level %d: %w", index, err)
	}

	// Teardown of the previous activation.
	c.handle.Stop()
	c.handle = nil
	if c.cancelLoad != nil {
		c.cancelLoad()
	}
	c.generation++
	gen := c.generation
	loadCtx, cancel := context.WithCancel(ctx)
	c.cancelLoad = cancel
	c.state = StateLoading
	c.levelIndex = index
	c.level = level
	for assetID := range c.assets {
		if assetID != level.BinaryID && c.deps.Images != nil {
			c.deps.Images.Release(assetID)
			delete(c.assets, assetID)
		}
	}
	// Registered before the load starts so the next switch releases it even
	// if this activation gives up waiting.
	if level.BinaryID != "" {
		c.assets[level.BinaryID] = true
	}
	widget := c.widget
	levelNames := make([]string, len(c.building.Levels))
	for i, l := range c.building.Levels {
		levelNames[i] = l.Name
	}
	c.closePopup()
	c.live.Retain(level.DeviceIDs())
	c.mu.Unlock()

	imageURL := c.acquireImage(loadCtx, level)

	values, err := c.loadLatest(loadCtx, level.DeviceIDs(), widget.Primary)
	if err != nil {
		if c.stale(gen) {
			c.deps.Metrics.IncStaleResult(metrics.StaleBatch)
			return nil
		}
		return fmt.Errorf("loading level %d measurements: %w", index, err)
	}

	view := c.restoreView(loadCtx, widget, index, level)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen || c.state == StateDisposed {
		c.deps.Metrics.IncStaleResult(metrics.StaleBatch)
		return nil
	}

	for deviceID, m := range values {
		c.live.UpsertPrimaryMeasurement(deviceID, m)
	}

	lv := LevelView{
		Index:      index,
		Name:       level.Name,
		Levels:     levelNames,
		ImageURL:   imageURL,
		Dimensions: level.Dimensions,
		Corners:    level.Corners,
		Markers:    make([]MarkerView, 0, len(level.Markers)),
	}
	for _, mk := range level.Markers {
		if mk.Position == nil {
			continue
		}
		lv.Markers = append(lv.Markers, MarkerView{
			DeviceID: mk.DeviceID,
			Name:     mk.DeviceName,
			Position: *mk.Position,
			Color:    threshold.Resolve(c.live.Get(mk.DeviceID), widget.Thresholds),
		})
	}

	// Render before the feed starts so a live colour can never precede the
	// level it belongs to.
	c.deps.Renderer.Level(lv)
	if len(widget.Thresholds) > 0 {
		c.deps.Renderer.Legend(BuildLegend(widget.LegendTitle, widget.Thresholds))
	}
	c.deps.Renderer.View(view)

	scope := feed.Scope{
		DeviceIDs:       level.DeviceIDs(),
		Primary:         widget.Primary,
		Secondary:       widget.SecondaryDatapoints(),
		EventThresholds: widget.EventThresholds(),
	}
	handle, err := c.deps.Feeds.Start(ctx, scope, &sink{c: c, widget: widget, level: level})
	if err != nil {
		// Without a feed the level still shows its initial state.
		c.logger.Warn("live feed unavailable", "widget_id", c.widgetID, "level", index, "error", err)
	}
	c.handle = handle
	c.state = StateActive
	c.deps.Metrics.ObserveLevelSwitch(time.Since(started))
	c.logger.Debug("level active", "widget_id", c.widgetID, "level", index, "devices", len(level.Markers))
	return nil
}

func (c *Controller) stale(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation != gen || c.state == StateDisposed
}

// acquireImage returns the URL of the level image, or "" when the level has
// none or it cannot be loaded.
func (c *Controller) acquireImage(ctx context.Context, level floorplan.Level) string {
	if level.BinaryID == "" || c.deps.Images == nil || c.deps.LoadImage == nil {
		return ""
	}
	h, err := c.deps.Images.Acquire(ctx, level.BinaryID, c.deps.LoadImage)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Warn("level image unavailable", "asset_id", level.BinaryID, "error", err)
		}
		return ""
	}
	return h.URL
}

// loadLatest fetches the latest value of dp for every device in parallel.
// Per-device failures leave that device out; only cancellation fails the
// whole batch.
func (c *Controller) loadLatest(ctx context.Context, deviceIDs []string, dp floorplan.Datapoint) (map[string]telemetry.Measurement, error) {
	out := make(map[string]telemetry.Measurement, len(deviceIDs))
	if c.deps.Measurements == nil {
		return out, ctx.Err()
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)
	for _, id := range deviceIDs {
		g.Go(func() error {
			m, found, err := c.deps.Measurements.LatestMeasurement(gctx, id, dp)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				c.logger.Debug("latest measurement unavailable", "device_id", id, "datapoint", dp.Key(), "error", err)
				return nil
			}
			if found {
				mu.Lock()
				out[id] = m
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// restoreView returns the saved viewport of the level or its default.
func (c *Controller) restoreView(ctx context.Context, widget *floorplan.WidgetConfig, index int, level floorplan.Level) View {
	fallback := viewstate.ViewState{Zoom: widget.ZoomLevel, Center: level.Center()}
	if c.deps.ViewStates == nil {
		return viewFrom(index, fallback, false)
	}
	vs, found, err := c.deps.ViewStates.Load(ctx, c.viewKey(widget, index))
	if err != nil {
		c.logger.Warn("loading view state", "widget_id", c.widgetID, "level", index, "error", err)
		return viewFrom(index, fallback, false)
	}
	if !found {
		return viewFrom(index, fallback, false)
	}
	return viewFrom(index, vs, true)
}

func (c *Controller) viewKey(widget *floorplan.WidgetConfig, index int) viewstate.Key {
	return viewstate.Key{Scope: c.widgetID, BuildingID: widget.BuildingID, Level: index}
}

// ClickMarker opens the popup of a device on the active level. The popup is
// rendered at once from cached values, then the popup datapoints are
// fetched in parallel and the popup is rendered again. If the level changed
// while fetching, the results are dropped.
func (c *Controller) ClickMarker(ctx context.Context, deviceID string) error {
	c.mu.Lock()
	if c.state == StateDisposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	if c.state != StateActive {
		c.mu.Unlock()
		return ErrNotActive
	}
	marker, ok := c.level.Marker(deviceID)
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}
	gen := c.generation
	widget := c.widget
	c.popupMu.Lock()
	c.popupDevice = deviceID
	c.popupMu.Unlock()
	c.mu.Unlock()

	c.deps.Renderer.Popup(Popup{
		DeviceID: deviceID,
		HTML:     PopupHTML(marker, widget.PopupDatapoints, c.live.Get(deviceID), true),
	})

	values := c.loadPopupValues(ctx, deviceID, widget.SecondaryDatapoints())

	c.mu.Lock()
	if c.generation != gen || c.state != StateActive {
		c.mu.Unlock()
		c.deps.Metrics.IncStaleResult(metrics.StalePopup)
		c.logger.Debug("discarding stale popup result", "device_id", deviceID)
		return nil
	}
	for key, m := range values {
		c.live.UpsertMeasurement(deviceID, key, m)
	}
	c.mu.Unlock()

	c.popupMu.Lock()
	open := c.popupDevice == deviceID
	c.popupMu.Unlock()
	if open {
		c.deps.Renderer.Popup(Popup{
			DeviceID: deviceID,
			HTML:     PopupHTML(marker, widget.PopupDatapoints, c.live.Get(deviceID), false),
		})
	}
	return nil
}

func (c *Controller) loadPopupValues(ctx context.Context, deviceID string, dps []floorplan.Datapoint) map[string]telemetry.Measurement {
	out := make(map[string]telemetry.Measurement, len(dps))
	if c.deps.Measurements == nil || len(dps) == 0 {
		return out
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(loadConcurrency)
	for _, dp := range dps {
		g.Go(func() error {
			m, found, err := c.deps.Measurements.LatestMeasurement(ctx, deviceID, dp)
			if err != nil {
				c.logger.Debug("popup measurement unavailable", "device_id", deviceID, "datapoint", dp.Key(), "error", err)
				return nil
			}
			if found {
				mu.Lock()
				out[dp.Key()] = m
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// ClosePopup marks the popup closed so live updates stop refreshing it.
func (c *Controller) ClosePopup() {
	c.closePopup()
}

func (c *Controller) closePopup() {
	c.popupMu.Lock()
	c.popupDevice = ""
	c.popupMu.Unlock()
}

func (c *Controller) openPopup() string {
	c.popupMu.Lock()
	defer c.popupMu.Unlock()
	return c.popupDevice
}

// ViewportChanged records the viewport of the active level.
func (c *Controller) ViewportChanged(zoom float64, center floorplan.Position) error {
	c.mu.Lock()
	if c.state == StateDisposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	if c.state != StateActive {
		c.mu.Unlock()
		return ErrNotActive
	}
	key := c.viewKey(c.widget, c.levelIndex)
	c.mu.Unlock()

	if c.deps.ViewStates == nil {
		return nil
	}
	return c.deps.ViewStates.Save(key, viewstate.ViewState{Zoom: zoom, Center: center})
}

// Dispose stops the feed, releases all images and flushes pending view
// state writes. It is idempotent.
func (c *Controller) Dispose(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateDisposed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateDisposed
	c.generation++
	handle := c.handle
	c.handle = nil
	if c.cancelLoad != nil {
		c.cancelLoad()
	}
	assets := c.assets
	c.assets = make(map[string]bool)
	c.mu.Unlock()

	handle.Stop()
	c.closePopup()
	if c.deps.Images != nil {
		if n := c.deps.Images.ReleaseAll(); n > 0 {
			c.logger.Debug("released level images", "count", n)
		}
		// Releasing by ID also stops a load still in flight from installing
		// its handle.
		for assetID := range assets {
			c.deps.Images.Release(assetID)
		}
	}
	c.live.Reset()

	if c.deps.ViewStates == nil {
		return nil
	}
	if err := c.deps.ViewStates.Flush(ctx); err != nil {
		return fmt.Errorf("flushing view state: %w", err)
	}
	return nil
}
