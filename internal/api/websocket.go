package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-floorplan/internal/auth"
	"github.com/nerrad567/gray-logic-floorplan/internal/floorplan"
	"github.com/nerrad567/gray-logic-floorplan/internal/imagecache"
	"github.com/nerrad567/gray-logic-floorplan/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-floorplan/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-floorplan/internal/livestate"
	"github.com/nerrad567/gray-logic-floorplan/internal/mapview"
)

// WebSocket message types.
const (
	// Client to server.
	WSTypeSelectLevel = "select_level"
	WSTypeMarkerClick = "marker_click"
	WSTypePopupClose  = "popup_close"
	WSTypeViewport    = "viewport"
	WSTypePing        = "ping"

	// Server to client.
	WSTypeSession     = "session"
	WSTypeLevel       = "level"
	WSTypeMarkerColor = "marker_color"
	WSTypePopup       = "popup"
	WSTypeLegend      = "legend"
	WSTypeView        = "view"
	WSTypePong        = "pong"
	WSTypeError       = "error"

	// wsSendBufferSize is the per-session outbound message buffer size.
	wsSendBufferSize = 256

	// disposeTimeout bounds the final view state flush of a closing session.
	disposeTimeout = 5 * time.Second
)

// WSMessage is a message sent to a WebSocket client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// wsInbound is a message received from a WebSocket client.
type wsInbound struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type selectLevelPayload struct {
	Level int `json:"level"`
}

type markerClickPayload struct {
	DeviceID string `json:"device_id"`
}

type viewportPayload struct {
	Zoom   float64            `json:"zoom"`
	Center floorplan.Position `json:"center"`
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// session is one open floor plan view. It is the controller's renderer:
// every render becomes a queued outbound message.
type session struct {
	id       string
	widgetID string
	conn     *websocket.Conn
	ctrl     *mapview.Controller
	images   *imagecache.Cache
	live     *livestate.Store
	logger   *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// levelReq holds at most one pending level request; a newer request
	// replaces an older one that has not started.
	levelReq chan int

	// mu guards closed and send. Renders after close are dropped.
	mu     sync.RWMutex
	closed bool
	send   chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

// sessionRegistry tracks open sessions by ID.
type sessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[string]*session)}
}

func (r *sessionRegistry) add(s *session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.id] = s
}

func (r *sessionRegistry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

func (r *sessionRegistry) get(id string) (*session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *sessionRegistry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *sessionRegistry) status() SessionStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st := SessionStatus{Open: len(r.sessions)}
	for _, s := range r.sessions {
		st.LiveImages += s.images.Len()
		st.LiveDevices += s.live.Len()
	}
	return st
}

// closeAll closes every session's connection. The read loops then dispose
// their controllers.
func (r *sessionRegistry) closeAll() int {
	r.mu.RLock()
	sessions := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	for _, s := range sessions {
		s.conn.Close()
	}
	return len(sessions)
}

// handleSession upgrades the connection and starts a floor plan session
// for the widget in the path.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		writeUnauthorized(w, "bearer token or token query parameter is required")
		return
	}
	claims, err := auth.ParseToken(token, s.secCfg.JWT.Secret)
	if err != nil {
		writeUnauthorized(w, "invalid or expired token")
		return
	}
	if !auth.HasPermission(claims.Role, auth.PermFloorplanView) {
		writeForbidden(w, "insufficient permissions")
		return
	}

	widgetID := chi.URLParam(r, "id")
	if _, err := s.repo.GetWidget(r.Context(), widgetID); err != nil {
		s.writeRepoError(w, err, "widget")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	sess := s.newSession(conn, widgetID, claims.Subject)
	s.sessions.add(sess)
	s.metrics.SessionOpened()
	sess.logger.Info("floor plan session opened")
	sess.sendMessage("", WSTypeSession, map[string]string{"session_id": sess.id, "widget_id": widgetID})

	s.wg.Add(3)
	go func() {
		defer s.wg.Done()
		sess.writePump(s.wsCfg)
	}()
	go func() {
		defer s.wg.Done()
		sess.levelLoop()
	}()
	go func() {
		defer s.wg.Done()
		sess.readPump(s.wsCfg)
		s.closeSession(sess)
	}()
}

func (s *Server) newSession(conn *websocket.Conn, widgetID, subject string) *session {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(s.srvCtx)

	images := imagecache.New("/api/v1/sessions/" + id + "/assets")
	images.SetOnLoad(func(_ string, err error) {
		s.metrics.ObserveImageLoad(err)
	})

	sess := &session{
		id:       id,
		widgetID: widgetID,
		conn:     conn,
		images:   images,
		live:     livestate.NewStore(),
		logger:   s.logger.With("session_id", id, "widget_id", widgetID, "subject", subject),
		ctx:      ctx,
		cancel:   cancel,
		levelReq: make(chan int, 1),
		send:     make(chan []byte, wsSendBufferSize),
		done:     make(chan struct{}),
	}
	sess.ctrl = mapview.NewController(widgetID, mapview.Deps{
		Config:       s.repo,
		Measurements: s.measurements,
		Feeds:        s.feeds,
		ViewStates:   s.viewStates,
		Images:       images,
		LoadImage:    s.loadImage,
		Live:         sess.live,
		Renderer:     sess,
		Logger:       sess.logger,
		Metrics:      s.metrics,
	})
	return sess
}

// closeSession disposes the controller and releases the session.
func (s *Server) closeSession(sess *session) {
	sess.closeOnce.Do(func() {
		sess.cancel()
		close(sess.done)

		ctx, cancel := context.WithTimeout(context.Background(), disposeTimeout)
		defer cancel()
		if err := sess.ctrl.Dispose(ctx); err != nil {
			sess.logger.Warn("disposing floor plan session", "error", err)
		}

		sess.mu.Lock()
		sess.closed = true
		close(sess.send)
		sess.mu.Unlock()

		s.sessions.remove(sess.id)
		s.metrics.SessionClosed()
		sess.logger.Info("floor plan session closed")
	})
}

// levelLoop mounts the controller, then applies level requests in order.
// While the controller is not mounted, a level request retries the mount.
func (c *session) levelLoop() {
	if err := c.ctrl.Mount(c.ctx); err != nil {
		if c.ctx.Err() == nil {
			c.logger.Warn("mounting floor plan", "error", err)
			c.sendError("", err.Error())
		}
	}

	for {
		select {
		case <-c.done:
			return
		case idx := <-c.levelReq:
			err := c.ctrl.SelectLevel(c.ctx, idx)
			if errors.Is(err, mapview.ErrNotMounted) {
				err = c.remount(idx)
			}
			if err != nil && c.ctx.Err() == nil {
				c.logger.Debug("selecting level", "level", idx, "error", err)
				c.sendError("", err.Error())
			}
		}
	}
}

// remount retries a failed mount and then shows level idx.
func (c *session) remount(idx int) error {
	if err := c.ctrl.Mount(c.ctx); err != nil {
		return err
	}
	c.logger.Info("floor plan mounted on retry")
	if idx == 0 {
		return nil
	}
	return c.ctrl.SelectLevel(c.ctx, idx)
}

// requestLevel queues a level switch, replacing a queued one.
func (c *session) requestLevel(idx int) {
	for {
		select {
		case c.levelReq <- idx:
			return
		default:
		}
		select {
		case <-c.levelReq:
		default:
		}
	}
}

// readPump reads messages from the WebSocket connection until it closes.
func (c *session) readPump(cfg config.WebSocketConfig) {
	defer c.conn.Close()

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
			} else {
				c.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		// Any client message resets the read deadline.
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		c.handleMessage(message)
	}
}

// writePump writes queued messages and keepalive pings.
func (c *session) writePump(cfg config.WebSocketConfig) {
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	pongWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes an incoming WebSocket message. Work that queries
// telemetry runs off the read loop.
func (c *session) handleMessage(data []byte) {
	var msg wsInbound
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypeSelectLevel:
		var p selectLevelPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			c.sendError(msg.ID, "invalid select_level payload")
			return
		}
		c.requestLevel(p.Level)

	case WSTypeMarkerClick:
		var p markerClickPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil || p.DeviceID == "" {
			c.sendError(msg.ID, "invalid marker_click payload")
			return
		}
		go func() {
			if err := c.ctrl.ClickMarker(c.ctx, p.DeviceID); err != nil && c.ctx.Err() == nil {
				c.sendError(msg.ID, err.Error())
			}
		}()

	case WSTypePopupClose:
		c.ctrl.ClosePopup()

	case WSTypeViewport:
		var p viewportPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			c.sendError(msg.ID, "invalid viewport payload")
			return
		}
		if err := c.ctrl.ViewportChanged(p.Zoom, p.Center); err != nil {
			if !errors.Is(err, mapview.ErrNotActive) {
				c.sendError(msg.ID, err.Error())
			}
		}

	case WSTypePing:
		c.sendMessage(msg.ID, WSTypePong, nil)

	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

// sendMessage queues a message. A full buffer drops it; a slow client
// catches up with the next render of the same marker or popup.
func (c *session) sendMessage(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		c.logger.Error("failed to marshal websocket message", "type", msgType, "error", err)
		return
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("websocket send buffer full, dropping message", "type", msgType)
	}
}

// sendError sends an error message to the client.
func (c *session) sendError(id, message string) {
	c.sendMessage(id, WSTypeError, map[string]string{"message": message})
}

// Renderer implementation.

func (c *session) Level(v mapview.LevelView)        { c.sendMessage("", WSTypeLevel, v) }
func (c *session) MarkerColor(v mapview.MarkerColor) { c.sendMessage("", WSTypeMarkerColor, v) }
func (c *session) Popup(v mapview.Popup)            { c.sendMessage("", WSTypePopup, v) }
func (c *session) Legend(v mapview.Legend)          { c.sendMessage("", WSTypeLegend, v) }
func (c *session) View(v mapview.View)              { c.sendMessage("", WSTypeView, v) }
