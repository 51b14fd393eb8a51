package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-floorplan/internal/audit"
	"github.com/nerrad567/gray-logic-floorplan/internal/floorplan"
	"github.com/nerrad567/gray-logic-floorplan/internal/imagecache"
	"github.com/nerrad567/gray-logic-floorplan/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-floorplan/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-floorplan/internal/mapview"
	"github.com/nerrad567/gray-logic-floorplan/internal/metrics"
	"github.com/nerrad567/gray-logic-floorplan/internal/telemetry"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// ConnectionStatus reports whether an external connection is up.
// The MQTT and InfluxDB clients satisfy it.
type ConnectionStatus interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config       config.APIConfig
	WS           config.WebSocketConfig
	Security     config.SecurityConfig
	Logger       *logging.Logger
	Repo         floorplan.Repository
	Measurements telemetry.MeasurementSource
	Feeds        mapview.FeedStarter
	ViewStates   mapview.ViewStates
	LoadImage    imagecache.Loader
	Metrics      *metrics.Metrics

	// Audit records configuration changes. Optional.
	Audit audit.Repository

	// Optional status sources for /api/v1/status.
	DB       *sql.DB
	MQTT     ConnectionStatus
	InfluxDB ConnectionStatus

	Version string
}

// Server is the HTTP API server of the floor plan service.
//
// It manages the HTTP listener, routes, middleware and WebSocket sessions.
// The server is created with New() and started with Start().
type Server struct {
	cfg          config.APIConfig
	wsCfg        config.WebSocketConfig
	secCfg       config.SecurityConfig
	logger       *logging.Logger
	repo         floorplan.Repository
	measurements telemetry.MeasurementSource
	feeds        mapview.FeedStarter
	viewStates   mapview.ViewStates
	loadImage    imagecache.Loader
	metrics      *metrics.Metrics
	audit        audit.Repository
	db           *sql.DB
	mqtt         ConnectionStatus
	influx       ConnectionStatus
	version      string
	startTime    time.Time

	sessions *sessionRegistry

	server *http.Server
	srvCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Repo == nil {
		return nil, fmt.Errorf("configuration repository is required")
	}
	if deps.Feeds == nil {
		return nil, fmt.Errorf("feed manager is required")
	}
	if deps.Security.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	srvCtx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:          deps.Config,
		wsCfg:        deps.WS,
		secCfg:       deps.Security,
		logger:       deps.Logger,
		repo:         deps.Repo,
		measurements: deps.Measurements,
		feeds:        deps.Feeds,
		viewStates:   deps.ViewStates,
		loadImage:    deps.LoadImage,
		metrics:      deps.Metrics,
		audit:        deps.Audit,
		db:           deps.DB,
		mqtt:         deps.MQTT,
		influx:       deps.InfluxDB,
		version:      deps.Version,
		startTime:    time.Now(),
		sessions:     newSessionRegistry(),
		srvCtx:       srvCtx,
		cancel:       cancel,
	}, nil
}

// Handler returns the HTTP handler with all routes and middleware.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close closes every open session, then gracefully shuts down the HTTP
// server. It waits up to 10 seconds for in-flight requests to complete.
func (s *Server) Close() error {
	s.cancel()
	n := s.sessions.closeAll()
	s.wg.Wait()
	if n > 0 {
		s.logger.Info("closed floor plan sessions", "count", n)
	}

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}

// SessionCount returns the number of open floor plan sessions.
func (s *Server) SessionCount() int {
	return s.sessions.count()
}
