// Gray Logic Floor Plan - live building floor plan service
//
// This is the main entry point for the floor plan service. It serves
// indoor floor plans with device markers coloured by live telemetry:
//   - Building and widget configuration in SQLite
//   - Live measurements over MQTT, latest values and events from InfluxDB
//   - Viewport persistence in SQLite or Redis
//   - One WebSocket session per mounted floor plan view
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	_ "github.com/nerrad567/gray-logic-floorplan/migrations"

	"github.com/nerrad567/gray-logic-floorplan/internal/api"
	"github.com/nerrad567/gray-logic-floorplan/internal/audit"
	"github.com/nerrad567/gray-logic-floorplan/internal/feed"
	"github.com/nerrad567/gray-logic-floorplan/internal/floorplan"
	"github.com/nerrad567/gray-logic-floorplan/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-floorplan/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-floorplan/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-floorplan/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-floorplan/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-floorplan/internal/metrics"
	"github.com/nerrad567/gray-logic-floorplan/internal/telemetry"
	"github.com/nerrad567/gray-logic-floorplan/internal/viewstate"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// viewStateCloseTimeout bounds the final viewport flush on shutdown.
const viewStateCloseTimeout = 5 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Logic Floor Plan",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// InfluxDB answers the latest-value and latest-event queries. Without
	// it markers only colour from live MQTT updates.
	var (
		influxClient *influxdb.Client
		measurements telemetry.MeasurementSource
		events       telemetry.EventSource
	)
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		source := telemetry.NewInfluxSource(influxClient)
		measurements, events = source, source
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	store, closeStore, err := openViewStateStore(ctx, cfg, db)
	if err != nil {
		return fmt.Errorf("opening view state store: %w", err)
	}
	defer closeStore()
	views := viewstate.NewWriter(store, cfg.GetViewStateFlushInterval())
	views.SetLogger(log.With("component", "viewstate"))
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), viewStateCloseTimeout)
		defer cancel()
		if closeErr := views.Close(closeCtx); closeErr != nil {
			log.Error("error flushing view states", "error", closeErr)
		}
	}()
	log.Info("view state store ready", "backend", cfg.ViewState.Backend)

	m := metrics.New()

	subscriber := telemetry.NewMQTTSubscriber(mqttClient, byte(cfg.Feed.QoS))
	subscriber.SetLogger(log.With("component", "telemetry"))
	feeds := feed.NewManager(subscriber, events, cfg.GetPollInterval())
	feeds.SetLogger(log.With("component", "feed"))
	feeds.SetMetrics(m)

	assets := telemetry.NewHTTPAssetLoader(
		cfg.Assets.BaseURL,
		cfg.Assets.Token,
		cfg.GetAssetTimeout(),
		cfg.ImageCache.MaxImageBytes,
	)

	deps := api.Deps{
		Config:       cfg.API,
		WS:           cfg.WebSocket,
		Security:     cfg.Security,
		Logger:       log,
		Repo:         floorplan.NewSQLiteRepository(db.DB),
		Measurements: measurements,
		Feeds:        feeds,
		ViewStates:   views,
		LoadImage:    assets.Load,
		Metrics:      m,
		Audit:        audit.NewSQLiteRepository(db.DB),
		DB:           db.DB,
		MQTT:         mqttClient,
		Version:      version,
	}
	if influxClient != nil {
		deps.InfluxDB = influxClient
	}
	srv, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server (disposes sessions, stopping every feed)
	// 2. View state writer (final flush)
	// 3. View state store
	// 4. InfluxDB (if enabled)
	// 5. MQTT
	// 6. Database

	log.Info("Gray Logic Floor Plan stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// openViewStateStore returns the configured viewport backend and a function
// releasing it.
func openViewStateStore(ctx context.Context, cfg *config.Config, db *database.DB) (viewstate.Store, func(), error) {
	switch cfg.ViewState.Backend {
	case "memory":
		return viewstate.NewMemoryStore(), func() {}, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.ViewState.Redis.Addr,
			Password: cfg.ViewState.Redis.Password,
			DB:       cfg.ViewState.Redis.DB,
		})
		store := viewstate.NewRedisStore(client, time.Duration(cfg.ViewState.Redis.TTL)*time.Hour)
		if err := store.HealthCheck(ctx); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis %s: %w", cfg.ViewState.Redis.Addr, err)
		}
		return store, func() { _ = client.Close() }, nil
	case "sqlite", "":
		return viewstate.NewSQLiteStore(db.DB), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown view state backend %q", cfg.ViewState.Backend)
	}
}

// healthCheck verifies all infrastructure connections are healthy.
// influxClient may be nil when InfluxDB is disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
