// fpseed loads a floor plan fixture into the configuration database and,
// when InfluxDB is enabled, writes the fixture's sample telemetry so a fresh
// installation has something to show.
//
// Usage:
//
//	fpseed -fixture configs/fixture.yaml
//
// The service configuration is read from GRAYLOGIC_CONFIG or
// configs/config.yaml, like the service itself.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	_ "github.com/nerrad567/gray-logic-floorplan/migrations"

	"github.com/nerrad567/gray-logic-floorplan/internal/floorplan"
	"github.com/nerrad567/gray-logic-floorplan/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-floorplan/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-floorplan/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-floorplan/internal/infrastructure/logging"
)

const defaultConfigPath = "configs/config.yaml"

// fixture is the seed file layout. Buildings and widgets use the same JSON
// field names as the REST API.
type fixture struct {
	Buildings    []floorplan.Building     `json:"buildings"`
	Widgets      []floorplan.WidgetConfig `json:"widgets"`
	Measurements []sampleMeasurement      `json:"measurements"`
	Events       []sampleEvent            `json:"events"`
}

type sampleMeasurement struct {
	DeviceID string    `json:"device_id"`
	Fragment string    `json:"fragment"`
	Series   string    `json:"series"`
	Value    float64   `json:"value"`
	Unit     string    `json:"unit"`
	Time     time.Time `json:"time"`
}

type sampleEvent struct {
	DeviceID string    `json:"device_id"`
	Type     string    `json:"type"`
	Text     string    `json:"text"`
	Time     time.Time `json:"time"`
}

// telemetryWriter is the write side of the InfluxDB client.
type telemetryWriter interface {
	WriteMeasurement(ctx context.Context, deviceID, fragment, series string, value float64, unit string, ts time.Time) error
	WriteEvent(ctx context.Context, deviceID string, e influxdb.EventPoint) error
}

// summary counts what seed wrote.
type summary struct {
	Buildings    int
	Widgets      int
	Measurements int
	Events       int
}

func main() {
	fixturePath := flag.String("fixture", "", "path to the fixture YAML file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *fixturePath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, fixturePath string) error {
	if fixturePath == "" {
		return errors.New("-fixture is required")
	}
	fx, err := loadFixture(fixturePath)
	if err != nil {
		return err
	}

	configPath := defaultConfigPath
	if p := os.Getenv("GRAYLOGIC_CONFIG"); p != "" {
		configPath = p
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log := logging.New(cfg.Logging, "fpseed")

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // Process exit
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	var tw telemetryWriter
	if cfg.InfluxDB.Enabled {
		client, err := influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer client.Close() //nolint:errcheck // Process exit
		tw = client
	} else if len(fx.Measurements)+len(fx.Events) > 0 {
		log.Warn("InfluxDB disabled, skipping sample telemetry",
			"measurements", len(fx.Measurements),
			"events", len(fx.Events),
		)
	}

	sum, err := seed(ctx, fx, floorplan.NewSQLiteRepository(db.DB), tw, time.Now())
	if err != nil {
		return err
	}
	log.Info("fixture loaded",
		"path", fixturePath,
		"buildings", sum.Buildings,
		"widgets", sum.Widgets,
		"measurements", sum.Measurements,
		"events", sum.Events,
	)
	return nil
}

// loadFixture reads a YAML fixture. The document is decoded generically and
// re-encoded as JSON so the API's JSON field names apply.
func loadFixture(path string) (*fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixture: %w", err)
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing fixture: %w", err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("converting fixture: %w", err)
	}
	var fx fixture
	if err := json.Unmarshal(raw, &fx); err != nil {
		return nil, fmt.Errorf("decoding fixture: %w", err)
	}
	return &fx, nil
}

// seed writes buildings before widgets so widget references resolve.
// Telemetry without a time is stamped with now. A nil tw skips telemetry.
func seed(ctx context.Context, fx *fixture, repo floorplan.Repository, tw telemetryWriter, now time.Time) (summary, error) {
	var sum summary
	for i := range fx.Buildings {
		b := &fx.Buildings[i]
		if err := repo.SaveBuilding(ctx, b); err != nil {
			return sum, fmt.Errorf("building %q: %w", b.ID, err)
		}
		sum.Buildings++
	}
	for i := range fx.Widgets {
		w := &fx.Widgets[i]
		if err := repo.SaveWidget(ctx, w); err != nil {
			return sum, fmt.Errorf("widget %q: %w", w.ID, err)
		}
		sum.Widgets++
	}

	if tw == nil {
		return sum, nil
	}
	for _, m := range fx.Measurements {
		ts := m.Time
		if ts.IsZero() {
			ts = now
		}
		if err := tw.WriteMeasurement(ctx, m.DeviceID, m.Fragment, m.Series, m.Value, m.Unit, ts); err != nil {
			return sum, fmt.Errorf("measurement of %q: %w", m.DeviceID, err)
		}
		sum.Measurements++
	}
	for _, e := range fx.Events {
		ts := e.Time
		if ts.IsZero() {
			ts = now
		}
		if err := tw.WriteEvent(ctx, e.DeviceID, influxdb.EventPoint{Type: e.Type, Text: e.Text, Time: ts}); err != nil {
			return sum, fmt.Errorf("event of %q: %w", e.DeviceID, err)
		}
		sum.Events++
	}
	return sum, nil
}
