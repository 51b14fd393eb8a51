package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/nerrad567/gray-logic-floorplan/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-floorplan/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-floorplan/internal/viewstate"
)

const testConfigTemplate = `
site:
  id: test-site

database:
  path: "%DB%"
  wal_mode: true
  busy_timeout: 5

mqtt:
  broker:
    host: "127.0.0.1"
    port: 1883
    client_id: "test-client"
    tls: false
  qos: 1
  reconnect:
    initial_delay: 1
    max_delay: 5

influxdb:
  enabled: false

logging:
  level: info
  format: text
  output: stdout

api:
  host: "127.0.0.1"
  port: 8090

security:
  jwt:
    secret: "test-secret-key-at-least-32-characters"
`

func writeTestConfig(t *testing.T, dbPath string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "test-config.yaml")
	content := []byte(strings.ReplaceAll(testConfigTemplate, "%DB%", dbPath))
	if err := os.WriteFile(configPath, content, 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("GRAYLOGIC_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_MissingDatabasePath verifies run fails when database path is empty.
func TestRun_MissingDatabasePath(t *testing.T) {
	t.Setenv("GRAYLOGIC_CONFIG", writeTestConfig(t, ""))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with empty database path")
	}
}

// TestRun_SuccessfulStartupAndShutdown tests full startup with running services.
// Requires MQTT broker at 127.0.0.1:1883.
func TestRun_SuccessfulStartupAndShutdown(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping startup test in short mode")
	}
	t.Setenv("GRAYLOGIC_CONFIG", writeTestConfig(t, filepath.Join(t.TempDir(), "test.db")))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Logf("run() returned error: %v (may be due to missing MQTT broker)", err)
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("GRAYLOGIC_CONFIG", "")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	expected := "/custom/path/config.yaml"
	t.Setenv("GRAYLOGIC_CONFIG", expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

func TestOpenViewStateStore(t *testing.T) {
	ctx := context.Background()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "views.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	mr := miniredis.RunT(t)

	tests := []struct {
		name    string
		backend string
		addr    string
		want    any
		wantErr bool
	}{
		{name: "memory", backend: "memory", want: &viewstate.MemoryStore{}},
		{name: "sqlite", backend: "sqlite", want: &viewstate.SQLiteStore{}},
		{name: "redis", backend: "redis", addr: mr.Addr(), want: &viewstate.RedisStore{}},
		{name: "redis unreachable", backend: "redis", addr: "127.0.0.1:1", wantErr: true},
		{name: "unknown", backend: "etcd", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{ViewState: config.ViewStateConfig{
				Backend: tt.backend,
				Redis:   config.RedisConfig{Addr: tt.addr, TTL: 1},
			}}
			store, closeStore, err := openViewStateStore(ctx, cfg, db)
			if tt.wantErr {
				if err == nil {
					t.Fatal("openViewStateStore() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("openViewStateStore() error = %v", err)
			}
			defer closeStore()

			if got, want := fmt.Sprintf("%T", store), fmt.Sprintf("%T", tt.want); got != want {
				t.Errorf("store = %s, want %s", got, want)
			}
		})
	}
}
