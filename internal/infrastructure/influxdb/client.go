package influxdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/gray-logic-floorplan/internal/infrastructure/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPingTimeout    = 5 * time.Second
	defaultQueryTimeout   = 10 * time.Second
	defaultLookback       = "-30d"
)

// Client wraps the InfluxDB v2 client for telemetry lookups.
//
// The floor plan service reads from InfluxDB: the newest value of a device
// datapoint when a level loads or a popup opens, and the newest event per
// device on every poll tick.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client   influxdb2.Client
	queryAPI api.QueryAPI
	writeAPI api.WriteAPIBlocking
	cfg      config.InfluxDBConfig

	queryTimeout time.Duration
	lookback     string

	connected bool
	mu        sync.RWMutex
}

// Connect creates the client and verifies the server with a ping.
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	c := &Client{
		client:       client,
		queryAPI:     client.QueryAPI(cfg.Org),
		writeAPI:     client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		cfg:          cfg,
		queryTimeout: defaultQueryTimeout,
		lookback:     defaultLookback,
		connected:    true,
	}
	if cfg.QueryTimeout > 0 {
		c.queryTimeout = time.Duration(cfg.QueryTimeout) * time.Second
	}
	if cfg.LookbackWindow != "" {
		c.lookback = cfg.LookbackWindow
	}
	return c, nil
}

// Close shuts down the underlying HTTP client.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	c.client.Close()
	return nil
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	checkCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	healthy, err := c.client.Ping(checkCtx)
	if err != nil {
		return fmt.Errorf("influxdb health check failed: %w", err)
	}
	if !healthy {
		return fmt.Errorf("influxdb health check failed: server not healthy")
	}
	return nil
}

// IsConnected returns the last known connection state.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}
