package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the floor plan service.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site       SiteConfig       `yaml:"site"`
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	API        APIConfig        `yaml:"api"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
	Security   SecurityConfig   `yaml:"security"`
	Feed       FeedConfig       `yaml:"feed"`
	ViewState  ViewStateConfig  `yaml:"viewstate"`
	Assets     AssetsConfig     `yaml:"assets"`
	ImageCache ImageCacheConfig `yaml:"imagecache"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`

	// ViewerDir serves the browser viewer from disk instead of the
	// embedded copy. Empty uses the embedded copy.
	ViewerDir string `yaml:"viewer_dir"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket session settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
// InfluxDB is the query side of the telemetry service: latest measurements
// and events are read from it.
type InfluxDBConfig struct {
	Enabled        bool   `yaml:"enabled"`
	URL            string `yaml:"url"`
	Token          string `yaml:"token"`
	Org            string `yaml:"org"`
	Bucket         string `yaml:"bucket"`
	QueryTimeout   int    `yaml:"query_timeout"`
	LookbackWindow string `yaml:"lookback_window"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT validation settings. Tokens are issued by the
// platform's identity service; this service only verifies them.
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// FeedConfig contains realtime feed settings.
type FeedConfig struct {
	// PollInterval is the event polling period in seconds.
	PollInterval int `yaml:"poll_interval"`
	// QoS used for per-device measurement subscriptions.
	QoS int `yaml:"qos"`
}

// ViewStateConfig selects and configures the viewport persistence backend.
type ViewStateConfig struct {
	// Backend is "sqlite", "redis" or "memory".
	Backend string `yaml:"backend"`
	// FlushInterval is the coalescing window for viewport writes in milliseconds.
	FlushInterval int         `yaml:"flush_interval"`
	Redis         RedisConfig `yaml:"redis"`
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// TTL for stored view states in hours. 0 keeps them forever.
	TTL int `yaml:"ttl"`
}

// AssetsConfig points at the binary asset service that stores floor plan images.
type AssetsConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
	Timeout int    `yaml:"timeout"`
}

// ImageCacheConfig contains per-session image cache limits.
type ImageCacheConfig struct {
	// MaxImageBytes rejects floor plan images larger than this.
	MaxImageBytes int64 `yaml:"max_image_bytes"`
}

const (
	minPollInterval = 1
	maxPollInterval = 300
)

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
// For example: GRAYLOGIC_DATABASE_PATH, GRAYLOGIC_FEED_POLL_INTERVAL
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "Gray Logic",
		},
		Database: DatabaseConfig{
			Path:        "./data/floorplan.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-floorplan",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			QueryTimeout:   10,
			LookbackWindow: "-30d",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Feed: FeedConfig{
			PollInterval: 10,
			QoS:          1,
		},
		ViewState: ViewStateConfig{
			Backend:       "sqlite",
			FlushInterval: 500,
			Redis: RedisConfig{
				Addr: "localhost:6379",
			},
		},
		Assets: AssetsConfig{
			Timeout: 15,
		},
		ImageCache: ImageCacheConfig{
			MaxImageBytes: 20 << 20,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GRAYLOGIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("GRAYLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("GRAYLOGIC_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("GRAYLOGIC_FEED_POLL_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Feed.PollInterval = n
		}
	}

	if v := os.Getenv("GRAYLOGIC_VIEWSTATE_BACKEND"); v != "" {
		cfg.ViewState.Backend = v
	}
	if v := os.Getenv("GRAYLOGIC_REDIS_ADDR"); v != "" {
		cfg.ViewState.Redis.Addr = v
	}
	if v := os.Getenv("GRAYLOGIC_REDIS_PASSWORD"); v != "" {
		cfg.ViewState.Redis.Password = v
	}

	if v := os.Getenv("GRAYLOGIC_ASSETS_TOKEN"); v != "" {
		cfg.Assets.Token = v
	}

	// Security - JWT secret (IMPORTANT: always override in production)
	if v := os.Getenv("GRAYLOGIC_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.Feed.QoS < 0 || c.Feed.QoS > 2 {
		errs = append(errs, "feed.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Feed.PollInterval < minPollInterval || c.Feed.PollInterval > maxPollInterval {
		errs = append(errs, fmt.Sprintf("feed.poll_interval must be between %d and %d seconds", minPollInterval, maxPollInterval))
	}

	switch c.ViewState.Backend {
	case "sqlite", "memory":
	case "redis":
		if c.ViewState.Redis.Addr == "" {
			errs = append(errs, "viewstate.redis.addr is required for the redis backend")
		}
	default:
		errs = append(errs, "viewstate.backend must be sqlite, redis, or memory")
	}
	if c.ViewState.FlushInterval < 0 {
		errs = append(errs, "viewstate.flush_interval must not be negative")
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	// Session tokens grant live access to building telemetry; weak secrets
	// let anyone forge them.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set GRAYLOGIC_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetPollInterval returns the event polling period.
func (c *Config) GetPollInterval() time.Duration {
	return time.Duration(c.Feed.PollInterval) * time.Second
}

// GetViewStateFlushInterval returns the viewport write coalescing window.
func (c *Config) GetViewStateFlushInterval() time.Duration {
	return time.Duration(c.ViewState.FlushInterval) * time.Millisecond
}

// GetAssetTimeout returns the binary asset fetch timeout.
func (c *Config) GetAssetTimeout() time.Duration {
	return time.Duration(c.Assets.Timeout) * time.Second
}

// GetQueryTimeout returns the telemetry query timeout.
func (c *Config) GetQueryTimeout() time.Duration {
	return time.Duration(c.InfluxDB.QueryTimeout) * time.Second
}
