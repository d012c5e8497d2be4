package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for boxlink.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Hub       HubConfig       `yaml:"hub"`
	Polling   PollingConfig   `yaml:"polling"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// HubConfig describes how the box is reached.
type HubConfig struct {
	// APIVersion is the initial value of the api_version setting.
	APIVersion int `yaml:"api_version"`

	// Origin is used as the single box when discovery is disabled,
	// e.g. "https://box.local:443".
	Origin string `yaml:"origin"`

	// RequestTimeout bounds every request to the box.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// BinaryMediaType is accepted for binary operation results.
	BinaryMediaType string `yaml:"binary_media_type"`

	// InsecureSkipVerify accepts the box's self-signed certificate.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// PollingConfig seeds the polling settings.
type PollingConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// DiscoveryConfig contains mDNS browse settings.
type DiscoveryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceType string `yaml:"service_type"`
	Interface   string `yaml:"interface"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
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

// MQTTReconnectConfig contains MQTT reconnection settings, in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains local HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
	Panel    PanelConfig      `yaml:"panel"`
	Audit    AuditConfig      `yaml:"audit"`
}

// PanelConfig controls the web UI served next to the API.
type PanelConfig struct {
	Enabled bool `yaml:"enabled"`

	// Dir serves the UI from disk instead of the built-in page.
	Dir string `yaml:"dir"`
}

// AuditConfig controls the activity log of writes made through the API
// and MQTT.
type AuditConfig struct {
	Enabled bool `yaml:"enabled"`

	// RetentionDays prunes older entries at startup. 0 keeps everything.
	RetentionDays int `yaml:"retention_days"`
}

// APITimeoutConfig contains HTTP timeout settings, in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// An empty path skips step 2. Environment variables follow the pattern
// BOXLINK_SECTION_KEY, e.g. BOXLINK_HUB_ORIGIN or BOXLINK_DATABASE_PATH.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration with environment overrides
// applied and no validation.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Hub: HubConfig{
			APIVersion:         1,
			RequestTimeout:     5 * time.Second,
			BinaryMediaType:    "image/jpeg",
			InsecureSkipVerify: true,
		},
		Polling: PollingConfig{
			Enabled:  true,
			Interval: 2 * time.Second,
		},
		Discovery: DiscoveryConfig{
			Enabled:     true,
			ServiceType: "_https._tcp",
		},
		Database: DatabaseConfig{
			Path:        "./data/boxlink.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "boxlink",
			},
			QoS:         1,
			TopicPrefix: "boxlink",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			Bucket:        "boxlink",
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			Panel: PanelConfig{Enabled: true},
			Audit: AuditConfig{Enabled: true, RetentionDays: 30},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// envPrefix starts every environment override.
const envPrefix = "BOXLINK_"

// envOverrides maps BOXLINK_<key> to the field it sets. Values that do not
// parse for the field's type are ignored.
func envOverrides(cfg *Config) map[string]any {
	return map[string]any{
		"HUB_ORIGIN":          &cfg.Hub.Origin,
		"HUB_API_VERSION":     &cfg.Hub.APIVersion,
		"HUB_REQUEST_TIMEOUT": &cfg.Hub.RequestTimeout,
		"HUB_INSECURE":        &cfg.Hub.InsecureSkipVerify,

		"POLLING_ENABLED":  &cfg.Polling.Enabled,
		"POLLING_INTERVAL": &cfg.Polling.Interval,

		"DISCOVERY_ENABLED":   &cfg.Discovery.Enabled,
		"DISCOVERY_INTERFACE": &cfg.Discovery.Interface,

		"DATABASE_PATH": &cfg.Database.Path,

		"MQTT_ENABLED":  &cfg.MQTT.Enabled,
		"MQTT_HOST":     &cfg.MQTT.Broker.Host,
		"MQTT_PORT":     &cfg.MQTT.Broker.Port,
		"MQTT_USERNAME": &cfg.MQTT.Auth.Username,
		"MQTT_PASSWORD": &cfg.MQTT.Auth.Password,

		"INFLUXDB_ENABLED": &cfg.InfluxDB.Enabled,
		"INFLUXDB_URL":     &cfg.InfluxDB.URL,
		"INFLUXDB_TOKEN":   &cfg.InfluxDB.Token,

		"API_ENABLED":   &cfg.API.Enabled,
		"API_HOST":      &cfg.API.Host,
		"API_PORT":      &cfg.API.Port,
		"API_PANEL_DIR": &cfg.API.Panel.Dir,

		"LOG_LEVEL":  &cfg.Logging.Level,
		"LOG_FORMAT": &cfg.Logging.Format,
	}
}

func applyEnvOverrides(cfg *Config) {
	for key, field := range envOverrides(cfg) {
		v, ok := os.LookupEnv(envPrefix + key)
		if !ok || v == "" {
			continue
		}
		setField(field, v)
	}
}

func setField(field any, v string) {
	switch f := field.(type) {
	case *string:
		*f = v
	case *int:
		if n, err := strconv.Atoi(v); err == nil {
			*f = n
		}
	case *bool:
		if b, err := strconv.ParseBool(v); err == nil {
			*f = b
		}
	case *time.Duration:
		if d, err := time.ParseDuration(v); err == nil {
			*f = d
		}
	}
}

// Validate checks the configuration for errors.
//
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []string

	// Hub
	if c.Hub.APIVersion < 1 {
		errs = append(errs, "hub.api_version must be at least 1")
	}
	if c.Hub.RequestTimeout <= 0 {
		errs = append(errs, "hub.request_timeout must be positive")
	}
	if c.Hub.Origin != "" {
		u, err := url.Parse(c.Hub.Origin)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Hostname() == "" {
			errs = append(errs, "hub.origin must be an http(s) URL with a host")
		}
	}
	if !c.Discovery.Enabled && c.Hub.Origin == "" {
		errs = append(errs, "hub.origin is required when discovery is disabled")
	}

	// Polling
	if c.Polling.Interval <= 0 {
		errs = append(errs, "polling.interval must be positive")
	}

	// Discovery
	if c.Discovery.Enabled && c.Discovery.ServiceType == "" {
		errs = append(errs, "discovery.service_type is required")
	}

	// Database
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required when mqtt is enabled")
	}

	// InfluxDB
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url, influxdb.org and influxdb.bucket are required when influxdb is enabled")
	}

	// API
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.Audit.RetentionDays < 0 {
		errs = append(errs, "api.audit.retention_days must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ReadTimeout returns the read timeout as a Duration.
func (t APITimeoutConfig) ReadTimeout() time.Duration {
	return time.Duration(t.Read) * time.Second
}

// WriteTimeout returns the write timeout as a Duration.
func (t APITimeoutConfig) WriteTimeout() time.Duration {
	return time.Duration(t.Write) * time.Second
}

// IdleTimeout returns the keep-alive idle timeout as a Duration.
func (t APITimeoutConfig) IdleTimeout() time.Duration {
	return time.Duration(t.Idle) * time.Second
}
