package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultAPIRoot is the device cloud API root used when device.url is unset.
const DefaultAPIRoot = "https://api.spark.io/v1"

var (
	ErrMissingAccessToken = errors.New("device.access_token is required")
	ErrMissingDeviceID    = errors.New("device.device_id is required")
	ErrInvalidDriver      = errors.New("database.driver must be postgres or sqlite")
	ErrInvalidQoS         = errors.New("mqtt.qos must be 0, 1 or 2")
)

// Config represents the overall application configuration.
type Config struct {
	Device     DeviceConfig     `yaml:"device"`
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Discovery  DiscoveryConfig  `yaml:"discovery"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// DeviceConfig describes the remote garage door device and its timing.
type DeviceConfig struct {
	Name                  string        `yaml:"name"`
	AccessToken           string        `yaml:"access_token"`
	DeviceID              string        `yaml:"device_id"`
	URL                   string        `yaml:"url"`
	PollRateMillis        int           `yaml:"poll_rate"`
	DoorTimeoutMillis     int           `yaml:"door_timeout"`
	RequestTimeoutSeconds int           `yaml:"request_timeout_seconds"`
	HTTPProxy             string        `yaml:"http_proxy"`
	PollRate              time.Duration `yaml:"-"`
	DoorTimeout           time.Duration `yaml:"-"`
	RequestTimeout        time.Duration `yaml:"-"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"`
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// Enabled reports whether both VAPID keys are present.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// MQTTConfig holds the broker settings for state publication.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	TLS         bool   `yaml:"tls"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	QoSLevel    *int   `yaml:"qos"`
	QoS         byte   `yaml:"-"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// DiscoveryConfig controls mDNS advertisement of the control API.
type DiscoveryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance"`
	Service  string `yaml:"service"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills every optional field left at its zero value and derives durations.
func (cfg *Config) ApplyDefaults() {
	d := &cfg.Device
	if d.Name == "" {
		d.Name = "Garage Door"
	}
	if d.URL == "" {
		d.URL = DefaultAPIRoot
	}
	if d.PollRateMillis <= 0 {
		d.PollRateMillis = 2000
	}
	if d.DoorTimeoutMillis <= 0 {
		d.DoorTimeoutMillis = 6000
	}
	if d.RequestTimeoutSeconds <= 0 {
		d.RequestTimeoutSeconds = 10
	}
	d.PollRate = time.Duration(d.PollRateMillis) * time.Millisecond
	d.DoorTimeout = time.Duration(d.DoorTimeoutMillis) * time.Millisecond
	d.RequestTimeout = time.Duration(d.RequestTimeoutSeconds) * time.Second

	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 300
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "garage-sentry.db"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}
	if cfg.WorkerPool.Size <= 0 {
		cfg.WorkerPool.Size = 1
	}

	if cfg.MQTT.Port <= 0 {
		cfg.MQTT.Port = 1883
	}
	cfg.MQTT.QoS = 1
	if q := cfg.MQTT.QoSLevel; q != nil && *q >= 0 && *q <= 2 {
		cfg.MQTT.QoS = byte(*q)
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "garage-sentry-" + d.DeviceID
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "garage-sentry"
	}

	if cfg.Discovery.Instance == "" {
		cfg.Discovery.Instance = d.Name
	}
	if cfg.Discovery.Service == "" {
		cfg.Discovery.Service = "_garage-sentry._tcp"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
}

// Validate checks required fields and enumerated values.
func (cfg *Config) Validate() error {
	if cfg.Device.AccessToken == "" {
		return ErrMissingAccessToken
	}
	if cfg.Device.DeviceID == "" {
		return ErrMissingDeviceID
	}
	switch cfg.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidDriver, cfg.Database.Driver)
	}
	if q := cfg.MQTT.QoSLevel; q != nil && (*q < 0 || *q > 2) {
		return fmt.Errorf("%w: got %d", ErrInvalidQoS, *q)
	}
	return nil
}
