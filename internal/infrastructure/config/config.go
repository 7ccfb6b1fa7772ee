package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Dispatch modes accepted in dispatch.mode.
const (
	ModeConfirmed     = "confirmed"
	ModeFireAndForget = "fire_and_forget"
)

// Dispatch strategies accepted in dispatch.strategy.
const (
	StrategyConcurrent = "concurrent"
	StrategyPool       = "pool"
)

// Config is the root configuration structure for gatewayctl.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Gateway   GatewayConfig   `yaml:"gateway"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Batch     BatchConfig     `yaml:"batch"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// GatewayConfig describes the single smart-home gateway being controlled.
type GatewayConfig struct {
	Host   string `yaml:"host"`
	Scheme string `yaml:"scheme"`

	// Token is the static bearer credential (network PIN) sent on every request.
	Token string `yaml:"token"`

	// InsecureSkipVerify disables certificate validation. The gateway sits on a
	// trusted local network and ships a self-signed certificate.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`

	// Timeout is the transport default in seconds, used by directory fetches,
	// state reads and fire-and-forget commands.
	Timeout int `yaml:"timeout"`
}

// DispatchConfig controls the command dispatcher.
type DispatchConfig struct {
	Mode     string `yaml:"mode"`     // confirmed, fire_and_forget
	Strategy string `yaml:"strategy"` // concurrent, pool

	// MaxConcurrency caps in-flight commands in confirmed mode.
	MaxConcurrency int `yaml:"max_concurrency"`

	// FireAndForgetConcurrency caps in-flight commands in fire-and-forget mode.
	FireAndForgetConcurrency int `yaml:"fire_and_forget_concurrency"`

	// PoolWorkers is the number of isolated transports for the pool strategy.
	// 0 means one per CPU.
	PoolWorkers int `yaml:"pool_workers"`

	MaxRetries       int  `yaml:"max_retries"`
	RetryDelayMS     int  `yaml:"retry_delay_ms"`
	RequestTimeoutMS int  `yaml:"request_timeout_ms"`
	Reconcile        bool `yaml:"reconcile"`
	ReconcileRetries int  `yaml:"reconcile_retries"`
}

// BatchConfig controls progressive batching.
type BatchConfig struct {
	Size    int `yaml:"size"`
	DelayMS int `yaml:"delay_ms"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
	TopicPrefix string              `yaml:"topic_prefix"`
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

// APIConfig contains local control API settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Token    string           `yaml:"token"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
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
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
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
// Environment variables follow the pattern: GATEWAYCTL_SECTION_KEY
// For example: GATEWAYCTL_GATEWAY_HOST, GATEWAYCTL_GATEWAY_TOKEN
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

// Default returns the built-in configuration with environment overrides applied.
// It is used when no config file exists.
func Default() (*Config, error) {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host:               "192.168.0.109",
			Scheme:             "http",
			InsecureSkipVerify: true,
			Timeout:            30,
		},
		Dispatch: DispatchConfig{
			Mode:                     ModeConfirmed,
			Strategy:                 StrategyConcurrent,
			MaxConcurrency:           10,
			FireAndForgetConcurrency: 20,
			MaxRetries:               3,
			RetryDelayMS:             500,
			RequestTimeoutMS:         10000,
			Reconcile:                true,
			ReconcileRetries:         2,
		},
		Batch: BatchConfig{
			Size:    5,
			DelayMS: 1000,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "gatewayctl",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			TopicPrefix: "gatewayctl",
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 120,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GATEWAYCTL_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Gateway
	if v := os.Getenv("GATEWAYCTL_GATEWAY_HOST"); v != "" {
		cfg.Gateway.Host = v
	}
	if v := os.Getenv("GATEWAYCTL_GATEWAY_TOKEN"); v != "" {
		cfg.Gateway.Token = v
	}

	// MQTT
	if v := os.Getenv("GATEWAYCTL_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GATEWAYCTL_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GATEWAYCTL_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("GATEWAYCTL_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// API
	if v := os.Getenv("GATEWAYCTL_API_TOKEN"); v != "" {
		cfg.API.Token = v
	}

	// Logging
	if v := os.Getenv("GATEWAYCTL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// All problems are collected so a broken file can be fixed in one pass.
func (c *Config) Validate() error {
	var errs []string

	// Gateway validation
	if c.Gateway.Host == "" {
		errs = append(errs, "gateway.host is required")
	}
	if c.Gateway.Scheme != "http" && c.Gateway.Scheme != "https" {
		errs = append(errs, "gateway.scheme must be http or https")
	}
	if c.Gateway.Timeout < 0 {
		errs = append(errs, "gateway.timeout must not be negative")
	}

	// Dispatch validation
	switch c.Dispatch.Mode {
	case ModeConfirmed, ModeFireAndForget:
	default:
		errs = append(errs, "dispatch.mode must be confirmed or fire_and_forget")
	}
	switch c.Dispatch.Strategy {
	case StrategyConcurrent, StrategyPool:
	default:
		errs = append(errs, "dispatch.strategy must be concurrent or pool")
	}
	if c.Dispatch.MaxConcurrency < 1 {
		errs = append(errs, "dispatch.max_concurrency must be at least 1")
	}
	if c.Dispatch.FireAndForgetConcurrency < 1 {
		errs = append(errs, "dispatch.fire_and_forget_concurrency must be at least 1")
	}
	if c.Dispatch.PoolWorkers < 0 {
		errs = append(errs, "dispatch.pool_workers must not be negative")
	}
	if c.Dispatch.MaxRetries < 0 || c.Dispatch.ReconcileRetries < 0 {
		errs = append(errs, "dispatch retry counts must not be negative")
	}
	if c.Dispatch.RetryDelayMS < 0 || c.Dispatch.RequestTimeoutMS < 0 {
		errs = append(errs, "dispatch delays must not be negative")
	}

	// Batch validation
	if c.Batch.Size < 1 {
		errs = append(errs, "batch.size must be at least 1")
	}
	if c.Batch.DelayMS < 0 {
		errs = append(errs, "batch.delay_ms must not be negative")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required when mqtt is enabled")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GatewayBaseURL returns the scheme://host prefix for gateway requests.
func (c *Config) GatewayBaseURL() string {
	return c.Gateway.Scheme + "://" + c.Gateway.Host
}

// GetGatewayTimeout returns the transport default timeout as a Duration.
func (c *Config) GetGatewayTimeout() time.Duration {
	return time.Duration(c.Gateway.Timeout) * time.Second
}

// GetRetryDelay returns the inter-attempt delay as a Duration.
func (c *Config) GetRetryDelay() time.Duration {
	return time.Duration(c.Dispatch.RetryDelayMS) * time.Millisecond
}

// GetRequestTimeout returns the confirmed-mode per-request timeout as a Duration.
func (c *Config) GetRequestTimeout() time.Duration {
	return time.Duration(c.Dispatch.RequestTimeoutMS) * time.Millisecond
}

// GetBatchDelay returns the inter-batch delay as a Duration.
func (c *Config) GetBatchDelay() time.Duration {
	return time.Duration(c.Batch.DelayMS) * time.Millisecond
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
