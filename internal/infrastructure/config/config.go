package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gray-logic-clientwrap/internal/settings"
)

// Config is the root configuration structure for mqttwrap.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Broker        BrokerConfig         `yaml:"broker"`
	Auth          AuthConfig           `yaml:"auth"`
	TLS           TLSConfig            `yaml:"tls"`
	Connection    ConnectionConfig     `yaml:"connection"`
	Subscriptions []SubscriptionConfig `yaml:"subscriptions"`
	Dispatch      DispatchConfig       `yaml:"dispatch"`
	Service       ServiceConfig        `yaml:"service"`
	InfluxDB      InfluxDBConfig       `yaml:"influxdb"`
	Logging       LoggingConfig        `yaml:"logging"`
}

// BrokerConfig identifies the broker and this client.
type BrokerConfig struct {
	URI      string `yaml:"uri"`
	ClientID string `yaml:"client_id"`
}

// AuthConfig contains MQTT authentication credentials.
type AuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// TLSConfig contains TLS settings handed to the TLS provider.
type TLSConfig struct {
	Enabled           bool   `yaml:"enabled"`
	CACert            string `yaml:"ca_cert"`
	ClientCert        string `yaml:"client_cert"`
	ClientKeyPassword string `yaml:"client_key_password"`
}

// ConnectionConfig contains session settings. Durations are in seconds.
type ConnectionConfig struct {
	Version        int        `yaml:"version"`
	CleanStart     bool       `yaml:"clean_start"`
	ConnectTimeout int        `yaml:"connect_timeout"`
	AutoReconnect  bool       `yaml:"auto_reconnect"`
	RetryInterval  int        `yaml:"retry_interval"`
	KeepAlive      int        `yaml:"keep_alive"`
	Will           WillConfig `yaml:"will"`
}

// WillConfig contains the last-will message. An empty topic disables it.
type WillConfig struct {
	Topic    string `yaml:"topic"`
	Payload  string `yaml:"payload"`
	QoS      int    `yaml:"qos"`
	Retained bool   `yaml:"retained"`
}

// SubscriptionConfig is a topic filter subscribed at startup.
type SubscriptionConfig struct {
	Topic string `yaml:"topic"`
	QoS   int    `yaml:"qos"`
}

// DispatchConfig tunes status event delivery.
type DispatchConfig struct {
	QueueSize        int `yaml:"queue_size"`
	EnqueueTimeoutMS int `yaml:"enqueue_timeout_ms"`
}

// ServiceConfig contains background service settings.
type ServiceConfig struct {
	HealthCheckInterval int `yaml:"health_check_interval"` // seconds
}

// InfluxDBConfig contains InfluxDB connection settings for event recording.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"` // seconds
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
//  2. YAML file values (override defaults), skipped when path is empty
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: MQTTWRAP_SECTION_KEY
// For example: MQTTWRAP_BROKER_URI, MQTTWRAP_AUTH_PASSWORD
func Load(path string) (*Config, error) {
	cfg := Default()

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

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Broker: BrokerConfig{
			URI: "mqtt://localhost:1883",
		},
		Connection: ConnectionConfig{
			Version:        int(settings.DefaultVersion),
			CleanStart:     true,
			ConnectTimeout: int(settings.DefaultConnectTimeout / time.Second),
			KeepAlive:      int(settings.DefaultKeepAlive / time.Second),
		},
		Dispatch: DispatchConfig{
			QueueSize:        256,
			EnqueueTimeoutMS: 1000,
		},
		Service: ServiceConfig{
			HealthCheckInterval: 30,
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Bucket:        "mqttwrap",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: MQTTWRAP_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Broker
	if v := os.Getenv("MQTTWRAP_BROKER_URI"); v != "" {
		cfg.Broker.URI = v
	}
	if v := os.Getenv("MQTTWRAP_BROKER_CLIENT_ID"); v != "" {
		cfg.Broker.ClientID = v
	}

	// Auth
	if v := os.Getenv("MQTTWRAP_AUTH_USERNAME"); v != "" {
		cfg.Auth.Username = v
	}
	if v := os.Getenv("MQTTWRAP_AUTH_PASSWORD"); v != "" {
		cfg.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("MQTTWRAP_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("MQTTWRAP_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if _, err := settings.ParseBrokerAddress(c.Broker.URI); err != nil {
		errs = append(errs, fmt.Sprintf("broker.uri: %v", err))
	}

	if c.Connection.Version != int(settings.Legacy) && c.Connection.Version != int(settings.Modern) {
		errs = append(errs, "connection.version must be 4 or 5")
	}
	if c.Connection.ConnectTimeout < 0 || c.Connection.RetryInterval < 0 || c.Connection.KeepAlive < 0 {
		errs = append(errs, "connection timeouts and intervals must not be negative")
	}
	if c.Connection.Will.QoS < 0 || c.Connection.Will.QoS > 2 {
		errs = append(errs, "connection.will.qos must be 0, 1, or 2")
	}

	for i, sub := range c.Subscriptions {
		if sub.Topic == "" {
			errs = append(errs, fmt.Sprintf("subscriptions[%d].topic is required", i))
		}
		if sub.QoS < 0 || sub.QoS > 2 {
			errs = append(errs, fmt.Sprintf("subscriptions[%d].qos must be 0, 1, or 2", i))
		}
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	if err := c.ToConnectionConfig().Validate(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// BrokerAddress parses the broker URI.
func (c *Config) BrokerAddress() (settings.BrokerAddress, error) {
	return settings.ParseBrokerAddress(c.Broker.URI)
}

// ToConnectionConfig converts the file settings to a client configuration.
func (c *Config) ToConnectionConfig() settings.ConnectionConfig {
	return settings.ConnectionConfig{
		ClientID: c.Broker.ClientID,
		Username: c.Auth.Username,
		Password: c.Auth.Password,
		TLS: settings.TLSConfig{
			Enabled:           c.TLS.Enabled,
			CACert:            c.TLS.CACert,
			ClientCert:        c.TLS.ClientCert,
			ClientKeyPassword: c.TLS.ClientKeyPassword,
		},
		Version:    settings.VersionFromValue(c.Connection.Version),
		CleanStart: c.Connection.CleanStart,
		Will: settings.Will{
			Topic:    c.Connection.Will.Topic,
			Payload:  c.Connection.Will.Payload,
			QoS:      settings.QoSFromLevel(c.Connection.Will.QoS),
			Retained: c.Connection.Will.Retained,
		},
		ConnectTimeout: seconds(c.Connection.ConnectTimeout),
		AutoReconnect:  c.Connection.AutoReconnect,
		RetryInterval:  seconds(c.Connection.RetryInterval),
		KeepAlive:      seconds(c.Connection.KeepAlive),
	}
}

// GetEnqueueTimeout returns the dispatcher enqueue timeout as a Duration.
func (c *Config) GetEnqueueTimeout() time.Duration {
	return time.Duration(c.Dispatch.EnqueueTimeoutMS) * time.Millisecond
}

// GetHealthCheckInterval returns the service health check interval as a Duration.
func (c *Config) GetHealthCheckInterval() time.Duration {
	return seconds(c.Service.HealthCheckInterval)
}

// GetFlushInterval returns the InfluxDB flush interval as a Duration.
func (c *Config) GetFlushInterval() time.Duration {
	return seconds(c.InfluxDB.FlushInterval)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
