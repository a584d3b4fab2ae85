package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-clientwrap/internal/settings"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600), "failed to write test config")
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
broker:
  uri: "mqtts://broker.example.com:8883"
  client_id: "test-client"
auth:
  username: "user"
  password: "secret"
connection:
  version: 4
  clean_start: false
  connect_timeout: 5
  auto_reconnect: true
  retry_interval: 2
  keep_alive: 30
  will:
    topic: "status/test"
    payload: "offline"
    qos: 1
subscriptions:
  - topic: "sensors/+"
    qos: 2
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test-client", cfg.Broker.ClientID)
	assert.Equal(t, 4, cfg.Connection.Version)
	require.Len(t, cfg.Subscriptions, 1)
	assert.Equal(t, 2, cfg.Subscriptions[0].QoS)

	// Defaults survive for sections the file omits.
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "mqtt://localhost:1883", cfg.Broker.URI)
	assert.Equal(t, int(settings.Modern), cfg.Connection.Version)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeConfig(t, `
broker:
  uri: "http://broker.example.com"
connection:
  version: 3
subscriptions:
  - topic: ""
    qos: 7
`)

	_, err := Load(path)
	require.Error(t, err)

	for _, want := range []string{"broker.uri", "connection.version", "subscriptions[0].topic", "subscriptions[0].qos"} {
		assert.ErrorContains(t, err, want)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("MQTTWRAP_BROKER_URI", "mqtt://env-broker:1884")
	t.Setenv("MQTTWRAP_BROKER_CLIENT_ID", "env-client")
	t.Setenv("MQTTWRAP_AUTH_USERNAME", "env-user")
	t.Setenv("MQTTWRAP_AUTH_PASSWORD", "env-pass")
	t.Setenv("MQTTWRAP_INFLUXDB_TOKEN", "env-token")
	t.Setenv("MQTTWRAP_LOGGING_LEVEL", "debug")

	cfg := Default()
	applyEnvOverrides(cfg)

	assert.Equal(t, "mqtt://env-broker:1884", cfg.Broker.URI)
	assert.Equal(t, "env-client", cfg.Broker.ClientID)
	assert.Equal(t, AuthConfig{Username: "env-user", Password: "env-pass"}, cfg.Auth)
	assert.Equal(t, "env-token", cfg.InfluxDB.Token)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidate_InfluxDBRequiresBucket(t *testing.T) {
	cfg := Default()
	cfg.InfluxDB.Enabled = true
	cfg.InfluxDB.Bucket = ""

	assert.ErrorContains(t, cfg.Validate(), "influxdb.bucket")
}

func TestValidate_WillPayloadWithoutTopic(t *testing.T) {
	cfg := Default()
	cfg.Connection.Will.Payload = "offline"

	assert.Error(t, cfg.Validate())
}

func TestToConnectionConfig(t *testing.T) {
	cfg := Default()
	cfg.Broker.ClientID = "id-1"
	cfg.Connection.Version = 4
	cfg.Connection.ConnectTimeout = 5
	cfg.Connection.RetryInterval = 3
	cfg.Connection.Will = WillConfig{Topic: "status", Payload: "gone", QoS: 2, Retained: true}
	cfg.TLS.Enabled = true

	conn := cfg.ToConnectionConfig()

	assert.Equal(t, "id-1", conn.ClientID)
	assert.Equal(t, settings.Legacy, conn.Version)
	assert.Equal(t, 5*time.Second, conn.ConnectTimeout)
	assert.Equal(t, 3*time.Second, conn.RetryInterval)
	assert.True(t, conn.HasWill())
	assert.Equal(t, settings.ExactlyOnce, conn.Will.QoS)
	assert.True(t, conn.Will.Retained)
	assert.True(t, conn.TLS.Enabled)
}

func TestBrokerAddress(t *testing.T) {
	cfg := Default()
	cfg.Broker.URI = "tcp://Broker.Local"

	addr, err := cfg.BrokerAddress()
	require.NoError(t, err)
	assert.Equal(t, "mqtt://broker.local:1883", addr.String())
}

func TestDurationGetters(t *testing.T) {
	cfg := Default()

	assert.Equal(t, time.Second, cfg.GetEnqueueTimeout())
	assert.Equal(t, 30*time.Second, cfg.GetHealthCheckInterval())
	assert.Equal(t, 10*time.Second, cfg.GetFlushInterval())
}
