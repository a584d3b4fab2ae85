package settings

import (
	"fmt"
	"math"
	"time"
)

// Connection defaults.
const (
	DefaultConnectTimeout = 60 * time.Second
	DefaultKeepAlive      = 60 * time.Second
)

// TLSConfig carries TLS enablement and optional certificate material.
//
// Turning this into a secure transport is left to an engine.TLSProvider.
type TLSConfig struct {
	Enabled           bool
	CACert            string // PEM
	ClientCert        string // PEM
	ClientKeyPassword string
}

// Will is the last-will message the broker publishes if the client vanishes.
type Will struct {
	Topic    string
	Payload  string
	QoS      QoS
	Retained bool
}

// ConnectionConfig holds every setting a client is built from.
//
// It is a plain value: a client keeps its own copy, so changing a config after
// the client was created has no effect. Applying a new config needs a new client.
type ConnectionConfig struct {
	// ClientID identifies the session at the broker. Left empty, the engine
	// generates one.
	ClientID string

	Username string
	Password string
	TLS      TLSConfig
	Version  ProtocolVersion

	// CleanStart discards any session state the broker holds for ClientID.
	CleanStart bool

	// Will is sent with CONNECT when Will.Topic is set.
	Will Will

	// ConnectTimeout bounds connect, and is the only bound on subscribe,
	// unsubscribe and disconnect.
	ConnectTimeout time.Duration

	AutoReconnect bool

	// RetryInterval is the pause between automatic reconnect attempts.
	RetryInterval time.Duration

	KeepAlive time.Duration
}

// DefaultConnectionConfig returns the defaults: MQTT 5, clean start, 60s
// connect timeout and keep-alive, no automatic reconnect.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		Version:        DefaultVersion,
		CleanStart:     true,
		ConnectTimeout: DefaultConnectTimeout,
		KeepAlive:      DefaultKeepAlive,
	}
}

// HasWill reports whether a will message is configured.
func (c ConnectionConfig) HasWill() bool {
	return c.Will.Topic != ""
}

// Normalized returns the config with out-of-range enumerations coerced to
// their defaults and a zero connect timeout replaced by the default.
func (c ConnectionConfig) Normalized() ConnectionConfig {
	c.Version = VersionFromValue(int(c.Version))
	c.Will.QoS = QoSFromLevel(int(c.Will.QoS))
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	return c
}

// Validate reports configuration errors that no engine could work with.
func (c ConnectionConfig) Validate() error {
	if c.ConnectTimeout < 0 {
		return fmt.Errorf("%w: connect timeout must not be negative", ErrInvalidConfig)
	}
	if c.RetryInterval < 0 || c.RetryInterval > math.MaxUint16*time.Second {
		return fmt.Errorf("%w: retry interval %v out of range", ErrInvalidConfig, c.RetryInterval)
	}
	if c.KeepAlive < 0 || c.KeepAlive > math.MaxUint16*time.Second {
		return fmt.Errorf("%w: keep-alive %v out of range", ErrInvalidConfig, c.KeepAlive)
	}
	if c.Will.Payload != "" && c.Will.Topic == "" {
		return fmt.Errorf("%w: will payload set without a will topic", ErrInvalidConfig)
	}
	if c.Password != "" && c.Username == "" && c.Version == Legacy {
		return fmt.Errorf("%w: MQTT 3.1.1 does not allow a password without a username", ErrInvalidConfig)
	}
	return nil
}
