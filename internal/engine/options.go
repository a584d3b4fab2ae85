package engine

import (
	"crypto/tls"
	"math"
	"strings"
	"time"

	"github.com/eclipse/paho.golang/paho"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-clientwrap/internal/mqtterr"
	"github.com/nerrad567/gray-logic-clientwrap/internal/settings"
)

// Engine constants.
const (
	// clientIDPrefix starts every generated client identifier.
	clientIDPrefix = "clientwrap-"

	// disconnectQuiesce is how long the 3.1.1 engine lets in-flight work
	// finish on disconnect, in milliseconds.
	disconnectQuiesce = 250

	// minRetryInterval floors the pause between reconnect attempts.
	minRetryInterval = time.Second
)

// generateClientID returns clientIDPrefix followed by 12 hex characters.
// The result is 23 characters, the longest ID every 3.1.1 broker must accept.
func generateClientID() string {
	return clientIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// effectiveClientID returns the configured ID or a generated one.
func effectiveClientID(cfg settings.ConnectionConfig) string {
	if cfg.ClientID != "" {
		return cfg.ClientID
	}
	return generateClientID()
}

// keepAliveSeconds converts the keep-alive to the protocol's 16-bit field.
func keepAliveSeconds(d time.Duration) uint16 {
	s := d / time.Second
	if s > math.MaxUint16 {
		return math.MaxUint16
	}
	if s < 0 {
		return 0
	}
	return uint16(s)
}

func retryInterval(cfg settings.ConnectionConfig) time.Duration {
	if cfg.RetryInterval < minRetryInterval {
		return minRetryInterval
	}
	return cfg.RetryInterval
}

// resolveTLS asks the provider for a transport config when the address is
// secure. A provider failure is an SSL configuration error.
func resolveTLS(p TLSProvider, addr settings.BrokerAddress, cfg settings.TLSConfig) (*tls.Config, error) {
	if !addr.Secure {
		return nil, nil //nolint:nilnil // plain transport
	}
	tc, err := p.ClientTLS(cfg, addr.Host)
	if err != nil {
		return nil, reasonError(mqtterr.SSLConfigError, "building TLS configuration", err)
	}
	return tc, nil
}

// buildLegacyOptions creates Paho 3.1.1 client options.
//
// This configures:
//   - Broker URL (tcp:// or ssl://)
//   - Client ID and credentials
//   - Clean session, keep-alive and connect timeout
//   - Automatic reconnect when enabled (no retry of the initial connect)
//   - Last will when configured
func buildLegacyOptions(addr settings.BrokerAddress, cfg settings.ConnectionConfig, clientID string, tlsCfg *tls.Config) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(addr.EngineURL())
	opts.SetClientID(clientID)
	opts.SetProtocolVersion(4)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetCleanSession(cfg.CleanStart)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetKeepAlive(cfg.KeepAlive)

	// The initial connect is attempted once; the caller decides about retries.
	opts.SetConnectRetry(false)
	opts.SetAutoReconnect(cfg.AutoReconnect)
	if cfg.AutoReconnect {
		opts.SetConnectRetryInterval(retryInterval(cfg))
		opts.SetMaxReconnectInterval(retryInterval(cfg))
	}

	// Messages arrive on one goroutine in broker order.
	opts.SetOrderMatters(true)

	if tlsCfg != nil {
		opts.SetTLSConfig(tlsCfg)
	}

	if cfg.HasWill() {
		opts.SetWill(cfg.Will.Topic, cfg.Will.Payload, cfg.Will.QoS.Level(), cfg.Will.Retained)
	}

	return opts
}

// buildConnectPacket creates the MQTT 5 CONNECT packet.
func buildConnectPacket(cfg settings.ConnectionConfig, clientID string) *paho.Connect {
	cp := &paho.Connect{
		ClientID:   clientID,
		KeepAlive:  keepAliveSeconds(cfg.KeepAlive),
		CleanStart: cfg.CleanStart,
	}

	if cfg.Username != "" {
		cp.Username = cfg.Username
		cp.UsernameFlag = true
	}
	if cfg.Password != "" {
		cp.Password = []byte(cfg.Password)
		cp.PasswordFlag = true
	}

	if cfg.HasWill() {
		cp.WillMessage = &paho.WillMessage{
			Topic:   cfg.Will.Topic,
			Payload: []byte(cfg.Will.Payload),
			QoS:     cfg.Will.QoS.Level(),
			Retain:  cfg.Will.Retained,
		}
	}

	return cp
}
