package settings

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Default broker ports.
const (
	DefaultPlainPort  = 1883
	DefaultSecurePort = 8883
)

// URI schemes for the canonical address form.
const (
	SchemePlain  = "mqtt"
	SchemeSecure = "mqtts"
)

// BrokerAddress identifies a broker endpoint.
//
// Its canonical String form (mqtt://host:port or mqtts://host:port) is the
// key under which the registry keeps the single live client.
type BrokerAddress struct {
	Secure bool
	Host   string
	Port   int
}

// ParseBrokerAddress parses a broker URI.
//
// Accepted schemes are mqtt/tcp (plain) and mqtts/ssl/tls (secure). When the
// port is omitted the well-known port for the scheme is used.
func ParseBrokerAddress(raw string) (BrokerAddress, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return BrokerAddress{}, fmt.Errorf("%w: %q: %w", ErrInvalidAddress, raw, err)
	}

	var addr BrokerAddress
	switch strings.ToLower(u.Scheme) {
	case SchemePlain, "tcp":
		addr.Secure = false
	case SchemeSecure, "ssl", "tls":
		addr.Secure = true
	default:
		return BrokerAddress{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidAddress, u.Scheme)
	}

	addr.Host = strings.ToLower(u.Hostname())
	if addr.Host == "" {
		return BrokerAddress{}, fmt.Errorf("%w: %q has no host", ErrInvalidAddress, raw)
	}

	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return BrokerAddress{}, fmt.Errorf("%w: bad port %q", ErrInvalidAddress, p)
		}
		addr.Port = port
	} else if addr.Secure {
		addr.Port = DefaultSecurePort
	} else {
		addr.Port = DefaultPlainPort
	}

	if err := addr.Validate(); err != nil {
		return BrokerAddress{}, err
	}
	return addr, nil
}

// Validate checks host and port.
func (a BrokerAddress) Validate() error {
	if a.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidAddress)
	}
	if a.Port <= 0 || a.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidAddress, a.Port)
	}
	return nil
}

// WithTLS returns the address with its scheme taken from TLS enablement.
// A secure address stays secure; enabling TLS upgrades a plain one.
func (a BrokerAddress) WithTLS(enabled bool) BrokerAddress {
	a.Secure = a.Secure || enabled
	return a
}

// Scheme returns mqtt or mqtts.
func (a BrokerAddress) Scheme() string {
	if a.Secure {
		return SchemeSecure
	}
	return SchemePlain
}

// HostPort returns host:port, suitable for net.Dial.
func (a BrokerAddress) HostPort() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// EngineURL returns the tcp:// or ssl:// spelling the Paho engines expect.
func (a BrokerAddress) EngineURL() string {
	scheme := "tcp"
	if a.Secure {
		scheme = "ssl"
	}
	return scheme + "://" + a.HostPort()
}

// String returns the canonical form, e.g. "mqtts://broker.local:8883".
func (a BrokerAddress) String() string {
	return a.Scheme() + "://" + strings.ToLower(a.HostPort())
}
