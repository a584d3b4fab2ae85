package engine

import (
	"crypto/tls"

	"github.com/nerrad567/gray-logic-clientwrap/internal/settings"
)

// tlsMinVersion is the minimum TLS version for secure connections.
const tlsMinVersion = tls.VersionTLS12

// TLSProvider turns TLS settings into a client transport configuration.
//
// Certificate loading and verification policy belong to the provider; the
// engines only hand its result to the transport.
type TLSProvider interface {
	ClientTLS(cfg settings.TLSConfig, serverName string) (*tls.Config, error)
}

// DefaultTLSProvider enforces TLS 1.2 and verifies the broker against the
// system roots. It ignores any certificate material in the settings.
type DefaultTLSProvider struct{}

// ClientTLS implements TLSProvider.
func (DefaultTLSProvider) ClientTLS(_ settings.TLSConfig, serverName string) (*tls.Config, error) {
	return &tls.Config{
		MinVersion: tlsMinVersion,
		ServerName: serverName,
	}, nil
}

// TLSProviderFunc adapts a function to TLSProvider.
type TLSProviderFunc func(cfg settings.TLSConfig, serverName string) (*tls.Config, error)

// ClientTLS implements TLSProvider.
func (f TLSProviderFunc) ClientTLS(cfg settings.TLSConfig, serverName string) (*tls.Config, error) {
	return f(cfg, serverName)
}
