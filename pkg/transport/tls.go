package transport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
)

// TLS constants.
const (
	// ALPN protocol identifier.
	ALPNProtocol = "hololinked/1"

	// DefaultPort is the default Thing server port.
	DefaultPort = 7440
)

// TLSConfig holds optional TLS settings for a Thing server or client.
// Connections run over plain TCP when no TLSConfig is given.
type TLSConfig struct {
	// Certificate is the TLS certificate for this endpoint.
	Certificate tls.Certificate

	// RootCAs is the pool of trusted CA certificates for verifying the
	// server (client side only).
	RootCAs *x509.CertPool

	// ClientCAs is the pool of CA certificates for client authentication.
	// When set, the server requires and verifies client certificates.
	ClientCAs *x509.CertPool

	// ServerName is the expected server name for client connections.
	ServerName string

	// InsecureSkipVerify disables certificate verification.
	// Only for testing.
	InsecureSkipVerify bool
}

// NewServerTLSConfig creates a TLS configuration for a Thing server.
func NewServerTLSConfig(cfg *TLSConfig) (*tls.Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("TLSConfig is required")
	}
	if len(cfg.Certificate.Certificate) == 0 {
		return nil, fmt.Errorf("server certificate is required")
	}

	tlsConfig := &tls.Config{
		MinVersion:   tls.VersionTLS13,
		Certificates: []tls.Certificate{cfg.Certificate},
		NextProtos:   []string{ALPNProtocol},
	}

	// Mutual TLS only when a client CA pool is configured
	if cfg.ClientCAs != nil {
		tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
		tlsConfig.ClientCAs = cfg.ClientCAs
	}

	return tlsConfig, nil
}

// NewClientTLSConfig creates a TLS configuration for a client connecting
// to a Thing server.
func NewClientTLSConfig(cfg *TLSConfig) (*tls.Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("TLSConfig is required")
	}

	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS13,
		RootCAs:            cfg.RootCAs,
		ServerName:         cfg.ServerName,
		NextProtos:         []string{ALPNProtocol},
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}

	// Client certificate only when the server does mutual TLS
	if len(cfg.Certificate.Certificate) > 0 {
		tlsConfig.Certificates = []tls.Certificate{cfg.Certificate}
	}

	return tlsConfig, nil
}

// VerifyALPN checks that the negotiated ALPN protocol is correct.
func VerifyALPN(state tls.ConnectionState) error {
	if state.NegotiatedProtocol != ALPNProtocol {
		return fmt.Errorf("ALPN protocol %q is not %q", state.NegotiatedProtocol, ALPNProtocol)
	}
	return nil
}
