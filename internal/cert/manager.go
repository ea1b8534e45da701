// Package cert loads the server's TLS identity: a single certificate and
// private key pair, embedded at build time. There is no SNI multi-cert
// routing and no file-watching reload here — this system serves exactly
// one identity, baked into the binary, and a new identity means a new
// build, not a config change.
package cert

import (
	"crypto/tls"
	"fmt"
)

// Manager holds the loaded server certificate and serves it for every TLS
// handshake regardless of SNI.
type Manager struct {
	cert tls.Certificate
}

// Load parses a PEM certificate and PKCS8 private key pair.
func Load(certPEM, keyPEM []byte) (*Manager, error) {
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse embedded TLS identity: %w", err)
	}
	return &Manager{cert: cert}, nil
}

// Certificate returns the loaded certificate.
func (m *Manager) Certificate() tls.Certificate { return m.cert }

// TLSConfig returns a server tls.Config presenting this identity for
// every connection, with TLS 1.3 as the QUIC transport requires.
func (m *Manager) TLSConfig() *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{m.cert},
		MinVersion:   tls.VersionTLS13,
		NextProtos:   []string{"higgsd"},
	}
}
