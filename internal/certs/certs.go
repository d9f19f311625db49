// Package certs consumes a PEM certificate/key pair for the ProxyServer's
// TLS listener. Generating certificates is explicitly out of scope (spec
// §1 Non-goals); this package only turns material handed to it into a
// usable tls.Config.
package certs

import (
	"crypto/tls"
	"fmt"
)

// Source describes where the TLS material comes from.
type Source struct {
	CertFile string
	KeyFile  string
}

// Enabled reports whether both halves of a cert/key pair were configured.
func (s Source) Enabled() bool {
	return s.CertFile != "" && s.KeyFile != ""
}

// LoadTLSConfig parses the configured PEM pair into a minimal tls.Config
// suitable for the shared proxy port. Modern cipher suite / curve
// preferences are left to the standard library defaults.
func LoadTLSConfig(src Source) (*tls.Config, error) {
	if !src.Enabled() {
		return nil, fmt.Errorf("certs: both cert and key file must be set")
	}
	cert, err := tls.LoadX509KeyPair(src.CertFile, src.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("certs: loading key pair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
