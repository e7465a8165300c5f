// Package cabundle loads an optional custom CA bundle and exposes a
// tls.Config fragment for the engine's outbound HTTP clients (weaviate,
// LLM providers, PubChem) so they can trust a private or self-signed
// certificate chain without disabling verification entirely.
package cabundle

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Manager holds the certificate pool built from an on-disk PEM bundle.
type Manager struct {
	path string

	mu   sync.RWMutex
	pool *x509.CertPool
}

// NewManager loads path into a certificate pool. An empty path is valid and
// yields a Manager whose TLSConfig defers entirely to the system trust
// store.
func NewManager(path string) (*Manager, error) {
	mgr := &Manager{}
	if path == "" {
		return mgr, nil
	}
	mgr.path = filepath.Clean(path)
	if err := mgr.ForceReload(); err != nil {
		return nil, fmt.Errorf("load CA bundle %s: %w", path, err)
	}
	return mgr, nil
}

// RootCAs returns the current certificate pool, or nil if no bundle is
// configured.
func (m *Manager) RootCAs() *x509.CertPool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pool
}

// TLSConfig builds a tls.Config using the managed pool. Callers may further
// customize the returned config before handing it to an http.Transport.
func (m *Manager) TLSConfig() *tls.Config {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if pool := m.RootCAs(); pool != nil {
		cfg.RootCAs = pool
	}
	return cfg
}

// ForceReload re-reads the bundle from disk. No-op if no path was configured.
func (m *Manager) ForceReload() error {
	if m.path == "" {
		return nil
	}
	pool, err := loadBundle(m.path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.pool = pool
	m.mu.Unlock()
	return nil
}

var (
	errInvalidPEMData       = errors.New("invalid PEM data in CA bundle")
	errUnexpectedPEMBlock   = errors.New("unexpected PEM block type")
	errNoCertificatesInPool = errors.New("no certificates found in CA bundle")
)

const certificateBlockType = "CERTIFICATE"

func loadBundle(path string) (*x509.CertPool, error) {
	cleanPath := filepath.Clean(path)
	if !filepath.IsAbs(cleanPath) {
		absPath, err := filepath.Abs(cleanPath)
		if err != nil {
			return nil, fmt.Errorf("resolve CA bundle path: %w", err)
		}
		cleanPath = absPath
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("read CA bundle: %w", err)
	}

	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}

	rest := data
	added := false
	for len(rest) > 0 {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			if len(bytes.TrimSpace(rest)) == 0 {
				break
			}
			return nil, errInvalidPEMData
		}
		if block.Type != certificateBlockType {
			return nil, fmt.Errorf("%w: %s", errUnexpectedPEMBlock, block.Type)
		}

		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse certificate: %w", err)
		}
		pool.AddCert(cert)
		added = true
	}

	if !added {
		return nil, errNoCertificatesInPool
	}

	return pool, nil
}
