package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"phone-auth-service/internal/config"
	"phone-auth-service/internal/util"
)

// TLSManager resolves the server certificate from, in order: ACME
// (autocert), the configured key pair, and outside production a
// self-signed development certificate.
type TLSManager struct {
	server      *config.ServerConfig
	production  bool
	autoCert    *autocert.Manager
	fileCert    *tls.Certificate
	devCertOnce sync.Once
	devCert     *tls.Certificate
	devCertErr  error
}

func NewTLSManager(server *config.ServerConfig, environment string) *TLSManager {
	m := &TLSManager{
		server:     server,
		production: environment == "production",
	}

	if server.AutoCert && server.EnableTLS {
		m.setupAutoCert()
	}

	if server.CertFile != "" && server.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(server.CertFile, server.KeyFile)
		if err != nil {
			util.Warn("Could not load configured certificate", zap.Error(err))
		} else {
			m.fileCert = &cert
		}
	}

	return m
}

func (m *TLSManager) setupAutoCert() {
	if err := os.MkdirAll(m.server.AutoCertDir, 0700); err != nil {
		util.Warn("Could not create autocert directory", zap.Error(err))
		return
	}

	m.autoCert = &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(m.server.Domain),
		Cache:      autocert.DirCache(m.server.AutoCertDir),
		Email:      m.server.Email,
	}

	util.Info("AutoCert configured",
		zap.String("domain", m.server.Domain),
		zap.String("cache_dir", m.server.AutoCertDir))
}

func (m *TLSManager) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	if m.autoCert != nil {
		if cert, err := m.autoCert.GetCertificate(hello); err == nil {
			return cert, nil
		}
	}

	if m.fileCert != nil {
		return m.fileCert, nil
	}

	if m.production {
		return nil, errors.New("no certificate available")
	}
	return m.selfSignedCert()
}

func (m *TLSManager) selfSignedCert() (*tls.Certificate, error) {
	m.devCertOnce.Do(func() {
		hosts := []string{"localhost", "127.0.0.1", "::1"}
		if m.server.Domain != "" {
			hosts = append(hosts, m.server.Domain)
		}

		cert, err := NewDevCertGenerator(m.server.AutoCertDir).GenerateCert(hosts)
		if err != nil {
			m.devCertErr = fmt.Errorf("failed to generate self-signed certificate: %w", err)
			return
		}
		m.devCert = &cert
	})
	return m.devCert, m.devCertErr
}

func (m *TLSManager) GetTLSConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: m.GetCertificate,
		NextProtos:     []string{"h2", "http/1.1"},
		MinVersion:     tls.VersionTLS12,
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		},
	}
}

func (m *TLSManager) GetAutocertManager() *autocert.Manager {
	return m.autoCert
}
