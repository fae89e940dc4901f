package server

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

// TLSConfig names the TLS material of the HTTP listener.
type TLSConfig struct {
	CertFile         string
	KeyFile          string
	ClientCAFile     string
	AllowInsecure    bool
	AllowedClientCNs []string
}

// ServerTLSConfig builds the listener TLS configuration. It returns nil when
// TLS is disabled and insecure listening is allowed.
func ServerTLSConfig(cfg TLSConfig) (*tls.Config, error) {
	certPath := strings.TrimSpace(cfg.CertFile)
	keyPath := strings.TrimSpace(cfg.KeyFile)
	clientCAPath := strings.TrimSpace(cfg.ClientCAFile)

	if certPath == "" || keyPath == "" {
		if clientCAPath != "" || len(cfg.AllowedClientCNs) > 0 {
			return nil, fmt.Errorf("mtls requires server certificate, key, and client ca configuration")
		}
		if cfg.AllowInsecure {
			return nil, nil
		}
		return nil, fmt.Errorf("tls certificate and key are required")
	}

	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("load tls keypair: %w", err)
	}
	tlsCfg := &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.NoClientCert,
	}

	if clientCAPath != "" {
		pem, err := os.ReadFile(clientCAPath)
		if err != nil {
			return nil, fmt.Errorf("read client ca: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("parse client ca: invalid pem data")
		}
		tlsCfg.ClientCAs = pool
		tlsCfg.ClientAuth = tls.VerifyClientCertIfGiven
	}

	if len(cfg.AllowedClientCNs) > 0 {
		if tlsCfg.ClientCAs == nil {
			return nil, fmt.Errorf("client ca bundle required for mtls")
		}
		tlsCfg.ClientAuth = tls.RequireAndVerifyClientCert
		allowed := make(map[string]struct{}, len(cfg.AllowedClientCNs))
		for _, name := range cfg.AllowedClientCNs {
			if trimmed := strings.TrimSpace(name); trimmed != "" {
				allowed[trimmed] = struct{}{}
			}
		}
		tlsCfg.VerifyConnection = func(cs tls.ConnectionState) error {
			for _, chain := range cs.VerifiedChains {
				if len(chain) == 0 {
					continue
				}
				if _, ok := allowed[strings.TrimSpace(chain[0].Subject.CommonName)]; ok {
					return nil
				}
			}
			return fmt.Errorf("client certificate common name not allowed")
		}
	}
	return tlsCfg, nil
}

// NewHTTPServer wraps handler in an http.Server with conservative timeouts.
// WriteTimeout stays unset so websocket streams are not cut off.
func NewHTTPServer(addr string, handler http.Handler, tlsCfg *tls.Config) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
