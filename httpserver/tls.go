package httpserver

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Server timeouts applied by NewServer.
const (
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultReadTimeout       = 30 * time.Second
	DefaultWriteTimeout      = 60 * time.Second
	DefaultIdleTimeout       = 120 * time.Second
)

// TLSConfig holds TLS configuration for the proxy's inbound listener.
type TLSConfig struct {
	// CertFile is the path to the server certificate file (PEM format)
	CertFile string

	// KeyFile is the path to the server private key file (PEM format)
	KeyFile string

	// CAFile is the path to the CA certificate used to verify client certificates (optional)
	CAFile string

	// ClientAuth specifies the server's policy for TLS client authentication.
	// Use tls.RequireAndVerifyClientCert together with CAFile for mTLS.
	ClientAuth tls.ClientAuthType

	// MinVersion specifies the minimum TLS version to accept
	// Default: TLS 1.2
	MinVersion uint16
}

// NewTLSConfig loads the server key pair and the optional client CA and returns
// a *tls.Config with TLS 1.2 as the floor.
//
// Example usage:
//
//	tlsCfg, err := httpserver.NewTLSConfig(&httpserver.TLSConfig{
//	    CertFile: "/etc/analyticsproxy/server.crt",
//	    KeyFile:  "/etc/analyticsproxy/server.key",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
func NewTLSConfig(cfg *TLSConfig) (*tls.Config, error) {
	if cfg == nil {
		return nil, errors.New("httpserver: TLS config is nil")
	}

	if cfg.CertFile == "" {
		return nil, errors.New("httpserver: server certificate file is required")
	}
	if cfg.KeyFile == "" {
		return nil, errors.New("httpserver: server key file is required")
	}

	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ClientAuth: cfg.ClientAuth,
	}
	if cfg.MinVersion > 0 {
		tlsConfig.MinVersion = cfg.MinVersion
	}

	cert, err := loadCertificate(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("httpserver: load server certificate: %w", err)
	}
	tlsConfig.Certificates = []tls.Certificate{cert}

	if cfg.CAFile != "" {
		caCertPool, err := loadCACertificate(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("httpserver: load CA certificate: %w", err)
		}
		tlsConfig.ClientCAs = caCertPool
	}

	return tlsConfig, nil
}

// ConfigureServer sets server.TLSConfig from cfg.
// Start the server with server.ListenAndServeTLS("", "") afterwards.
func ConfigureServer(server *http.Server, cfg *TLSConfig) error {
	if server == nil {
		return errors.New("httpserver: server is nil")
	}

	tlsConfig, err := NewTLSConfig(cfg)
	if err != nil {
		return err
	}

	server.TLSConfig = tlsConfig
	return nil
}

// NewServer returns an http.Server with conservative timeouts. When tlsCfg is
// non-nil the server is configured for TLS.
func NewServer(addr string, handler http.Handler, tlsCfg *TLSConfig) (*http.Server, error) {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
	}

	if tlsCfg != nil {
		if err := ConfigureServer(server, tlsCfg); err != nil {
			return nil, err
		}
	}

	return server, nil
}

// loadCertificate loads a TLS key pair from files.
func loadCertificate(certFile, keyFile string) (tls.Certificate, error) {
	certPEM, err := readTLSFile(certFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("read certificate file: %w", err)
	}

	keyPEM, err := readTLSFile(keyFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("read key file: %w", err)
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("parse certificate: %w", err)
	}

	return cert, nil
}

// loadCACertificate loads a CA certificate pool from file.
func loadCACertificate(caFile string) (*x509.CertPool, error) {
	caCert, err := readTLSFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("read CA certificate: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, errors.New("failed to parse CA certificate")
	}

	return caCertPool, nil
}

// readTLSFile resolves path to an absolute path and reads it through os.OpenInRoot
// so that symlinks cannot escape the containing directory.
func readTLSFile(path string) ([]byte, error) {
	if path == "" {
		return nil, errors.New("httpserver: empty TLS file path")
	}
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("httpserver: resolve TLS path %q: %w", path, err)
	}

	f, err := os.OpenInRoot(filepath.Dir(abs), filepath.Base(abs))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
