package httpclient

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/swissMack/pve1-sub007/oauth2client"
)

// DefaultTimeout bounds every request made by clients from Builder and NewHTTPClient.
const DefaultTimeout = 30 * time.Second

// Builder provides a fluent interface for constructing HTTP clients for the
// downstream analytics service with optional bearer authentication and TLS/mTLS support.
type Builder struct {
	credentials *oauth2client.CredentialCache

	// TLS configuration
	tlsEnabled    bool
	tlsCAFile     string
	tlsCertFile   string
	tlsKeyFile    string
	tlsSkipVerify bool

	// HTTP client configuration
	timeout         time.Duration
	followRedirects bool
}

// NewBuilder creates a new HTTP client builder.
func NewBuilder() *Builder {
	return &Builder{
		timeout:         DefaultTimeout,
		followRedirects: true,
	}
}

// WithCredentialCache sets a shared credential cache for bearer authentication.
func (b *Builder) WithCredentialCache(cache *oauth2client.CredentialCache) *Builder {
	b.credentials = cache
	return b
}

// WithTLS enables TLS for the connection.
//
// Parameters:
//   - caFile: Path to CA certificate for server verification (optional, uses system roots if empty)
//   - certFile: Path to client certificate for mTLS (optional, must be paired with keyFile)
//   - keyFile: Path to client private key for mTLS (optional, must be paired with certFile)
func (b *Builder) WithTLS(caFile, certFile, keyFile string) *Builder {
	b.tlsEnabled = true
	b.tlsCAFile = caFile
	b.tlsCertFile = certFile
	b.tlsKeyFile = keyFile
	return b
}

// WithInsecureSkipVerify disables TLS certificate verification (NOT RECOMMENDED for production).
func (b *Builder) WithInsecureSkipVerify() *Builder {
	b.tlsSkipVerify = true
	return b
}

// WithTimeout sets the request timeout for the HTTP client.
func (b *Builder) WithTimeout(timeout time.Duration) *Builder {
	b.timeout = timeout
	return b
}

// WithoutRedirects makes the client return 3xx responses instead of following them.
func (b *Builder) WithoutRedirects() *Builder {
	b.followRedirects = false
	return b
}

// Build constructs the HTTP client with the configured options.
func (b *Builder) Build() (*http.Client, error) {
	base, err := b.defaultTransport()
	if err != nil {
		return nil, err
	}

	var transport http.RoundTripper = base
	if b.credentials != nil {
		transport = NewOAuth2Transport(b.credentials, base)
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   b.timeout,
	}

	if !b.followRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return client, nil
}

// defaultTransport clones http.DefaultTransport with TLS 1.2+ and the configured certificates.
func (b *Builder) defaultTransport() (*http.Transport, error) {
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return nil, fmt.Errorf("httpclient: http.DefaultTransport is %T, not *http.Transport", http.DefaultTransport)
	}
	httpTransport := base.Clone()

	if b.tlsEnabled || b.tlsSkipVerify {
		tlsConfig, err := b.buildTLSConfig()
		if err != nil {
			return nil, fmt.Errorf("httpclient: TLS config failed: %w", err)
		}
		httpTransport.TLSClientConfig = tlsConfig
	} else {
		httpTransport.TLSClientConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	return httpTransport, nil
}

// buildTLSConfig constructs the TLS configuration for the HTTP client.
func (b *Builder) buildTLSConfig() (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: b.tlsSkipVerify, // #nosec G402
	}

	if b.tlsCAFile != "" {
		caCert, err := os.ReadFile(b.tlsCAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}

		certPool := x509.NewCertPool()
		if !certPool.AppendCertsFromPEM(caCert) {
			return nil, errors.New("failed to parse CA certificate")
		}
		tlsConfig.RootCAs = certPool
	}

	switch {
	case b.tlsCertFile != "" && b.tlsKeyFile != "":
		cert, err := tls.LoadX509KeyPair(b.tlsCertFile, b.tlsKeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	case b.tlsCertFile != "" || b.tlsKeyFile != "":
		return nil, errors.New("both TLS cert and key files must be provided for mTLS")
	}

	return tlsConfig, nil
}

// NewHTTPClient is a convenience function that creates an HTTP client with bearer authentication.
// For more configuration options, use Builder instead.
func NewHTTPClient(cache *oauth2client.CredentialCache) *http.Client {
	return &http.Client{
		Transport: NewOAuth2Transport(cache, nil),
		Timeout:   DefaultTimeout,
	}
}
