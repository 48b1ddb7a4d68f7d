// Package config loads the analytics proxy configuration.
//
// Sources are applied in order, later ones overriding earlier ones:
//  1. built-in defaults
//  2. a YAML file (optional)
//  3. a .env file, which only fills variables not already set in the process
//  4. environment variables prefixed with ANALYTICSPROXY_
//  5. explicit overrides, typically from command-line flags
//
// Environment keys use "__" between sections, e.g.
// ANALYTICSPROXY_OAUTH2__TOKEN_URL sets oauth2.token_url.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/sirupsen/logrus"
)

// DefaultEnvPrefix is the default environment variable prefix.
const DefaultEnvPrefix = "ANALYTICSPROXY_"

// DefaultDotEnvFile is read when present unless WithDotEnv overrides it.
const DefaultDotEnvFile = ".env"

// Config is the complete proxy configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	OAuth2    OAuth2Config    `koanf:"oauth2"`
	Analytics AnalyticsConfig `koanf:"analytics"`
	Carrier   CarrierConfig   `koanf:"carrier"`
	Log       LogConfig       `koanf:"log"`
}

// ServerConfig configures the inbound listener.
type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	TLSCertFile     string        `koanf:"tls_cert_file"`
	TLSKeyFile      string        `koanf:"tls_key_file"`
	TLSClientCAFile string        `koanf:"tls_client_ca_file"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// TLSEnabled reports whether a server key pair is configured.
func (s ServerConfig) TLSEnabled() bool {
	return s.TLSCertFile != "" || s.TLSKeyFile != ""
}

// OAuth2Config configures the client-credentials exchange. An empty TokenURL
// runs the proxy in pass-through mode.
type OAuth2Config struct {
	TokenURL        string        `koanf:"token_url"`
	ClientID        string        `koanf:"client_id"`
	ClientSecret    string        `koanf:"client_secret"`
	Scopes          string        `koanf:"scopes"`
	SafetyMargin    time.Duration `koanf:"safety_margin"`
	ExchangeTimeout time.Duration `koanf:"exchange_timeout"`
}

// String hides the client secret.
func (o OAuth2Config) String() string {
	secret := ""
	if o.ClientSecret != "" {
		secret = "***"
	}
	return fmt.Sprintf("{token_url:%s client_id:%s client_secret:%s scopes:%q}", o.TokenURL, o.ClientID, secret, o.Scopes)
}

// AnalyticsConfig configures the downstream analytics service.
// BaseURL is optional here; commands that call the service check it with
// RequireAnalytics.
type AnalyticsConfig struct {
	BaseURL            string        `koanf:"base_url"`
	Timeout            time.Duration `koanf:"timeout"`
	CAFile             string        `koanf:"ca_file"`
	ClientCertFile     string        `koanf:"client_cert_file"`
	ClientKeyFile      string        `koanf:"client_key_file"`
	InsecureSkipVerify bool          `koanf:"insecure_skip_verify"`
}

// TLSConfigured reports whether a custom CA or a client certificate is set.
func (a AnalyticsConfig) TLSConfigured() bool {
	return a.CAFile != "" || a.ClientCertFile != ""
}

// CarrierConfig configures carrier lookups.
type CarrierConfig struct {
	LookupURL string        `koanf:"lookup_url"`
	TTL       time.Duration `koanf:"ttl"`
	Timeout   time.Duration `koanf:"timeout"`
	RateLimit float64       `koanf:"rate_limit"`
	Burst     int           `koanf:"burst"`
	Redis     RedisConfig   `koanf:"redis"`
}

// RedisConfig enables the shared carrier store when Addr is set.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	Prefix   string `koanf:"prefix"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Defaults returns the built-in configuration values as a flat koanf map.
func Defaults() map[string]any {
	return map[string]any{
		"server.addr":             ":8080",
		"server.shutdown_timeout": "15s",
		"oauth2.safety_margin":    "60s",
		"oauth2.exchange_timeout": "10s",
		"analytics.timeout":       "30s",
		"carrier.ttl":             "24h",
		"carrier.timeout":         "5s",
		"carrier.rate_limit":      5.0,
		"carrier.burst":           10,
		"carrier.redis.prefix":    "analyticsproxy:carrier:",
		"log.level":               "info",
		"log.format":              "text",
	}
}

// Loader loads configuration from multiple sources.
type Loader struct {
	k          *koanf.Koanf
	envPrefix  string
	filePath   string
	dotEnvPath string
	dotEnvSet  bool
	overrides  map[string]any
}

// Option is a function that configures the Loader.
type Option func(*Loader)

// WithEnvPrefix sets the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// WithConfigFile sets the YAML configuration file path.
func WithConfigFile(path string) Option {
	return func(l *Loader) {
		l.filePath = path
	}
}

// WithDotEnv sets the .env file path. An empty path disables .env loading.
func WithDotEnv(path string) Option {
	return func(l *Loader) {
		l.dotEnvPath = path
		l.dotEnvSet = true
	}
}

// WithOverrides applies values on top of every other source. Keys use koanf
// dot notation ("log.level"); empty string values are ignored.
func WithOverrides(values map[string]any) Option {
	return func(l *Loader) {
		for k, v := range values {
			if s, ok := v.(string); ok && s == "" {
				continue
			}
			l.overrides[k] = v
		}
	}
}

// NewLoader creates a new configuration loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		k:          koanf.New("."),
		envPrefix:  DefaultEnvPrefix,
		dotEnvPath: DefaultDotEnvFile,
		overrides:  make(map[string]any),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Load reads every source, then unmarshals and validates the result.
func (l *Loader) Load() (*Config, error) {
	if err := l.k.Load(mapProvider(Defaults()), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if l.filePath != "" {
		if err := l.k.Load(file.Provider(l.filePath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load file %s: %w", l.filePath, err)
		}
	}

	if err := l.loadDotEnv(); err != nil {
		return nil, err
	}

	if err := l.k.Load(env.Provider(l.envPrefix, ".", l.envKey), nil); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	if len(l.overrides) > 0 {
		if err := l.k.Load(mapProvider(l.overrides), nil); err != nil {
			return nil, fmt.Errorf("config: load overrides: %w", err)
		}
	}

	var cfg Config
	if err := l.k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Load is a shortcut for NewLoader(opts...).Load().
func Load(opts ...Option) (*Config, error) {
	return NewLoader(opts...).Load()
}

// envKey maps ANALYTICSPROXY_OAUTH2__TOKEN_URL to oauth2.token_url.
func (l *Loader) envKey(s string) string {
	s = strings.TrimPrefix(s, l.envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "__", ".")
}

func (l *Loader) loadDotEnv() error {
	if l.dotEnvPath == "" {
		return nil
	}

	err := godotenv.Load(l.dotEnvPath)
	if err == nil {
		return nil
	}
	// The default file is optional; an explicitly requested one is not.
	if errors.Is(err, os.ErrNotExist) && !l.dotEnvSet {
		return nil
	}
	return fmt.Errorf("config: load %s: %w", l.dotEnvPath, err)
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		errs = append(errs, errors.New("server.tls_cert_file and server.tls_key_file must be set together"))
	}
	if c.Server.TLSClientCAFile != "" && !c.Server.TLSEnabled() {
		errs = append(errs, errors.New("server.tls_client_ca_file requires server TLS"))
	}

	if c.OAuth2.TokenURL != "" {
		if err := checkURL(c.OAuth2.TokenURL); err != nil {
			errs = append(errs, fmt.Errorf("oauth2.token_url: %w", err))
		}
		if c.OAuth2.ClientID == "" {
			errs = append(errs, errors.New("oauth2.client_id is required when oauth2.token_url is set"))
		}
		if c.OAuth2.ClientSecret == "" {
			errs = append(errs, errors.New("oauth2.client_secret is required when oauth2.token_url is set"))
		}
	}
	if c.OAuth2.SafetyMargin < 0 {
		errs = append(errs, errors.New("oauth2.safety_margin must not be negative"))
	}

	if c.Analytics.BaseURL != "" {
		if err := checkURL(c.Analytics.BaseURL); err != nil {
			errs = append(errs, fmt.Errorf("analytics.base_url: %w", err))
		}
	}
	if (c.Analytics.ClientCertFile == "") != (c.Analytics.ClientKeyFile == "") {
		errs = append(errs, errors.New("analytics.client_cert_file and analytics.client_key_file must be set together"))
	}

	if c.Carrier.LookupURL != "" {
		if err := checkURL(c.Carrier.LookupURL); err != nil {
			errs = append(errs, fmt.Errorf("carrier.lookup_url: %w", err))
		}
	}
	if c.Carrier.TTL <= 0 {
		errs = append(errs, errors.New("carrier.ttl must be positive"))
	}
	if c.Carrier.RateLimit < 0 {
		errs = append(errs, errors.New("carrier.rate_limit must not be negative"))
	}
	if c.Carrier.RateLimit > 0 && c.Carrier.Burst < 1 {
		errs = append(errs, errors.New("carrier.burst must be at least 1 when rate limiting"))
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// RequireAnalytics reports an error unless the analytics service is configured.
func (c *Config) RequireAnalytics() error {
	if c.Analytics.BaseURL == "" {
		return errors.New("config: analytics.base_url is required")
	}
	return nil
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}
