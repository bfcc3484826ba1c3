// Package config loads and validates application configuration from YAML files
// and environment variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/pitabwire/wiredriver/model"
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "WIREDRIVER"

// Config is the root application configuration.
type Config struct {
	Remote        RemoteConfig        `yaml:"remote"`
	Transport     TransportConfig     `yaml:"transport"`
	Proxy         ProxyConfig         `yaml:"proxy"`
	Headers       HeadersConfig       `yaml:"headers"`
	Auth          AuthConfig          `yaml:"auth"`
	BiDi          BiDiConfig          `yaml:"bidi"`
	Session       SessionConfig       `yaml:"session"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// RemoteConfig describes the remote end commands are sent to.
type RemoteConfig struct {
	URL   string `yaml:"url"`
	Level string `yaml:"level"`
	// Extensions are vendor commands registered on top of the built-in table.
	Extensions []model.CommandTemplate `yaml:"extensions"`
}

// TransportConfig describes HTTP executor settings.
type TransportConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	MaxRedirects int           `yaml:"max_redirects"`
	Retry        RetryConfig   `yaml:"retry"`
}

// RetryConfig describes the bound and backoff for transient failures.
type RetryConfig struct {
	MaxRetries          int           `yaml:"max_retries"`
	AddrNotAvailBackoff time.Duration `yaml:"addr_not_avail_backoff"`
}

// ProxyConfig describes an explicit HTTP proxy. When HTTP is empty and
// FromEnvironment is set, the proxy is discovered from http_proxy/no_proxy.
type ProxyConfig struct {
	HTTP            string   `yaml:"http"`
	NoProxy         []string `yaml:"no_proxy"`
	FromEnvironment bool     `yaml:"from_environment"`
}

// HeadersConfig overlays the default request headers.
type HeadersConfig struct {
	UserAgent string            `yaml:"user_agent"`
	Extra     map[string]string `yaml:"extra"`
}

// AuthConfig describes how requests authenticate against the remote end.
type AuthConfig struct {
	Strategy string    `yaml:"strategy"`
	Username string    `yaml:"username"`
	Password string    `yaml:"password"`
	TokenEnv string    `yaml:"token_env"`
	JWT      JWTConfig `yaml:"jwt"`
}

// JWTConfig describes locally minted bearer tokens.
type JWTConfig struct {
	SigningKeyEnv string        `yaml:"signing_key_env"`
	Issuer        string        `yaml:"issuer"`
	Subject       string        `yaml:"subject"`
	Audience      string        `yaml:"audience"`
	TTL           time.Duration `yaml:"ttl"`
}

// BiDiConfig describes the event channel.
type BiDiConfig struct {
	Enabled          bool          `yaml:"enabled"`
	WebSocketURL     string        `yaml:"websocket_url"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	CommandTimeout   time.Duration `yaml:"command_timeout"`
	ReadLimit        int64         `yaml:"read_limit"`
}

// SessionConfig describes where the CLI remembers sessions. Driver "auto"
// picks redis when the address in AddrEnv is set and memory otherwise.
// Memory records do not outlive the process.
type SessionConfig struct {
	Driver    string        `yaml:"driver"`
	AddrEnv   string        `yaml:"addr_env"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"`
}

// ObservabilityConfig describes logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	LogLevel string        `yaml:"log_level"`
	Tracing  TracingConfig `yaml:"tracing"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// TracingConfig describes distributed tracing settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// MetricsConfig describes Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Remote: RemoteConfig{
			URL:   "http://127.0.0.1:4444",
			Level: "w3c",
		},
		Transport: TransportConfig{
			Timeout:      60 * time.Second,
			DialTimeout:  10 * time.Second,
			MaxRedirects: 20,
			Retry: RetryConfig{
				MaxRetries:          3,
				AddrNotAvailBackoff: 2 * time.Second,
			},
		},
		Proxy: ProxyConfig{
			FromEnvironment: true,
		},
		Auth: AuthConfig{
			Strategy: "none",
			JWT: JWTConfig{
				TTL: 5 * time.Minute,
			},
		},
		BiDi: BiDiConfig{
			HandshakeTimeout: 10 * time.Second,
			CommandTimeout:   30 * time.Second,
			ReadLimit:        32 << 20,
		},
		Session: SessionConfig{
			Driver:    "auto",
			AddrEnv:   "WIREDRIVER_SESSION_REDIS_ADDR",
			KeyPrefix: "wiredriver:session:",
			TTL:       24 * time.Hour,
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
			Tracing: TracingConfig{
				Exporter:     "otlp",
				SamplingRate: 0.1,
			},
			Metrics: MetricsConfig{
				Addr: ":9464",
				Path: "/metrics",
			},
		},
	}
}

// Load reads a YAML config file, applies environment variable overrides,
// and validates required fields. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required fields are present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Remote.URL == "" {
		errs = append(errs, "remote.url is required")
	} else if u, err := url.Parse(c.Remote.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, "remote.url must be an absolute http(s) URL")
	}
	if _, ok := model.ParseLevel(c.Remote.Level); !ok {
		errs = append(errs, fmt.Sprintf("remote.level %q is not one of legacy, w3c", c.Remote.Level))
	}
	for i, ext := range c.Remote.Extensions {
		if ext.ID == "" || ext.Path == "" {
			errs = append(errs, fmt.Sprintf("remote.extensions[%d] requires id and path", i))
		}
		if !model.IsSupportedMethod(ext.Method) {
			errs = append(errs, fmt.Sprintf("remote.extensions[%d] method %q must be GET, POST or DELETE", i, ext.Method))
		}
	}
	if c.Transport.MaxRedirects < 0 {
		errs = append(errs, "transport.max_redirects must not be negative")
	}
	if c.Transport.Retry.MaxRetries < 0 {
		errs = append(errs, "transport.retry.max_retries must not be negative")
	}

	switch c.Auth.Strategy {
	case "", "none", "basic":
	case "bearer":
		if c.Auth.TokenEnv == "" {
			errs = append(errs, "auth.token_env is required for bearer auth")
		}
	case "jwt":
		if c.Auth.JWT.SigningKeyEnv == "" {
			errs = append(errs, "auth.jwt.signing_key_env is required for jwt auth")
		}
	default:
		errs = append(errs, fmt.Sprintf("auth.strategy %q is not one of none, basic, bearer, jwt", c.Auth.Strategy))
	}

	if c.BiDi.Enabled && c.BiDi.WebSocketURL != "" {
		if u, err := url.Parse(c.BiDi.WebSocketURL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			errs = append(errs, "bidi.websocket_url must be a ws(s) URL")
		}
	}

	switch c.Session.Driver {
	case "", "auto", "memory", "redis":
	default:
		errs = append(errs, fmt.Sprintf("session.driver %q is not one of auto, memory, redis", c.Session.Driver))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// envOverrides lists the fields that can be overridden from WIREDRIVER_*
// environment variables. Only non-empty values are applied.
type envOverrides struct {
	RemoteURL     string        `envconfig:"REMOTE_URL"`
	RemoteLevel   string        `envconfig:"REMOTE_LEVEL"`
	Timeout       time.Duration `envconfig:"TRANSPORT_TIMEOUT"`
	UserAgent     string        `envconfig:"USER_AGENT"`
	AuthStrategy  string        `envconfig:"AUTH_STRATEGY"`
	WebSocketURL  string        `envconfig:"BIDI_WEBSOCKET_URL"`
	SessionDriver string        `envconfig:"SESSION_DRIVER"`
	LogLevel      string        `envconfig:"OBSERVABILITY_LOG_LEVEL"`
}

func applyEnvOverrides(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return err
	}

	if env.RemoteURL != "" {
		cfg.Remote.URL = env.RemoteURL
	}
	if env.RemoteLevel != "" {
		cfg.Remote.Level = env.RemoteLevel
	}
	if env.Timeout > 0 {
		cfg.Transport.Timeout = env.Timeout
	}
	if env.UserAgent != "" {
		cfg.Headers.UserAgent = env.UserAgent
	}
	if env.AuthStrategy != "" {
		cfg.Auth.Strategy = env.AuthStrategy
	}
	if env.WebSocketURL != "" {
		cfg.BiDi.WebSocketURL = env.WebSocketURL
		cfg.BiDi.Enabled = true
	}
	if env.SessionDriver != "" {
		cfg.Session.Driver = env.SessionDriver
	}
	if env.LogLevel != "" {
		cfg.Observability.LogLevel = env.LogLevel
	}
	return nil
}
