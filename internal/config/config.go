// ABOUTME: Configuration loading and parsing for quip-gateway
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the complete quip-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Transport TransportConfig `yaml:"transport" toml:"transport"`
	Tools     ToolsConfig     `yaml:"tools" toml:"tools"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// ServerConfig holds the listen address and the identity reported to clients
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
	Name     string `yaml:"name" toml:"name"`
	Version  string `yaml:"version" toml:"version"`
}

// TransportConfig holds MCP delivery mode and streaming timing configuration
type TransportConfig struct {
	Mode             string `yaml:"mode" toml:"mode"` // single, streaming or both
	BatchConcurrency int    `yaml:"batch_concurrency" toml:"batch_concurrency"`

	KeepaliveInterval  time.Duration `yaml:"-" toml:"-"`
	SessionIdleTimeout time.Duration `yaml:"-" toml:"-"` // 0 disables

	// Raw string values for unmarshaling
	KeepaliveIntervalRaw  string `yaml:"keepalive_interval" toml:"keepalive_interval"`
	SessionIdleTimeoutRaw string `yaml:"session_idle_timeout" toml:"session_idle_timeout"`
}

// ToolsConfig holds settings shared by the builtin tool packs
type ToolsConfig struct {
	RequestTimeout    time.Duration   `yaml:"-" toml:"-"`
	RequestTimeoutRaw string          `yaml:"request_timeout" toml:"request_timeout"`
	RetryMax          *int            `yaml:"retry_max" toml:"retry_max"` // nil means DefaultRetryMax
	UserAgent         string          `yaml:"user_agent" toml:"user_agent"`
	Disabled          []string        `yaml:"disabled" toml:"disabled"` // pack IDs to skip
	Endpoints         EndpointsConfig `yaml:"endpoints" toml:"endpoints"`
}

// EndpointsConfig holds the base URLs of the public APIs behind the builtin tools
type EndpointsConfig struct {
	DadJokes      string `yaml:"dad_jokes" toml:"dad_jokes"`
	OfficialJokes string `yaml:"official_jokes" toml:"official_jokes"`
	ChuckNorris   string `yaml:"chuck_norris" toml:"chuck_norris"`
	JokeAPI       string `yaml:"joke_api" toml:"joke_api"`
	CatFacts      string `yaml:"cat_facts" toml:"cat_facts"`
	UselessFacts  string `yaml:"useless_facts" toml:"useless_facts"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"` // empty disables call recording
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"` // empty disables auth
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	HTTPS     bool   `yaml:"https" toml:"https"`   // Serve TLS with Tailscale-issued certificates
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // Enable public Funnel (implies HTTPS)
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Defaults
const (
	DefaultHTTPAddr           = "localhost:8080"
	DefaultServerName         = "quip-gateway"
	DefaultServerVersion      = "1.0.0"
	DefaultMode               = "both"
	DefaultKeepaliveInterval  = 30 * time.Second
	DefaultSessionIdleTimeout = 30 * time.Minute
	DefaultBatchConcurrency   = 8
	DefaultRequestTimeout     = 10 * time.Second
	DefaultRetryMax           = 2
	DefaultUserAgent          = "quip-gateway (https://github.com/2389/quip-gateway)"
)

// DefaultEndpoints are the public APIs the builtin tools call.
var DefaultEndpoints = EndpointsConfig{
	DadJokes:      "https://icanhazdadjoke.com",
	OfficialJokes: "https://official-joke-api.appspot.com",
	ChuckNorris:   "https://api.chucknorris.io",
	JokeAPI:       "https://v2.jokeapi.dev",
	CatFacts:      "https://catfact.ninja",
	UselessFacts:  "https://uselessfacts.jsph.pl",
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills every unset field. Durations given explicitly,
// including an explicit zero idle timeout, are kept.
func applyDefaults(cfg *Config) {
	if cfg.Server.HTTPAddr == "" && !cfg.Tailscale.Enabled {
		cfg.Server.HTTPAddr = DefaultHTTPAddr
	}
	if cfg.Server.Name == "" {
		cfg.Server.Name = DefaultServerName
	}
	if cfg.Server.Version == "" {
		cfg.Server.Version = DefaultServerVersion
	}

	if cfg.Transport.Mode == "" {
		cfg.Transport.Mode = DefaultMode
	}
	if cfg.Transport.KeepaliveIntervalRaw == "" {
		cfg.Transport.KeepaliveInterval = DefaultKeepaliveInterval
	}
	if cfg.Transport.SessionIdleTimeoutRaw == "" {
		cfg.Transport.SessionIdleTimeout = DefaultSessionIdleTimeout
	}
	if cfg.Transport.BatchConcurrency == 0 {
		cfg.Transport.BatchConcurrency = DefaultBatchConcurrency
	}

	if cfg.Tools.RequestTimeoutRaw == "" {
		cfg.Tools.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Tools.RetryMax == nil {
		retries := DefaultRetryMax
		cfg.Tools.RetryMax = &retries
	}
	if cfg.Tools.UserAgent == "" {
		cfg.Tools.UserAgent = DefaultUserAgent
	}
	ep := &cfg.Tools.Endpoints
	for _, f := range []struct {
		field *string
		def   string
	}{
		{&ep.DadJokes, DefaultEndpoints.DadJokes},
		{&ep.OfficialJokes, DefaultEndpoints.OfficialJokes},
		{&ep.ChuckNorris, DefaultEndpoints.ChuckNorris},
		{&ep.JokeAPI, DefaultEndpoints.JokeAPI},
		{&ep.CatFacts, DefaultEndpoints.CatFacts},
		{&ep.UselessFacts, DefaultEndpoints.UselessFacts},
	} {
		if *f.field == "" {
			*f.field = f.def
		}
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if !slices.Contains([]string{"single", "streaming", "both"}, strings.ToLower(c.Transport.Mode)) {
		return fmt.Errorf("transport.mode must be single, streaming or both, got %q", c.Transport.Mode)
	}
	if c.Transport.KeepaliveInterval <= 0 {
		return fmt.Errorf("transport.keepalive_interval must be positive")
	}
	if c.Transport.SessionIdleTimeout < 0 {
		return fmt.Errorf("transport.session_idle_timeout must not be negative")
	}
	if c.Transport.BatchConcurrency < 1 {
		return fmt.Errorf("transport.batch_concurrency must be at least 1")
	}

	if c.Tools.RequestTimeout <= 0 {
		return fmt.Errorf("tools.request_timeout must be positive")
	}
	if c.Tools.RetryMax != nil && *c.Tools.RetryMax < 0 {
		return fmt.Errorf("tools.retry_max must not be negative")
	}
	ep := c.Tools.Endpoints
	for name, raw := range map[string]string{
		"dad_jokes":      ep.DadJokes,
		"official_jokes": ep.OfficialJokes,
		"chuck_norris":   ep.ChuckNorris,
		"joke_api":       ep.JokeAPI,
		"cat_facts":      ep.CatFacts,
		"useless_facts":  ep.UselessFacts,
	} {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("tools.endpoints.%s must be an http or https URL, got %q", name, raw)
		}
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(c.Logging.Level)) {
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	if !slices.Contains([]string{"text", "json"}, strings.ToLower(c.Logging.Format)) {
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Transport.KeepaliveIntervalRaw != "" {
		cfg.Transport.KeepaliveInterval, err = time.ParseDuration(cfg.Transport.KeepaliveIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing keepalive_interval %q: %w", cfg.Transport.KeepaliveIntervalRaw, err)
		}
	}

	if cfg.Transport.SessionIdleTimeoutRaw != "" {
		cfg.Transport.SessionIdleTimeout, err = time.ParseDuration(cfg.Transport.SessionIdleTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing session_idle_timeout %q: %w", cfg.Transport.SessionIdleTimeoutRaw, err)
		}
	}

	if cfg.Tools.RequestTimeoutRaw != "" {
		cfg.Tools.RequestTimeout, err = time.ParseDuration(cfg.Tools.RequestTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing request_timeout %q: %w", cfg.Tools.RequestTimeoutRaw, err)
		}
	}

	return nil
}
