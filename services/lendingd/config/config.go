package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultListen     = ":8645"
	defaultNodeConfig = "config.toml"
)

// Config captures the runtime settings for the lending service daemon.
type Config struct {
	ListenAddress string                     `yaml:"listen"`
	NodeConfig    string                     `yaml:"node_config"`
	LogFile       LogFileConfig              `yaml:"log_file"`
	TLS           TLSConfig                  `yaml:"tls"`
	Auth          AuthConfig                 `yaml:"auth"`
	RateLimits    map[string]RateLimitConfig `yaml:"rate_limits"`
	CORS          CORSConfig                 `yaml:"cors"`
	LogRequests   bool                       `yaml:"log_requests"`
}

// LogFileConfig describes the rotated log file. An empty path logs to stdout
// only.
type LogFileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// TLSConfig describes the TLS material for the HTTP listener.
type TLSConfig struct {
	CertPath           string   `yaml:"cert"`
	KeyPath            string   `yaml:"key"`
	ClientCAPath       string   `yaml:"client_ca"`
	AllowInsecure      bool     `yaml:"allow_insecure"`
	AllowedCommonNames []string `yaml:"allowed_common_names"`
}

// AuthConfig configures JWT bearer authentication of the write route.
type AuthConfig struct {
	Enabled             bool          `yaml:"enabled"`
	HMACSecret          string        `yaml:"hmac_secret"`
	HMACSecretEnv       string        `yaml:"hmac_secret_env"`
	Issuer              string        `yaml:"issuer"`
	Audience            string        `yaml:"audience"`
	AllowAnonymousReads bool          `yaml:"allow_anonymous_reads"`
	ClockSkew           time.Duration `yaml:"clock_skew"`
}

// RateLimitConfig is the per-client budget of one route group.
type RateLimitConfig struct {
	RequestsPerMinute float64        `yaml:"rpm"`
	Burst             int            `yaml:"burst"`
	Tokens            map[string]int `yaml:"tokens"`
}

// CORSConfig lists the browser origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Load reads the YAML configuration from disk and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{ListenAddress: defaultListen}
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaultListen
	}
	cfg.NodeConfig = strings.TrimSpace(cfg.NodeConfig)
	if cfg.NodeConfig == "" {
		cfg.NodeConfig = defaultNodeConfig
	}
	cfg.LogFile.Path = strings.TrimSpace(cfg.LogFile.Path)
	cfg.TLS.normalize()
	cfg.Auth.normalize()
	cfg.CORS.AllowedOrigins = trimAll(cfg.CORS.AllowedOrigins)
	normalized := make(map[string]RateLimitConfig, len(cfg.RateLimits))
	for group, limit := range cfg.RateLimits {
		normalized[strings.ToLower(strings.TrimSpace(group))] = limit
	}
	cfg.RateLimits = normalized
}

func (cfg *Config) validate() error {
	if err := cfg.TLS.validate(); err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	if err := cfg.Auth.validate(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	for group, limit := range cfg.RateLimits {
		if group == "" {
			return fmt.Errorf("rate_limits: group name required")
		}
		if limit.RequestsPerMinute <= 0 {
			return fmt.Errorf("rate_limits.%s: rpm must be positive", group)
		}
		if limit.Burst < 0 {
			return fmt.Errorf("rate_limits.%s: burst must be non-negative", group)
		}
	}
	if cfg.LogFile.MaxSizeMB < 0 || cfg.LogFile.MaxBackups < 0 || cfg.LogFile.MaxAgeDays < 0 {
		return fmt.Errorf("log_file: rotation limits must be non-negative")
	}
	return nil
}

func (cfg *TLSConfig) normalize() {
	cfg.CertPath = strings.TrimSpace(cfg.CertPath)
	cfg.KeyPath = strings.TrimSpace(cfg.KeyPath)
	cfg.ClientCAPath = strings.TrimSpace(cfg.ClientCAPath)
	cfg.AllowedCommonNames = trimAll(cfg.AllowedCommonNames)
}

func (cfg TLSConfig) validate() error {
	hasCert := cfg.CertPath != ""
	hasKey := cfg.KeyPath != ""
	if hasCert != hasKey {
		return fmt.Errorf("cert and key must either both be provided or both be empty")
	}
	if !cfg.AllowInsecure && !hasCert {
		return fmt.Errorf("cert and key are required unless allow_insecure=true")
	}
	if cfg.ClientCAPath != "" && !hasCert {
		return fmt.Errorf("client_ca requires a server certificate and key")
	}
	if len(cfg.AllowedCommonNames) > 0 && cfg.ClientCAPath == "" {
		return fmt.Errorf("allowed_common_names requires client_ca to be configured")
	}
	return nil
}

func (cfg *AuthConfig) normalize() {
	cfg.HMACSecretEnv = strings.TrimSpace(cfg.HMACSecretEnv)
	if cfg.HMACSecret == "" && cfg.HMACSecretEnv != "" {
		cfg.HMACSecret = os.Getenv(cfg.HMACSecretEnv)
	}
	cfg.HMACSecret = strings.TrimSpace(cfg.HMACSecret)
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	cfg.Audience = strings.TrimSpace(cfg.Audience)
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
}

func (cfg AuthConfig) validate() error {
	if !cfg.Enabled {
		return nil
	}
	if len(cfg.HMACSecret) < 16 {
		return fmt.Errorf("hmac secret must be at least 16 characters when auth is enabled")
	}
	return nil
}

// Sanitized returns a copy with secrets masked for logging.
func (cfg Config) Sanitized() Config {
	clone := cfg
	if clone.Auth.HMACSecret != "" {
		clone.Auth.HMACSecret = "***"
	}
	return clone
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
