// Package config loads service configuration from environment variables
// plus an optional YAML policy file for issuance and sync limits.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	ListenAddr  string `envconfig:"LISTEN_ADDR" default:":8080"`

	// Ledger storage
	DatabasePath string `envconfig:"DATABASE_PATH" default:"tokenvault.db"`

	// Issuer signing key (PKCS#8 PEM, Ed25519). Empty generates an
	// ephemeral key, which is only acceptable in development: tokens do
	// not survive a restart of the issuer identity.
	IssuerKeyPath string `envconfig:"ISSUER_KEY_PATH"`

	// API authentication
	JWTSecret string `envconfig:"JWT_SECRET"`

	// Blockchain gateway
	GatewayURL     string        `envconfig:"GATEWAY_URL"`
	GatewayTimeout time.Duration `envconfig:"GATEWAY_TIMEOUT" default:"30s"`

	// Rate limiting
	RateLimitRPS   int `envconfig:"RATE_LIMIT_RPS" default:"100"`
	RateLimitBurst int `envconfig:"RATE_LIMIT_BURST" default:"200"`

	// Policy file (YAML). Optional; defaults apply when unset.
	PolicyPath string `envconfig:"POLICY_PATH"`
}

// GatewayEnabled returns true if a blockchain gateway is configured.
func (c *Config) GatewayEnabled() bool {
	return c.GatewayURL != ""
}

// IsDevelopment returns true outside of production.
func (c *Config) IsDevelopment() bool {
	return !strings.EqualFold(c.Environment, "production")
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if !cfg.IsDevelopment() {
		if cfg.JWTSecret == "" {
			return nil, fmt.Errorf("JWT_SECRET is required in production")
		}
		if cfg.IssuerKeyPath == "" {
			return nil, fmt.Errorf("ISSUER_KEY_PATH is required in production")
		}
	}
	return &cfg, nil
}

// Policy holds issuance and sync limits loaded from the policy file.
type Policy struct {
	// TokenTTL is how long an issued token stays valid.
	TokenTTL time.Duration `yaml:"token_ttl"`

	// MaxRedeemBatch caps tokens per redemption call.
	MaxRedeemBatch int `yaml:"max_redeem_batch"`

	// MaxSyncBatch caps items per offline sync call.
	MaxSyncBatch int `yaml:"max_sync_batch"`
}

// DefaultPolicy returns the limits used when no policy file is configured.
func DefaultPolicy() Policy {
	return Policy{
		TokenTTL:       72 * time.Hour,
		MaxRedeemBatch: 100,
		MaxSyncBatch:   500,
	}
}

// LoadPolicy reads and parses a YAML policy file, expanding env vars.
// An empty path returns the defaults.
func LoadPolicy(path string) (*Policy, error) {
	policy := DefaultPolicy()
	if path == "" {
		return &policy, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: read %s: %w", path, err)
	}
	return LoadPolicyBytes(raw)
}

// LoadPolicyBytes parses a YAML policy from bytes (useful for testing).
func LoadPolicyBytes(data []byte) (*Policy, error) {
	expanded := expandEnvVars(string(data))

	policy := DefaultPolicy()
	if err := yaml.Unmarshal([]byte(expanded), &policy); err != nil {
		return nil, fmt.Errorf("policy: parse: %w", err)
	}
	if policy.TokenTTL <= 0 {
		return nil, fmt.Errorf("policy: token_ttl must be positive")
	}
	if policy.MaxRedeemBatch <= 0 || policy.MaxSyncBatch <= 0 {
		return nil, fmt.Errorf("policy: batch limits must be positive")
	}
	return &policy, nil
}

// envVarPattern matches ${VAR_NAME} and $VAR_NAME.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars replaces ${VAR} and $VAR with the corresponding environment
// variable value. Missing vars are replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.TrimPrefix(match, "${")
		name = strings.TrimSuffix(name, "}")
		name = strings.TrimPrefix(name, "$")
		return os.Getenv(name)
	})
}
