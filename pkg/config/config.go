// Package config loads the gatewayd service configuration from environment
// variables, with an optional YAML file overlay for values easier to keep
// in a checked-in file than an environment (domain separator, verifier-set
// retention, governance chain name and address).
package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the gatewayd service.
type Config struct {
	// Server Configuration
	ListenAddr  string
	MetricsAddr string

	// Storage Configuration
	DataDir       string // LevelDB directory; ignored when InMemoryStore is true
	InMemoryStore bool

	// Postgres event-log Configuration (optional; NoopSink used when empty)
	DatabaseURL             string
	DatabaseMaxOpenConns    int
	DatabaseMaxIdleConns    int
	DatabaseConnMaxLifetime time.Duration

	// Gateway static parameters
	DomainSeparator              [32]byte
	MinimumRotationDelay         uint64
	PreviousVerifierSetRetention *big.Int
	Operator                     string

	// Governance static parameters
	GovernanceOperator      string
	GovernanceChainName     string
	GovernanceAddress       string
	MinimumProposalETADelay uint64

	LogLevel string
}

// fileOverlay is the subset of Config fields sourced from an optional YAML
// file rather than the environment. Fields are strings because the
// domain separator and retention are more naturally written as literals in
// a checked-in file than derived from bytes.
type fileOverlay struct {
	DomainSeparatorHex           string `yaml:"domain_separator_hex"`
	PreviousVerifierSetRetention string `yaml:"previous_verifier_set_retention"`
	GovernanceChainName          string `yaml:"governance_chain_name"`
	GovernanceAddress            string `yaml:"governance_address"`
}

// Load reads configuration from environment variables. If path is
// non-empty, a YAML file at that path is parsed first and environment
// variables take precedence over its values.
func Load(path string) (*Config, error) {
	cfg := &Config{
		ListenAddr:  getEnv("LISTEN_ADDR", "0.0.0.0:8080"),
		MetricsAddr: getEnv("METRICS_ADDR", "0.0.0.0:9090"),

		DataDir:       getEnv("DATA_DIR", "./data"),
		InMemoryStore: getEnvBool("IN_MEMORY_STORE", false),

		DatabaseURL:             getEnv("DATABASE_URL", ""),
		DatabaseMaxOpenConns:    getEnvInt("DATABASE_MAX_OPEN_CONNS", 10),
		DatabaseMaxIdleConns:    getEnvInt("DATABASE_MAX_IDLE_CONNS", 2),
		DatabaseConnMaxLifetime: getEnvDuration("DATABASE_CONN_MAX_LIFETIME", time.Hour),

		MinimumRotationDelay: getEnvUint64("MINIMUM_ROTATION_DELAY", 86400),
		Operator:             getEnv("GATEWAY_OPERATOR", ""),

		GovernanceOperator:      getEnv("GOVERNANCE_OPERATOR", ""),
		MinimumProposalETADelay: getEnvUint64("MINIMUM_PROPOSAL_ETA_DELAY", 3600),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
	cfg.PreviousVerifierSetRetention = big.NewInt(getEnvInt64("PREVIOUS_VERIFIER_SET_RETENTION", 4))

	if path != "" {
		if err := applyFileOverlay(cfg, path); err != nil {
			return nil, err
		}
	}

	if getEnv("PREVIOUS_VERIFIER_SET_RETENTION", "") != "" {
		cfg.PreviousVerifierSetRetention = big.NewInt(getEnvInt64("PREVIOUS_VERIFIER_SET_RETENTION", cfg.PreviousVerifierSetRetention.Int64()))
	}
	if hexVal := getEnv("DOMAIN_SEPARATOR_HEX", ""); hexVal != "" {
		if err := decodeDomainSeparator(cfg, hexVal); err != nil {
			return nil, err
		}
	}
	if chain := getEnv("GOVERNANCE_CHAIN_NAME", ""); chain != "" {
		cfg.GovernanceChainName = chain
	}
	if addr := getEnv("GOVERNANCE_ADDRESS", ""); addr != "" {
		cfg.GovernanceAddress = addr
	}

	return cfg, nil
}

func applyFileOverlay(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: reading overlay file: %w", err)
	}

	var overlay fileOverlay
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return fmt.Errorf("config: parsing overlay file: %w", err)
	}

	if overlay.DomainSeparatorHex != "" {
		if err := decodeDomainSeparator(cfg, overlay.DomainSeparatorHex); err != nil {
			return err
		}
	}
	if overlay.PreviousVerifierSetRetention != "" {
		v, ok := new(big.Int).SetString(overlay.PreviousVerifierSetRetention, 10)
		if !ok {
			return fmt.Errorf("config: invalid previous_verifier_set_retention %q", overlay.PreviousVerifierSetRetention)
		}
		cfg.PreviousVerifierSetRetention = v
	}
	if overlay.GovernanceChainName != "" {
		cfg.GovernanceChainName = overlay.GovernanceChainName
	}
	if overlay.GovernanceAddress != "" {
		cfg.GovernanceAddress = overlay.GovernanceAddress
	}

	return nil
}

func decodeDomainSeparator(cfg *Config, hexVal string) error {
	hexVal = strings.TrimPrefix(hexVal, "0x")
	if len(hexVal) != 64 {
		return fmt.Errorf("config: domain separator must be 32 bytes hex-encoded, got %d chars", len(hexVal))
	}
	var out [32]byte
	for i := 0; i < 32; i++ {
		var b byte
		if _, err := fmt.Sscanf(hexVal[i*2:i*2+2], "%02x", &b); err != nil {
			return fmt.Errorf("config: invalid domain separator hex: %w", err)
		}
		out[i] = b
	}
	cfg.DomainSeparator = out
	return nil
}

// Validate checks that the fields required to initialize the Gateway and
// Governance singletons are present.
func (c *Config) Validate() error {
	var errs []string

	if c.Operator == "" {
		errs = append(errs, "GATEWAY_OPERATOR is required but not set")
	}
	if c.GovernanceChainName == "" {
		errs = append(errs, "GOVERNANCE_CHAIN_NAME is required but not set")
	}
	if c.GovernanceAddress == "" {
		errs = append(errs, "GOVERNANCE_ADDRESS is required but not set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvUint64(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseUint(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
