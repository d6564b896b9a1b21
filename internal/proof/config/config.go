// Package config loads service settings from a YAML file, then lets
// PROOF_-prefixed environment variables override individual keys.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gartstein/proofly/internal/proof/idgen"
	"gopkg.in/yaml.v3"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreRedis    = "redis"

	// EnvPrefix is prepended to every key when reading overrides.
	EnvPrefix = "PROOF_"
	// DefaultPath is where the service looks for its config file.
	DefaultPath = "internal/proof/config/config.yaml"
)

// Config struct for YAML configuration
type Config struct {
	GRPCPort int `yaml:"GRPC_PORT"`
	HTTPPort int `yaml:"HTTP_PORT"`

	StoreDriver string `yaml:"STORE_DRIVER"`
	DBHost      string `yaml:"DB_HOST"`
	DBPort      int    `yaml:"DB_PORT"`
	DBUser      string `yaml:"DB_USER"`
	DBPassword  string `yaml:"DB_PASSWORD"`
	DBName      string `yaml:"DB_NAME"`
	DBSSLMode   string `yaml:"DB_SSLMODE"`
	SQLitePath  string `yaml:"SQLITE_PATH"`
	RedisURL    string `yaml:"REDIS_URL"`

	KafkaBrokers []string `yaml:"KAFKA_BROKERS"`
	Topic        string   `yaml:"TOPIC"`
	// AuditGroupID enables the audit consumer when set.
	AuditGroupID string `yaml:"AUDIT_GROUP_ID"`

	JWTSecret string `yaml:"JWT_SECRET"`

	ProofValidity   time.Duration `yaml:"PROOF_VALIDITY"`
	MaxMintAttempts int           `yaml:"MAX_MINT_ATTEMPTS"`
	CodeLength      int           `yaml:"CODE_LENGTH"`

	VerifyRatePerMinute int `yaml:"VERIFY_RATE_PER_MINUTE"`
	VerifyBurst         int `yaml:"VERIFY_BURST"`
}

// Default returns the settings used for keys absent from both the file and
// the environment.
func Default() *Config {
	return &Config{
		GRPCPort:            50051,
		HTTPPort:            8080,
		StoreDriver:         StoreMemory,
		DBPort:              5432,
		DBSSLMode:           "disable",
		Topic:               "proof-events",
		ProofValidity:       24 * time.Hour,
		MaxMintAttempts:     3,
		CodeLength:          idgen.MinCodeLength,
		VerifyRatePerMinute: 60,
		VerifyBurst:         10,
	}
}

// Load reads path (a missing file is not an error), applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(file, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	env := envReader{lookup: lookup}

	env.setInt("GRPC_PORT", &c.GRPCPort)
	env.setInt("HTTP_PORT", &c.HTTPPort)
	env.setString("STORE_DRIVER", &c.StoreDriver)
	env.setString("DB_HOST", &c.DBHost)
	env.setInt("DB_PORT", &c.DBPort)
	env.setString("DB_USER", &c.DBUser)
	env.setString("DB_PASSWORD", &c.DBPassword)
	env.setString("DB_NAME", &c.DBName)
	env.setString("DB_SSLMODE", &c.DBSSLMode)
	env.setString("SQLITE_PATH", &c.SQLitePath)
	env.setString("REDIS_URL", &c.RedisURL)
	env.setList("KAFKA_BROKERS", &c.KafkaBrokers)
	env.setString("TOPIC", &c.Topic)
	env.setString("AUDIT_GROUP_ID", &c.AuditGroupID)
	env.setString("JWT_SECRET", &c.JWTSecret)
	env.setDuration("PROOF_VALIDITY", &c.ProofValidity)
	env.setInt("MAX_MINT_ATTEMPTS", &c.MaxMintAttempts)
	env.setInt("CODE_LENGTH", &c.CodeLength)
	env.setInt("VERIFY_RATE_PER_MINUTE", &c.VerifyRatePerMinute)
	env.setInt("VERIFY_BURST", &c.VerifyBurst)

	return errors.Join(env.errs...)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(validPort(c.GRPCPort), "GRPC_PORT %d out of range", c.GRPCPort)
	check(validPort(c.HTTPPort), "HTTP_PORT %d out of range", c.HTTPPort)
	check(c.JWTSecret != "", "JWT_SECRET is required")
	check(c.ProofValidity > 0, "PROOF_VALIDITY must be positive, got %s", c.ProofValidity)
	check(c.MaxMintAttempts >= 1, "MAX_MINT_ATTEMPTS must be at least 1, got %d", c.MaxMintAttempts)
	check(c.CodeLength >= idgen.MinCodeLength, "CODE_LENGTH must be at least %d, got %d", idgen.MinCodeLength, c.CodeLength)
	check(c.VerifyRatePerMinute > 0, "VERIFY_RATE_PER_MINUTE must be positive")
	check(c.VerifyBurst > 0, "VERIFY_BURST must be positive")
	check(c.AuditGroupID == "" || len(c.KafkaBrokers) > 0, "AUDIT_GROUP_ID requires KAFKA_BROKERS")

	switch c.StoreDriver {
	case StoreMemory:
	case StorePostgres:
		check(c.DBHost != "" && c.DBName != "", "postgres store requires DB_HOST and DB_NAME")
		check(validPort(c.DBPort), "DB_PORT %d out of range", c.DBPort)
	case StoreSQLite:
		check(c.SQLitePath != "", "sqlite store requires SQLITE_PATH")
	case StoreRedis:
		check(c.RedisURL != "", "redis store requires REDIS_URL")
	default:
		check(false, "unknown STORE_DRIVER %q", c.StoreDriver)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func validPort(p int) bool {
	return p > 0 && p < 65536
}

type envReader struct {
	lookup lookupFunc
	errs   []error
}

func (r *envReader) get(key string) (string, bool) {
	v, ok := r.lookup(EnvPrefix + key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (r *envReader) setString(key string, dst *string) {
	if v, ok := r.get(key); ok {
		*dst = v
	}
}

func (r *envReader) setInt(key string, dst *int) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
		return
	}
	*dst = n
}

func (r *envReader) setDuration(key string, dst *time.Duration) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
		return
	}
	*dst = d
}

// setList splits a comma-separated value, dropping empty items.
func (r *envReader) setList(key string, dst *[]string) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}
