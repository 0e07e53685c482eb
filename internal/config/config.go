// Package config loads the coordinator process's own configuration — the
// ambient settings that exist outside any single run's frozen RunConfig
// (domain.RunConfig): server bind address, metadata store DSN, logging, rate
// limiter defaults, secret encryption key and distributed-lock settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig controls the HTTP API (spec §6).
type ServerConfig struct {
	Host string `yaml:"host" env:"SERVER_HOST"`
	Port int    `yaml:"port" env:"SERVER_PORT"`
}

// DatabaseConfig controls the Metadata Store (spec §4.4).
type DatabaseConfig struct {
	DSN             string `yaml:"dsn" env:"DATABASE_DSN"`
	MaxOpenConns    int    `yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `yaml:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifeSecs int    `yaml:"conn_max_lifetime_seconds" env:"DATABASE_CONN_MAX_LIFETIME_SECONDS"`
	MigrateOnStart  bool   `yaml:"migrate_on_start" env:"DATABASE_MIGRATE_ON_START"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level      string `yaml:"level" env:"LOG_LEVEL"`
	Format     string `yaml:"format" env:"LOG_FORMAT"`
	Output     string `yaml:"output" env:"LOG_OUTPUT"`
	FilePrefix string `yaml:"file_prefix" env:"LOG_FILE_PREFIX"`
}

// SecurityConfig controls the Key Vault's at-rest encryption (spec §4.2).
type SecurityConfig struct {
	SecretEncryptionKey string `yaml:"secret_encryption_key" env:"SECRET_ENCRYPTION_KEY"`
}

// AuthConfig controls tenant/service credential validation (spec §6).
type AuthConfig struct {
	JWTSecret    string   `yaml:"jwt_secret" env:"AUTH_JWT_SECRET"`
	TenantClaim  string   `yaml:"tenant_claim" env:"AUTH_TENANT_CLAIM"`
	AdminRoles   []string `yaml:"admin_roles" env:"AUTH_ADMIN_ROLES"`
}

// RateLimitConfig seeds default per-(provider,model) token-bucket capacity
// used until the first response headers are observed (spec §4.1).
type RateLimitConfig struct {
	DefaultRPM        int    `yaml:"default_rpm" env:"RATELIMIT_DEFAULT_RPM"`
	DefaultTPM        int    `yaml:"default_tpm" env:"RATELIMIT_DEFAULT_TPM"`
	AcquireTimeoutSecs int   `yaml:"acquire_timeout_seconds" env:"RATELIMIT_ACQUIRE_TIMEOUT_SECONDS"`
	DistributedLockDSN string `yaml:"distributed_lock_dsn" env:"RATELIMIT_REDIS_DSN"`
}

// StorageConfig controls the Storage Provider backend (spec §4.3).
type StorageConfig struct {
	Backend string `yaml:"backend" env:"STORAGE_BACKEND"` // "local" | "memory"
	RootDir string `yaml:"root_dir" env:"STORAGE_ROOT_DIR"`
}

// MaintenanceConfig controls the periodic janitor (robfig/cron).
type MaintenanceConfig struct {
	IdleBucketGCSchedule string `yaml:"idle_bucket_gc_schedule" env:"MAINTENANCE_IDLE_BUCKET_GC_SCHEDULE"`
}

// GeneratorConfig points the two generator clients (spec §4.5) at their
// upstream base URLs.
type GeneratorConfig struct {
	FilePromptBaseURL string `yaml:"file_prompt_base_url" env:"GENERATOR_FPF_BASE_URL"`
	ResearchBaseURL   string `yaml:"research_base_url" env:"GENERATOR_RESEARCH_BASE_URL"`
}

// JudgeConfig points the Judge Runner's HTTP model client at its upstream
// base URL (spec §4.6).
type JudgeConfig struct {
	BaseURL string `yaml:"base_url" env:"JUDGE_BASE_URL"`
}

// Config is the coordinator process's top-level configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Logging     LoggingConfig     `yaml:"logging"`
	Security    SecurityConfig    `yaml:"security"`
	Auth        AuthConfig        `yaml:"auth"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Storage     StorageConfig     `yaml:"storage"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	Generator   GeneratorConfig   `yaml:"generator"`
	Judge       JudgeConfig       `yaml:"judge"`
}

// New returns a Config populated with the defaults a fresh checkout should
// run with, before any file or environment overrides are applied.
func New() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifeSecs: 300,
			MigrateOnStart:  true,
		},
		Logging: LoggingConfig{Level: "info", Format: "json", Output: "stdout", FilePrefix: "pipeline"},
		RateLimit: RateLimitConfig{
			DefaultRPM:         60,
			DefaultTPM:         100000,
			AcquireTimeoutSecs: 30,
		},
		Storage:     StorageConfig{Backend: "local", RootDir: "./data/artifacts"},
		Maintenance: MaintenanceConfig{IdleBucketGCSchedule: "@every 10m"},
	}
}

// ResolvePath returns the config file path Load reads from: $CONFIG_FILE if
// set, otherwise the repo-relative default. Exposed so pipelinectl's `config
// path`/`config init` verbs agree with Load on where the file lives.
func ResolvePath() string {
	path := strings.TrimSpace(os.Getenv("CONFIG_FILE"))
	if path == "" {
		path = "configs/config.yaml"
	}
	return path
}

// Load reads configs/config.yaml (or $CONFIG_FILE) if present, then applies
// environment overrides via envdecode. Missing files are not an error — a
// fresh checkout should run on defaults plus whatever the environment sets.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	path := ResolvePath()
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}

	if err := envdecode.Decode(cfg); err != nil {
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn != "" {
		cfg.Database.DSN = dsn
	}

	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	expanded, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}
