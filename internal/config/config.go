// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package config handles configuration loading from environment variables
// and an optional YAML file carrying the mediator section.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultCacheGraceSeconds is the TTL safety net for compiled templates.
const DefaultCacheGraceSeconds = 600

// Import is a template building block prepended to every template, or only
// to templates of the listed publications.
type Import struct {
	Path         string   `yaml:"path"`
	Publications []string `yaml:"publications,omitempty"`
}

// AppliesTo reports whether the import is used for a publication title.
func (i Import) AppliesTo(publication string) bool {
	if len(i.Publications) == 0 {
		return true
	}
	for _, p := range i.Publications {
		if strings.TrimSpace(p) == publication {
			return true
		}
	}
	return false
}

// ImportSettings controls how imports show up as template dependencies.
type ImportSettings struct {
	IncludeConfigWhereUsed bool `yaml:"includeConfigWhereUsed"`
	IncludeImportWhereUsed bool `yaml:"includeImportWhereUsed"`
	ReplaceRelativePaths   bool `yaml:"replaceRelativePaths"`
}

// Mediator is the template mediator section.
type Mediator struct {
	CacheGraceSeconds  int            `yaml:"cacheGraceSeconds"`
	ExtractBinaries    bool           `yaml:"extractBinaries"`
	AdminUser          string         `yaml:"adminUser"`
	Namespaces         []string       `yaml:"namespaces"`
	AssemblyReferences []string       `yaml:"assemblyReferences"`
	Imports            []Import       `yaml:"imports"`
	ImportSettings     ImportSettings `yaml:"importSettings"`
}

// CacheGrace returns the TTL safety net as a duration.
func (m Mediator) CacheGrace() time.Duration {
	return time.Duration(m.CacheGraceSeconds) * time.Second
}

// Validate checks the section for values the mediator cannot use.
func (m Mediator) Validate() error {
	if m.CacheGraceSeconds < 0 {
		return fmt.Errorf("cacheGraceSeconds must not be negative, got %d", m.CacheGraceSeconds)
	}
	for i, imp := range m.Imports {
		if strings.TrimSpace(imp.Path) == "" {
			return fmt.Errorf("imports[%d]: path is required", i)
		}
	}
	return nil
}

// DefaultMediator returns the mediator section used when none is configured.
func DefaultMediator() Mediator {
	return Mediator{CacheGraceSeconds: DefaultCacheGraceSeconds}
}

// Config holds the host configuration.
type Config struct {
	// Server settings
	Host     string
	Port     string
	Env      string // "development", "production", "testing"
	LogLevel string

	// PostgreSQL connection
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Valkey (Redis-compatible) rendered-output cache
	ValkeyHost     string
	ValkeyPort     string
	ValkeyPassword string
	OutputCacheTTL time.Duration

	// S3-compatible storage for extracted binaries
	S3Endpoint  string
	S3Region    string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3PublicURL string

	// Admin endpoints (HTTP basic auth, bcrypt hash)
	AdminUser         string
	AdminPasswordHash string

	// Renders allowed per client and minute; zero disables limiting.
	RenderRateLimit int

	// Cron schedule for the TTL safety-net sweep; empty disables it.
	SweepSchedule string

	// Optional directory of template files rendered by id.
	TemplatesDir string

	Mediator Mediator
}

// Load reads configuration from environment variables, applying defaults
// for development where appropriate.
func Load() (*Config, error) {
	return load(DefaultMediator())
}

// LoadFile reads the mediator section from a YAML file, then applies the
// environment on top of it.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	file := struct {
		Mediator Mediator `yaml:"mediator"`
	}{Mediator: DefaultMediator()}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return load(file.Mediator)
}

func load(m Mediator) (*Config, error) {
	cfg := &Config{
		Host:     envOrDefault("APP_HOST", "0.0.0.0"),
		Port:     envOrDefault("APP_PORT", "8080"),
		Env:      envOrDefault("APP_ENV", "development"),
		LogLevel: envOrDefault("LOG_LEVEL", "info"),

		DBHost:     envOrDefault("POSTGRES_HOST", "localhost"),
		DBPort:     envOrDefault("POSTGRES_PORT", "5432"),
		DBUser:     envOrDefault("POSTGRES_USER", "razor"),
		DBPassword: envOrDefault("POSTGRES_PASSWORD", "changeme"),
		DBName:     envOrDefault("POSTGRES_DB", "razor"),

		ValkeyHost:     os.Getenv("VALKEY_HOST"),
		ValkeyPort:     envOrDefault("VALKEY_PORT", "6379"),
		ValkeyPassword: os.Getenv("VALKEY_PASSWORD"),

		S3Endpoint:  os.Getenv("S3_ENDPOINT"),
		S3Region:    envOrDefault("S3_REGION", "us-east-1"),
		S3AccessKey: os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey: os.Getenv("S3_SECRET_KEY"),
		S3Bucket:    envOrDefault("S3_BUCKET", "razor-binaries"),
		S3PublicURL: os.Getenv("S3_PUBLIC_URL"),

		AdminUser:         envOrDefault("ADMIN_USER", "admin"),
		AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),

		SweepSchedule: envOrDefault("SWEEP_SCHEDULE", "@every 10m"),
		TemplatesDir:  os.Getenv("TEMPLATES_DIR"),

		Mediator: m,
	}

	ttl, err := envDuration("OUTPUT_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	cfg.OutputCacheTTL = ttl

	limit, err := envInt("RENDER_RATE_LIMIT", 120)
	if err != nil {
		return nil, err
	}
	cfg.RenderRateLimit = limit

	if err := applyMediatorEnv(&cfg.Mediator); err != nil {
		return nil, err
	}
	if err := cfg.Mediator.Validate(); err != nil {
		return nil, fmt.Errorf("mediator config: %w", err)
	}

	if cfg.Env == "production" {
		if cfg.DBPassword == "changeme" {
			return nil, fmt.Errorf("POSTGRES_PASSWORD must be set in production")
		}
		if cfg.AdminPasswordHash == "" {
			return nil, fmt.Errorf("ADMIN_PASSWORD_HASH must be set in production")
		}
	}

	return cfg, nil
}

// applyMediatorEnv overrides mediator options set in the environment.
func applyMediatorEnv(m *Mediator) error {
	if v := os.Getenv("RAZOR_CACHE_GRACE_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RAZOR_CACHE_GRACE_SECONDS: %w", err)
		}
		m.CacheGraceSeconds = n
	}
	if v := os.Getenv("RAZOR_EXTRACT_BINARIES"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("RAZOR_EXTRACT_BINARIES: %w", err)
		}
		m.ExtractBinaries = b
	}
	if v := os.Getenv("RAZOR_ADMIN_USER"); v != "" {
		m.AdminUser = v
	}
	if v := os.Getenv("RAZOR_NAMESPACES"); v != "" {
		m.Namespaces = splitList(v)
	}
	if v := os.Getenv("RAZOR_REFERENCES"); v != "" {
		m.AssemblyReferences = splitList(v)
	}
	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName,
	)
}

// Addr returns the server listen address (host:port).
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// IsDev returns true if the application is running in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// envOrDefault reads an environment variable, returning a fallback if unset or empty.
func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

// splitList splits a comma-separated value, dropping empty items.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
