// Package config loads the bulkhelpers YAML configuration.
//
// Values of the form ${NAME} are replaced from the environment before the
// document is parsed, so secrets such as DSNs can stay out of the file:
//
//	database:
//	  driver: postgres
//	  dsn: ${ORDERS_DSN}
//	logger:
//	  level: debug
//	catalog:
//	  preload: true
//	  load_timeout: 30s
package config

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/koustreak/bulkhelpers/internal/database"
	"github.com/koustreak/bulkhelpers/internal/errs"
	"github.com/koustreak/bulkhelpers/internal/logger"
)

const defaultLoadTimeout = 30 * time.Second

// Config is the root configuration document.
type Config struct {
	Database database.Config `yaml:"database"`
	Logger   logger.Config   `yaml:"logger"`
	Catalog  CatalogConfig   `yaml:"catalog"`
}

// CatalogConfig controls when the schema catalog is built.
type CatalogConfig struct {
	// Preload builds the catalog when the provider opens instead of on the
	// first bulk call.
	Preload bool `yaml:"preload"`

	// LoadTimeout bounds every catalog metadata query, preload or lazy.
	LoadTimeout time.Duration `yaml:"load_timeout"`
}

// Default returns a configuration with every default applied and no DSN.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads, expands and validates the YAML file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is provided by the caller
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, fmt.Sprintf("read config %s", path), err)
	}
	return Parse(data)
}

// Parse expands ${ENV} references in data, decodes it, applies defaults
// and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "parse config", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	def := database.DefaultConfig(c.Database.DSN)
	if c.Database.Driver == "" {
		c.Database.Driver = def.Driver
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = def.MaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = def.MinConns
	}
	if c.Database.MaxConnLifetime == 0 {
		c.Database.MaxConnLifetime = def.MaxConnLifetime
	}
	if c.Database.MaxConnIdleTime == 0 {
		c.Database.MaxConnIdleTime = def.MaxConnIdleTime
	}
	if c.Database.ConnectTimeout == 0 {
		c.Database.ConnectTimeout = def.ConnectTimeout
	}

	lg := logger.DefaultConfig()
	if c.Logger.Level == "" {
		c.Logger.Level = lg.Level
	}
	if c.Logger.Format == "" {
		c.Logger.Format = lg.Format
	}
	if c.Logger.TimeFormat == "" {
		c.Logger.TimeFormat = lg.TimeFormat
	}

	if c.Catalog.LoadTimeout == 0 {
		c.Catalog.LoadTimeout = defaultLoadTimeout
	}
}

// Validate reports configuration errors.
func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return errs.Wrap(errs.ErrKindInvalidInput, "database config", err)
	}
	switch c.Logger.Level {
	case "debug", "info", "warn", "error", "fatal":
	default:
		return errs.Newf(errs.ErrKindInvalidInput, "unknown log level %q", c.Logger.Level)
	}
	switch c.Logger.Format {
	case "json", "console":
	default:
		return errs.Newf(errs.ErrKindInvalidInput, "unknown log format %q", c.Logger.Format)
	}
	if c.Catalog.LoadTimeout < 0 {
		return errs.New(errs.ErrKindInvalidInput, "catalog load_timeout must not be negative")
	}
	return nil
}
