// Package config loads the server configuration from a YAML file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the server looks for its config when no -config
// flag is given.
const DefaultPath = "config.yaml"

// StoreConfig selects and parameterizes the persistence backend.
type StoreConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `yaml:"driver"`

	// Path is the database file for the sqlite driver.
	Path string `yaml:"path,omitempty"`

	// Postgres connection parameters, used when Driver is "postgres".
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	User     string `yaml:"user,omitempty"`
	Password string `yaml:"password,omitempty"`
	DBName   string `yaml:"dbname,omitempty"`
	SSLMode  string `yaml:"sslmode,omitempty"`
}

// Config represents the server configuration file.
type Config struct {
	// Port the HTTP API listens on.
	Port int `yaml:"port"`

	Store StoreConfig `yaml:"store"`

	// PointsDivisor converts raw purchase units to points.
	PointsDivisor int64 `yaml:"points_divisor"`

	// CouponValidityDays is how long an issued coupon stays redeemable.
	CouponValidityDays int `yaml:"coupon_validity_days"`

	// CouponCodeLength is the length of generated coupon codes.
	CouponCodeLength int `yaml:"coupon_code_length"`
}

// Load reads the config from path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Port: 8080,
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   "./data/dekcha.db",
		},
		PointsDivisor:      25,
		CouponValidityDays: 7,
		CouponCodeLength:   6,
	}
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.Host == "" || c.Store.DBName == "" {
			return fmt.Errorf("store.host and store.dbname are required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.PointsDivisor <= 0 {
		return fmt.Errorf("points_divisor must be positive")
	}
	if c.CouponValidityDays <= 0 {
		return fmt.Errorf("coupon_validity_days must be positive")
	}
	if c.CouponCodeLength <= 0 {
		return fmt.Errorf("coupon_code_length must be positive")
	}
	return nil
}
