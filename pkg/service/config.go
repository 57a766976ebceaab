package service

import (
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/ethpandaops/placeholder-cache/pkg/batch"
	"github.com/ethpandaops/placeholder-cache/pkg/cache"
	"github.com/ethpandaops/placeholder-cache/pkg/clickhouse"
	"github.com/ethpandaops/placeholder-cache/pkg/params"
	"github.com/ethpandaops/placeholder-cache/pkg/redis"
	"github.com/ethpandaops/placeholder-cache/pkg/scheduler"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	// Core settings
	Logging     string `yaml:"logging" default:"info" validate:"oneof=panic fatal warn info debug trace"`
	MetricsAddr string `yaml:"metricsAddr" default:":9090"`

	// Dependencies
	ClickHouse clickhouse.Config `yaml:"clickhouse"`
	// Redis backs the cache store; an empty address selects the in-memory store
	Redis redis.Config `yaml:"redis"`

	Cache    cache.Config   `yaml:"cache"`
	Batch    batch.Config   `yaml:"batch"`
	TestMode TestModeConfig `yaml:"testMode"`
	Params   ParamsConfig   `yaml:"params"`

	// Scheduler is only used by serve
	Scheduler scheduler.Config `yaml:"scheduler"`
}

// TestModeConfig forces test mode inference for every run
type TestModeConfig struct {
	Enabled bool `yaml:"enabled"`
	// FixedDate is a YYYY-MM-DD base date; empty uses today plus DaysOffset
	FixedDate  string `yaml:"fixedDate"`
	DaysOffset int    `yaml:"daysOffset" default:"-1"`
}

// ParamsConfig configures the parameter builder
type ParamsConfig struct {
	Derived []params.DerivedParam `yaml:"derived"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.ClickHouse.URL == "" {
		return ErrClickHouseURLRequired
	}

	if err := c.ClickHouse.Validate(); err != nil {
		return fmt.Errorf("clickhouse: %w", err)
	}

	return c.validateCore()
}

// validateCore checks everything except the ClickHouse section
func (c *Config) validateCore() error {
	if _, err := logrus.ParseLevel(c.Logging); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Logging)
	}

	if c.Redis.Address != "" {
		if err := c.Redis.Validate(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}

	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	if err := c.Batch.Validate(); err != nil {
		return fmt.Errorf("batch: %w", err)
	}

	if _, err := c.TestMode.fixedDate(); err != nil {
		return err
	}

	if err := c.Scheduler.Validate(); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	return nil
}

func (t *TestModeConfig) fixedDate() (*time.Time, error) {
	if t.FixedDate == "" {
		return nil, nil //nolint:nilnil // no fixed date configured
	}

	d, err := params.ParseDate(t.FixedDate)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTestDate, err)
	}

	return &d, nil
}

// LoadConfig reads a YAML config file on top of the struct defaults
func LoadConfig(file string) (*Config, error) {
	if file == "" {
		file = "config.yaml"
	}

	config := &Config{}

	if err := defaults.Set(config); err != nil {
		return nil, err
	}

	yamlFile, err := os.ReadFile(file) //nolint:gosec // User-provided config file path
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(yamlFile, config); err != nil {
		return nil, err
	}

	return config, nil
}
