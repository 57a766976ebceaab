package batch

import "github.com/ethpandaops/placeholder-cache/pkg/params"

// DefaultMaxConcurrency bounds in-flight queries when a request does not set it
const DefaultMaxConcurrency = 5

// Config contains batch executor settings
type Config struct {
	MaxConcurrency      int `yaml:"maxConcurrency" default:"5"`
	TimezoneOffsetHours int `yaml:"timezoneOffsetHours" default:"8"`
}

// DefaultConfig returns the executor defaults
func DefaultConfig() *Config {
	return &Config{
		MaxConcurrency:      DefaultMaxConcurrency,
		TimezoneOffsetHours: params.DefaultTimezoneOffsetHours,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.MaxConcurrency <= 0 {
		return ErrInvalidConcurrency
	}

	return nil
}
