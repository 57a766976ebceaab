package cache

import "time"

// Config contains cache store settings
type Config struct {
	// DefaultTTLHours applies to results stored without their own TTL
	DefaultTTLHours uint `yaml:"defaultTTLHours" default:"24"`
	// MaxWriteRetries bounds optimistic transaction retries in the Redis store
	MaxWriteRetries int `yaml:"maxWriteRetries" default:"5"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.DefaultTTLHours == 0 {
		return ErrInvalidTTL
	}

	if c.MaxWriteRetries <= 0 {
		c.MaxWriteRetries = 5
	}

	return nil
}

func (c *Config) ttl(hours uint) time.Duration {
	if hours == 0 {
		hours = c.DefaultTTLHours
	}

	return time.Duration(hours) * time.Hour
}
