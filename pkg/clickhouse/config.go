// Package clickhouse runs placeholder queries over the ClickHouse HTTP interface
package clickhouse

import (
	"errors"
	"net/url"
	"time"
)

// Static errors for configuration validation
var (
	ErrURLRequired = errors.New("URL is required")
	ErrInvalidURL  = errors.New("URL must use http or https")
	// ErrInvalidRetries is returned for a negative retry count
	ErrInvalidRetries = errors.New("maxRetries must not be negative")
)

// Config contains ClickHouse connection settings
type Config struct {
	URL          string        `yaml:"url" validate:"required,url"`
	Database     string        `yaml:"database"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	QueryTimeout time.Duration `yaml:"queryTimeout"`
	KeepAlive    time.Duration `yaml:"keepAlive"`
	// MaxResultRows caps rows returned per query; zero leaves the server default
	MaxResultRows uint64 `yaml:"maxResultRows"`
	Debug         bool   `yaml:"debug"`
	// MaxRetries retries unreachable servers and gateway errors; zero disables retries
	MaxRetries   int           `yaml:"maxRetries"`
	RetryBackoff time.Duration `yaml:"retryBackoff"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.URL == "" {
		return ErrURLRequired
	}

	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return ErrInvalidURL
	}

	if c.MaxRetries < 0 {
		return ErrInvalidRetries
	}

	return nil
}

// SetDefaults sets default values for the configuration
func (c *Config) SetDefaults() {
	if c.QueryTimeout == 0 {
		c.QueryTimeout = 30 * time.Second
	}

	if c.KeepAlive == 0 {
		c.KeepAlive = 30 * time.Second
	}

	if c.RetryBackoff == 0 {
		c.RetryBackoff = 200 * time.Millisecond
	}
}
