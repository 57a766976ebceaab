// Package redis builds the Redis client shared by the cache store and the scheduler
package redis

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultPrefix namespaces every key written by this service
const DefaultPrefix = "placeholder"

var (
	ErrAddressRequired = errors.New("redis address is required")
	ErrInvalidPrefix   = errors.New("redis prefix must not contain whitespace or end with ':'")
	ErrInvalidPoolSize = errors.New("redis pool size must not be negative")
)

// Config holds Redis client configuration. Address is a redis:// or rediss://
// URL; the remaining fields override what the URL implies when set.
type Config struct {
	Address string `yaml:"address"`
	Prefix  string `yaml:"prefix" default:"placeholder"`

	PoolSize     int           `yaml:"poolSize"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Address == "" {
		return ErrAddressRequired
	}

	if c.Prefix == "" {
		c.Prefix = DefaultPrefix
	}

	if strings.ContainsAny(c.Prefix, " \t\n") || strings.HasSuffix(c.Prefix, ":") {
		return fmt.Errorf("%w: %q", ErrInvalidPrefix, c.Prefix)
	}

	if c.PoolSize < 0 {
		return ErrInvalidPoolSize
	}

	return nil
}

// PrefixKey namespaces key under the configured prefix. Cache entries live
// under PrefixKey("cache") and scheduler state under PrefixKey("scheduler").
func (c *Config) PrefixKey(key string) string {
	if c.Prefix == "" {
		return key
	}

	return c.Prefix + ":" + key
}
