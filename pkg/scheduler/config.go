// Package scheduler triggers batch runs on their cron schedules. One instance
// holds a Redis lease and dispatches; the others stand by.
package scheduler

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidConcurrency is returned when concurrency is not positive
	ErrInvalidConcurrency = errors.New("concurrency must be positive")
	// ErrInvalidLease is returned when the lease is not longer than the renew interval
	ErrInvalidLease = errors.New("lease TTL must be longer than the renew interval")
	// ErrInvalidTickInterval is returned when the tick interval is not positive
	ErrInvalidTickInterval = errors.New("tick interval must be positive")
	// ErrJobIDRequired is returned for jobs without an id
	ErrJobIDRequired = errors.New("job id is required")
	// ErrDuplicateJob is returned when two jobs share an id
	ErrDuplicateJob = errors.New("duplicate job id")
	// ErrBatchFileRequired is returned for jobs without a batch file
	ErrBatchFileRequired = errors.New("job batch file is required")
)

// Config defines scheduler configuration
type Config struct {
	Jobs          []JobConfig   `yaml:"jobs"`
	Concurrency   int           `yaml:"concurrency" default:"2"`
	TickInterval  time.Duration `yaml:"tickInterval" default:"1s"`
	TaskTimeout   time.Duration `yaml:"taskTimeout" default:"30m"`
	LeaseTTL      time.Duration `yaml:"leaseTTL" default:"10s"`
	RenewInterval time.Duration `yaml:"renewInterval" default:"3s"`
}

// JobConfig points at a batch file whose context carries the cron expression
type JobConfig struct {
	ID        string `yaml:"id"`
	BatchFile string `yaml:"batchFile"`
}

// Validate checks if the scheduler configuration is valid
func (c *Config) Validate() error {
	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}

	if c.TickInterval <= 0 {
		return ErrInvalidTickInterval
	}

	if c.LeaseTTL <= c.RenewInterval {
		return ErrInvalidLease
	}

	seen := make(map[string]struct{}, len(c.Jobs))

	for _, j := range c.Jobs {
		if j.ID == "" {
			return ErrJobIDRequired
		}

		if j.BatchFile == "" {
			return fmt.Errorf("%w: %s", ErrBatchFileRequired, j.ID)
		}

		if _, ok := seen[j.ID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateJob, j.ID)
		}

		seen[j.ID] = struct{}{}
	}

	return nil
}
