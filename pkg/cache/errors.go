package cache

import "errors"

var (
	// ErrCacheWrite is returned by Put when the new version could not be stored.
	// Neither the demotion nor the insert is applied in that case.
	ErrCacheWrite = errors.New("cache write failed")
	// ErrCacheRead wraps lookup failures. Lookup never returns it; it is logged
	// and the lookup is treated as a miss.
	ErrCacheRead = errors.New("cache read failed")
	// ErrPlaceholderIDRequired is returned when a placeholder id is empty
	ErrPlaceholderIDRequired = errors.New("placeholder id is required")
	// ErrInvalidTTL is returned when the default TTL is not positive
	ErrInvalidTTL = errors.New("default ttl hours must be positive")
)
