package timeinfer

import "errors"

var (
	// ErrInvalidCron is returned when a cron expression cannot be parsed.
	// It is fatal to a batch run since no base date can be derived.
	ErrInvalidCron = errors.New("invalid cron expression")
	// ErrNominalTimeRequired is returned when inference is attempted without a nominal time
	ErrNominalTimeRequired = errors.New("nominal time is required")
)
