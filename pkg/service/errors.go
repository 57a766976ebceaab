package service

import "errors"

var (
	// ErrClickHouseURLRequired is returned when no query runner can be built
	ErrClickHouseURLRequired = errors.New("clickhouse URL is required")
	// ErrNotStarted is returned when the service is used before Start
	ErrNotStarted = errors.New("service not started")
	// ErrInvalidTestDate is returned when testMode.fixedDate is not a YYYY-MM-DD date
	ErrInvalidTestDate = errors.New("invalid test mode fixed date")
	// ErrInvalidLogLevel is returned for unknown logging levels
	ErrInvalidLogLevel = errors.New("invalid logging level")
)
