package batch

import "errors"

var (
	// ErrQueryExecution wraps query runner failures. It is scoped to one
	// placeholder and never returned from Run.
	ErrQueryExecution = errors.New("query execution failed")
	// ErrEmptySQLTemplate is recorded for SQL placeholders without a template
	ErrEmptySQLTemplate = errors.New("sql template is empty")
	// ErrUnrecognizedPeriod is recorded for period placeholders whose name matches no rule
	ErrUnrecognizedPeriod = errors.New("unrecognized period placeholder")
	// ErrBatchCancelled is recorded for placeholders whose result was discarded after cancellation
	ErrBatchCancelled = errors.New("batch cancelled")
	// ErrInvalidConcurrency is returned when concurrency is not positive
	ErrInvalidConcurrency = errors.New("max concurrency must be positive")
	// ErrQueryRunnerRequired is returned when no query runner is configured
	ErrQueryRunnerRequired = errors.New("query runner is required")
	// ErrParamBuilderRequired is returned when no parameter builder is configured
	ErrParamBuilderRequired = errors.New("parameter builder is required")
)
