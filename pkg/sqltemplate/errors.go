package sqltemplate

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTemplateValidation is returned when a SQL template has the wrong shape.
	// It is scoped to a single placeholder.
	ErrTemplateValidation = errors.New("sql template validation failed")
	// ErrMissingTemplateParameter marks tokens that had no parameter value. It is
	// a warning: filling continues with the token left in place.
	ErrMissingTemplateParameter = errors.New("missing template parameter")
)

// ValidationError carries the issues found by Validate
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrTemplateValidation, strings.Join(e.Issues, "; "))
}

// Unwrap allows errors.Is(err, ErrTemplateValidation)
func (e *ValidationError) Unwrap() error {
	return ErrTemplateValidation
}

// MissingParametersError lists the tokens Fill could not substitute
type MissingParametersError struct {
	Keys []string
}

func (e *MissingParametersError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingTemplateParameter, strings.Join(e.Keys, ", "))
}

// Unwrap allows errors.Is(err, ErrMissingTemplateParameter)
func (e *MissingParametersError) Unwrap() error {
	return ErrMissingTemplateParameter
}
