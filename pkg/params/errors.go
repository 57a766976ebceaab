package params

import "errors"

var (
	// ErrInvalidDate is returned when the base date is not a valid calendar date
	ErrInvalidDate = errors.New("invalid base date")
	// ErrDerivedParam is returned when a derived parameter template fails to render
	ErrDerivedParam = errors.New("failed to render derived parameter")
)
