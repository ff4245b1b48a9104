package catalog

import "errors"

// Sentinel kinds for catalog errors.
var (
	ErrUnavailable   = errors.New("catalog unavailable")
	ErrCreateFailed  = errors.New("task creation failed")
	ErrUnknownSource = errors.New("unknown exercise")
)
