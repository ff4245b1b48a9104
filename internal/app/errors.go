package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrNotStarted      = errors.New("service not started")
	ErrUnknownExercise = errors.New("unknown exercise")
	ErrRefreshFailed   = errors.New("catalog refresh failed")
	ErrCreateTask      = errors.New("create task failed")
)
