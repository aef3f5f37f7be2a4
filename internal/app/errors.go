package service

import "errors"

// Lifecycle errors.
var (
	// ErrNotStarted is returned by operations called before Start or after Stop.
	ErrNotStarted = errors.New("service not started")
	// ErrBackendsClosed is returned by Start after Stop closed a backend the
	// service did not create.
	ErrBackendsClosed = errors.New("injected backends closed by a previous Stop")
)
