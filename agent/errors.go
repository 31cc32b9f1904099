package agent

import "errors"

var (
	ErrInvalidConfig   = errors.New("invalid fdc3 configuration")
	ErrMissingFabric   = errors.New("desktop agent requires a messaging fabric")
	ErrMissingDir      = errors.New("desktop agent requires an app directory")
	ErrMissingLauncher = errors.New("desktop agent requires a launcher")
	ErrNotStarted      = errors.New("desktop agent not started")
)
