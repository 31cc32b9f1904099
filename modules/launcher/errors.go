package launcher

import "errors"

var (
	ErrNoApp            = errors.New("launch request has no app")
	ErrNoInstanceID     = errors.New("launch request has no instance id")
	ErrNoRunner         = errors.New("no runner can start the app")
	ErrInstanceExists   = errors.New("instance is already running")
	ErrInstanceNotFound = errors.New("instance not found")
	ErrNoExecutable     = errors.New("app has no executable path")
	ErrAppNotRegistered = errors.New("in-process app is not registered")
	ErrLauncherClosed   = errors.New("launcher is shut down")
)
