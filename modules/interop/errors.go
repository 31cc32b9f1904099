package interop

import "errors"

var (
	ErrServiceRegistration = errors.New("failed to register desktop agent service")
)
