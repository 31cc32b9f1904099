package appdirectory

import "errors"

var (
	ErrNoSource          = errors.New("app directory source is not configured")
	ErrUnsupportedSource = errors.New("unsupported app directory source")
	ErrUnsupportedFormat = errors.New("unsupported app directory format")
	ErrDecodeCatalog     = errors.New("failed to decode app directory")
	ErrInvalidRecord     = errors.New("invalid app directory record")
	ErrDuplicateAppID    = errors.New("duplicate appId in app directory")
	ErrNotLoaded         = errors.New("app directory is not loaded")
)
