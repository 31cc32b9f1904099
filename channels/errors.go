package channels

import "errors"

var (
	ErrInvalidContext       = errors.New("invalid context")
	ErrChannelDisposed      = errors.New("channel disposed")
	ErrInvalidChannelID     = errors.New("invalid channel id")
	ErrInvalidChannelType   = errors.New("invalid channel type")
	ErrUserChannelSetSource = errors.New("unsupported user channel set source")
	ErrUserChannelSetEmpty  = errors.New("user channel set is empty")
)
