package messaging

import "errors"

var (
	// Engine state errors
	ErrFabricNotStarted      = errors.New("messaging fabric not started")
	ErrFabricShutdownTimeout = errors.New("messaging fabric shutdown timed out")

	// Subscription errors
	ErrHandlerNil              = errors.New("handler cannot be nil")
	ErrInvalidSubscriptionType = errors.New("invalid subscription type")
	ErrInvalidTopic            = errors.New("invalid topic")

	// Service errors
	ErrDuplicateService = errors.New("service already registered for topic")
	ErrNoService        = errors.New("no service registered for topic")

	// Payload errors
	ErrEncodePayload = errors.New("failed to encode payload")
	ErrDecodePayload = errors.New("failed to decode payload")

	// Engine selection errors
	ErrUnknownEngineType = errors.New("unknown engine type")
	ErrNilEngine         = errors.New("messaging: nil engine supplied")
	ErrInvalidInterval   = errors.New("messaging: interval must be > 0")
)
