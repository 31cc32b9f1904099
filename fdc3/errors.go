package fdc3

import (
	"errors"
	"fmt"
)

// Error codes surfaced to desktop agent clients.
const (
	CodeNoAppsFound               = "NoAppsFound"
	CodeIntentDeliveryFailed      = "IntentDeliveryFailed"
	CodeTargetAppUnavailable      = "TargetAppUnavailable"
	CodeTargetInstanceUnavailable = "TargetInstanceUnavailable"
	CodeResolverTimeout           = "ResolverTimeout"
	CodeResolverUnavailable       = "ResolverUnavailable"
	CodeUserCancelledResolution   = "UserCancelledResolution"
	CodeMissingID                 = "MissingId"
	CodePayloadNull               = "PayloadNull"
	CodeNoChannelFound            = "NoChannelFound"
	CodeAccessDenied              = "AccessDenied"
	CodeCreationFailed            = "CreationFailed"
	CodeListenerNotFound          = "ListenerNotFound"
	CodeOpenedAppContextNotFound  = "OpenedAppContextNotFound"
	CodeIDNotParsable             = "IdNotParsable"
	CodeNoUserChannelSetFound     = "NoUserChannelSetFound"
	CodePrivateChannelNotFound    = "PrivateChannelNotFound"
	CodeAppNotFound               = "AppNotFound"
	CodeAppTimeout                = "AppTimeout"
	CodeErrorOnLaunch             = "ErrorOnLaunch"
	CodeMalformedContext          = "MalformedContext"
)

// Error is an expected failure of a desktop agent operation. Two errors are
// equal under errors.Is when their codes match, so the sentinels below can be
// used with errors.Is regardless of the message.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// NewError returns an Error with the given code and a formatted message.
func NewError(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ErrorCode returns the protocol code carried by err. Errors without a code
// are reported as their message so nothing is lost on the wire.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var fdc3Err *Error
	if errors.As(err, &fdc3Err) {
		return fdc3Err.Code
	}
	return err.Error()
}

// Sentinels for errors.Is comparisons.
var (
	ErrNoAppsFound               = &Error{Code: CodeNoAppsFound}
	ErrIntentDeliveryFailed      = &Error{Code: CodeIntentDeliveryFailed}
	ErrTargetAppUnavailable      = &Error{Code: CodeTargetAppUnavailable}
	ErrTargetInstanceUnavailable = &Error{Code: CodeTargetInstanceUnavailable}
	ErrResolverTimeout           = &Error{Code: CodeResolverTimeout}
	ErrResolverUnavailable       = &Error{Code: CodeResolverUnavailable}
	ErrUserCancelledResolution   = &Error{Code: CodeUserCancelledResolution}
	ErrMissingID                 = &Error{Code: CodeMissingID}
	ErrPayloadNull               = &Error{Code: CodePayloadNull}
	ErrNoChannelFound            = &Error{Code: CodeNoChannelFound}
	ErrAccessDenied              = &Error{Code: CodeAccessDenied}
	ErrCreationFailed            = &Error{Code: CodeCreationFailed}
	ErrListenerNotFound          = &Error{Code: CodeListenerNotFound}
	ErrOpenedAppContextNotFound  = &Error{Code: CodeOpenedAppContextNotFound}
	ErrIDNotParsable             = &Error{Code: CodeIDNotParsable}
	ErrNoUserChannelSetFound     = &Error{Code: CodeNoUserChannelSetFound}
	ErrPrivateChannelNotFound    = &Error{Code: CodePrivateChannelNotFound}
	ErrAppNotFound               = &Error{Code: CodeAppNotFound}
	ErrAppTimeout                = &Error{Code: CodeAppTimeout}
	ErrErrorOnLaunch             = &Error{Code: CodeErrorOnLaunch}
	ErrMalformedContext          = &Error{Code: CodeMalformedContext}
)
