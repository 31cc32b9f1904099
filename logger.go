package desktopagent

// Logger defines the interface for application logging.
// Every module logs through this interface using key-value pairs:
//
//	logger.Info("Intent raised", "intent", "ViewChart", "source", instanceID)
//
// The shape is compatible with slog, zap's SugaredLogger and similar libraries;
// NewZapLogger adapts a zap logger.
type Logger interface {
	// Info logs normal operational events such as module startup, channel
	// creation or an intent being routed.
	Info(msg string, args ...any)

	// Error logs failures that were handled but should be noted.
	Error(msg string, args ...any)

	// Warn logs unusual conditions that do not stop normal operation, for
	// example a malformed broadcast or a duplicate listener registration.
	Warn(msg string, args ...any)

	// Debug logs detailed diagnostic information.
	Debug(msg string, args ...any)
}

// nopLogger discards everything. It backs components created without a logger.
type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}

// NopLogger returns a Logger that discards all output.
func NopLogger() Logger {
	return nopLogger{}
}
