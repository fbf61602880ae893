package installer

// Logger defines the interface for structured logging used throughout the
// installer. All orchestration steps (installs, rollbacks, best-effort
// cleanup failures, health evaluations) are logged through this interface,
// so the embedding application controls how the output appears.
//
// The interface uses variadic arguments in key-value pairs:
//
//	logger.Info("Module loaded", "module", "billing", "tenant", "t1")
//
// This shape is compatible with popular structured logging libraries like
// slog, logrus and zap. An adapter over log/slog is a one-liner per method:
//
//	type SlogLogger struct{ L *slog.Logger }
//
//	func (s SlogLogger) Info(msg string, args ...any) { s.L.Info(msg, args...) }
type Logger interface {
	// Info logs an informational message with optional key-value pairs.
	Info(msg string, args ...any)

	// Error logs an error message with optional key-value pairs.
	Error(msg string, args ...any)

	// Warn logs a warning message with optional key-value pairs.
	// Best-effort cleanup failures are reported at this level.
	Warn(msg string, args ...any)

	// Debug logs a debug message with optional key-value pairs.
	Debug(msg string, args ...any)
}
