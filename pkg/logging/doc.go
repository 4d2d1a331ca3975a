// Package logging provides the shared logging facility for kinboard.
//
// It wraps log/slog with a per-subsystem convenience API so callers can
// write logging.Info("Registry", ...) without threading a logger through
// every constructor. Initialize must be called once at startup; before
// that, all log calls are silently dropped.
package logging
