// Package logger provides a small, thread-safe leveled logger.
//
// Every entry carries a timestamp, a level and an optional label. The load
// generator uses the label to tag lines with the session that produced them
// ("client-3"), so interleaved output from thousands of sessions stays
// readable.
//
// # Basic Usage
//
//	logger.Info("", "All clients introduced in %v", elapsed)
//	logger.Error("client-3", "connect failed: %v", err)
//
// A dedicated logger:
//
//	l := logger.New(os.Stderr, logger.LevelDebug)
//	l.Debug("client-0", "intro 1 received")
//
// # Levels
//
// Messages below the configured level are dropped. ParseLevel converts the
// names used in config files and flags ("debug", "info", "warn", "error").
//
// # Thread Safety
//
// All operations are guarded by a mutex and safe for concurrent use.
package logger
