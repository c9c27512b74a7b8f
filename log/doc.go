// Package log is the structured logger shared by the cask engine and its
// host. It wraps [log/slog] with a small value type, [Logger], configured
// through functional options.
//
// # Usage
//
//	logger := log.Make(os.Stderr, log.WithLevel(log.LevelDebug))
//	logger.Info("script loaded", slog.String("script", "hello"))
//
// A zero [Logger] is valid and discards everything, so packages can hold a
// Logger field without checking for nil.
//
// # Levels
//
// [LevelTrace] sits below slog's Debug and is used for per-statement and
// per-call detail in the engine. The remaining levels map directly onto
// slog's.
//
// # Formats
//
// [FormatJSON] (default) and [FormatText]. With [WithPretty] enabled, text
// output is colorized for terminals.
//
// # Default logger
//
// The package-level functions ([Info], [DebugContext], ...) write through a
// process-wide default logger that the CLI reconfigures with [Config].
package log
