// Package log provides a simple, leveled logging interface for ragflow components.
//
// # Log Levels
//
// The package supports five log levels, in order of increasing severity:
//
//   - LogLevelDebug: Detailed debugging information for development
//   - LogLevelInfo: General informational messages about normal operation
//   - LogLevelWarn: Warning messages, e.g. an embedding model falling back
//   - LogLevelError: Error messages for failed runs
//   - LogLevelNone: Disables all logging output
//
// # Example Usage
//
//	logger := log.NewDefaultLogger(log.LogLevelInfo)
//	logger.Info("indexed %d chunks into %s", n, namespace)
//	logger.Warn("vector retrieval failed, continuing with graph only: %v", err)
//
// Components accept a Logger in their options and fall back to the
// package-level logger (see SetDefaultLogger and OrDefault) when none is given.
// Named prefixes messages with a component name:
//
//	logger := log.Named(base, "embedder")
//	logger.Warn("model %s failed", model) // "embedder: model ... failed"
//
// # golog Integration
//
// GologLogger adapts github.com/kataras/golog to the Logger interface:
//
//	glogger := golog.New()
//	glogger.SetPrefix("[ragflow] ")
//	logger := log.NewGologLogger(glogger)
//	logger.SetLevel(log.LogLevelDebug)
//
// The server selects it with LOG_FORMAT=golog.
package log
