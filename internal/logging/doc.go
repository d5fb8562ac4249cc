// Package logging records what gauntlet runs do, in a form that can be
// read back later.
//
// A [Logger] wraps log/slog with a JSON handler. Every entry is one
// JSON line; well-known context (the subject under test, the pipeline
// stage, the capability being invoked) rides in dedicated fields so
// entries can be filtered without parsing messages:
//
//	logger, err := logging.NewLogger(path, logging.LevelInfo)
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	scan := logger.WithRun("svc-api").WithStage("analysis").WithCapability("security_scan")
//	scan.Info("sub-task dispatched", "timeout", "30s")
//
// produces
//
//	{"time":"...","level":"INFO","msg":"sub-task dispatched","subject":"svc-api","stage":"analysis","capability":"security_scan","timeout":"30s"}
//
// Child loggers returned by the With* methods share the parent's file;
// everything here is safe for concurrent use. Tests and callers that
// disable logging use [NopLogger].
//
// File-backed loggers rotate once the file passes a size limit, keeping
// numbered backups with optional gzip compression ([RotationConfig],
// [NewLoggerWithRotation]). [NewLogger] applies
// [DefaultRotationConfig].
//
// The reverse direction lives here too: [AggregateLogs] loads a log
// file back into [LogEntry] values, [FilterLogs] narrows them by level,
// time window, or context fields, and [ExportLogs] writes them out as
// JSON, text, or CSV. The 'gauntlet logs' command is a thin layer over
// these.
//
// Levels are plain strings ([LevelDebug] through [LevelError]);
// [ParseLevel] normalizes user input, and unknown names fall back to
// INFO. The config file sets both the level and the file location:
//
//	logging:
//	  level: info
//	  file: ~/.local/share/gauntlet/gauntlet.log
package logging
