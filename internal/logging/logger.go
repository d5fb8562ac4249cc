package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Level names as they appear in log entries and in logging.level config.
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

var levelNames = map[string]slog.Level{
	LevelDebug: slog.LevelDebug,
	LevelInfo:  slog.LevelInfo,
	LevelWarn:  slog.LevelWarn,
	LevelError: slog.LevelError,
}

// Logger emits JSON log entries, each carrying the attributes inherited
// from its parent chain. It is safe for concurrent use.
type Logger struct {
	logger *slog.Logger
	file   *RotatingWriter
	mu     sync.Mutex  // guards Close against concurrent writers
	attrs  []slog.Attr // inherited subject, stage, capability tags
}

// NewLogger creates a Logger writing JSON entries to the given file path,
// creating parent directories as needed. The file is rotated per
// DefaultRotationConfig so long-lived serve processes do not grow it
// without bound. Messages below the given level are dropped; an empty
// path sends everything to stderr instead.
func NewLogger(path string, level string) (*Logger, error) {
	return NewLoggerWithRotation(path, level, DefaultRotationConfig())
}

// NewLoggerWithRotation is NewLogger with explicit rotation settings.
func NewLoggerWithRotation(path string, level string, rotation RotationConfig) (*Logger, error) {
	var (
		out  io.Writer = os.Stderr
		file *RotatingWriter
	)
	if path != "" {
		rw, err := NewRotatingWriter(path, rotation)
		if err != nil {
			return nil, err
		}
		file, out = rw, rw
	}

	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	return &Logger{
		logger: slog.New(slog.NewJSONHandler(out, opts)),
		file:   file,
	}, nil
}

// parseLevel maps a level name onto slog's scale, defaulting to INFO.
func parseLevel(level string) slog.Level {
	if lv, ok := levelNames[strings.ToUpper(level)]; ok {
		return lv
	}
	return slog.LevelInfo
}

// WithRun returns a child logger tagging every entry with the subject ID.
func (l *Logger) WithRun(subjectID string) *Logger {
	return l.withAttr(slog.String("subject", subjectID))
}

// WithStage returns a child logger tagging every entry with the pipeline
// stage ("initialization", "analysis", "testing", "quality_gates",
// "deployment_prep").
func (l *Logger) WithStage(stage string) *Logger {
	return l.withAttr(slog.String("stage", stage))
}

// WithCapability returns a child logger tagging every entry with the
// capability name.
func (l *Logger) WithCapability(name string) *Logger {
	return l.withAttr(slog.String("capability", name))
}

// With returns a child logger carrying arbitrary alternating key-value
// attributes on top of the inherited ones. Keys that are not strings are
// skipped along with their values.
func (l *Logger) With(args ...any) *Logger {
	if len(args) == 0 {
		return l
	}

	attrs := append([]slog.Attr(nil), l.attrs...)
	for i := 0; i+1 < len(args); i += 2 {
		if key, ok := args[i].(string); ok {
			attrs = append(attrs, slog.Any(key, args[i+1]))
		}
	}

	return &Logger{logger: l.logger, file: l.file, attrs: attrs}
}

func (l *Logger) withAttr(attr slog.Attr) *Logger {
	attrs := append(append([]slog.Attr(nil), l.attrs...), attr)
	return &Logger{logger: l.logger, file: l.file, attrs: attrs}
}

// Debug logs a message at DEBUG level with alternating key-value pairs.
func (l *Logger) Debug(msg string, args ...any) {
	l.log(slog.LevelDebug, msg, args...)
}

// Info logs a message at INFO level with alternating key-value pairs.
func (l *Logger) Info(msg string, args ...any) {
	l.log(slog.LevelInfo, msg, args...)
}

// Warn logs a message at WARN level with alternating key-value pairs.
func (l *Logger) Warn(msg string, args ...any) {
	l.log(slog.LevelWarn, msg, args...)
}

// Error logs a message at ERROR level with alternating key-value pairs.
func (l *Logger) Error(msg string, args ...any) {
	l.log(slog.LevelError, msg, args...)
}

// log prepends the persistent attributes so they land as top-level JSON
// keys ahead of the per-call arguments.
func (l *Logger) log(level slog.Level, msg string, args ...any) {
	merged := make([]any, 0, len(l.attrs)*2+len(args))
	for _, attr := range l.attrs {
		merged = append(merged, attr.Key, attr.Value.Any())
	}
	merged = append(merged, args...)

	l.logger.Log(context.Background(), level, msg, merged...)
}

// Close flushes and closes the underlying log file. For stderr-backed
// loggers there is nothing to close.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// NopLogger returns a Logger that discards everything, for tests and for
// callers that disable logging.
func NopLogger() *Logger {
	return &Logger{logger: slog.New(slog.NewJSONHandler(io.Discard, nil))}
}

// ParseLevel normalizes a user-provided level string to its canonical
// constant, falling back to LevelInfo for anything unrecognized.
func ParseLevel(level string) string {
	name := strings.ToUpper(level)
	if _, ok := levelNames[name]; ok {
		return name
	}
	return LevelInfo
}

// ValidLevels lists the accepted level names, in severity order.
func ValidLevels() []string {
	return []string{LevelDebug, LevelInfo, LevelWarn, LevelError}
}
