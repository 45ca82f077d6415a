package qcorpus

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

var (
	logger      = slog.New(slog.NewTextHandler(os.Stderr, nil))
	verboseMode bool
)

// InitLogging replaces the package logger. level is one of debug, info,
// warn, error; format is text or json.
func InitLogging(w io.Writer, level, format string) {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	logger = slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger returns the package logger.
func Logger() *slog.Logger {
	return logger
}

// SetLogger replaces the package logger.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

// SetVerbose sets the global verbose mode
func SetVerbose(verbose bool) {
	verboseMode = verbose
}

// VerboseLog logs only when verbose mode is enabled
func VerboseLog(msg string, args ...any) {
	if verboseMode {
		logger.Info(msg, args...)
	}
}
