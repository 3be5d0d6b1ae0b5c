// Package logger holds the process-wide structured logger used by the card set
// and its allocators.
package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// L is the global logger instance. It discards all output until Init is called,
// unless CARDSET_LOG is set in the environment.
var L = slog.New(slog.NewTextHandler(io.Discard, nil))

const (
	logPrefix     = "cardset-"
	logSuffix     = ".log"
	retentionDays = 7

	// envLevel enables stderr logging at process start, e.g. CARDSET_LOG=debug.
	envLevel = "CARDSET_LOG"
)

func init() {
	if v := os.Getenv(envLevel); v != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(v)); err != nil {
			level = slog.LevelDebug
		}
		L = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}
}

// Options configures the logger initialization.
type Options struct {
	Enabled bool       // If false, all logging is discarded
	Output  io.Writer  // Destination; takes precedence over LogDir
	LogDir  string     // Directory for daily JSON log files when Output is nil
	Level   slog.Level // Minimum log level. Default: LevelInfo when enabled
	JSON    bool       // JSON handler for Output (log files are always JSON)
}

// Init configures logging. Call from main() before any log calls.
// If opts.Enabled is false, all log output is discarded.
func Init(opts Options) error {
	if !opts.Enabled {
		L = slog.New(slog.NewTextHandler(io.Discard, nil))
		return nil
	}

	level := opts.Level
	if level == 0 {
		level = slog.LevelInfo
	}
	hopts := &slog.HandlerOptions{Level: level}

	if opts.Output != nil {
		if opts.JSON {
			L = slog.New(slog.NewJSONHandler(opts.Output, hopts))
		} else {
			L = slog.New(slog.NewTextHandler(opts.Output, hopts))
		}
		return nil
	}

	logDir := opts.LogDir
	if logDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		logDir = filepath.Join(home, ".cardset", "logs")
	}

	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return err
	}

	// Best-effort; stale files are harmless.
	cleanOldLogs(logDir)

	filename := filepath.Join(logDir, logPrefix+time.Now().Format("2006-01-02")+logSuffix)

	f, err := os.OpenFile(filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	L = slog.New(slog.NewJSONHandler(f, hopts))
	return nil
}

// cleanOldLogs removes log files older than retentionDays.
func cleanOldLogs(logDir string) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	entries, err := os.ReadDir(logDir)
	if err != nil {
		return
	}

	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, logPrefix) || !strings.HasSuffix(name, logSuffix) {
			continue
		}

		// cardset-2024-01-05.log
		dateStr := strings.TrimPrefix(strings.TrimSuffix(name, logSuffix), logPrefix)
		logDate, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			continue
		}

		if logDate.Before(cutoff) {
			os.Remove(filepath.Join(logDir, name))
		}
	}
}

// Debug logs a debug message with optional key-value pairs.
func Debug(msg string, args ...any) { L.Debug(msg, args...) }

// Info logs an info message with optional key-value pairs.
func Info(msg string, args ...any) { L.Info(msg, args...) }

// Warn logs a warning message with optional key-value pairs.
func Warn(msg string, args ...any) { L.Warn(msg, args...) }

// Error logs an error message with optional key-value pairs.
func Error(msg string, args ...any) { L.Error(msg, args...) }
