// Package plog provides the process-wide logger. Console output is split by
// level (INFO and below to stdout, WARN and above to stderr), and each
// invocation can additionally open a timestamped run log file that receives
// every record regardless of console level.
package plog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LevelNotice sits between INFO and WARN and is used for per-file action
// records (COPY, SKIP, DELETE). It keeps the console readable at the default
// level while still landing in the run log file.
const LevelNotice = slog.Level(2)

// LevelDispatchHandler is a slog.Handler that writes log records to different
// handlers based on the record's level. INFO and below go to one handler,
// while WARNING and above go to another.
type LevelDispatchHandler struct {
	stdoutHandler slog.Handler
	stderrHandler slog.Handler
}

// Enabled checks if the level is enabled for either of the underlying handlers.
func (h *LevelDispatchHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.stdoutHandler.Enabled(ctx, level) || h.stderrHandler.Enabled(ctx, level)
}

// Handle dispatches the record to the appropriate handler.
func (h *LevelDispatchHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelWarn {
		return h.stderrHandler.Handle(ctx, r)
	}
	return h.stdoutHandler.Handle(ctx, r)
}

// WithAttrs returns a new LevelDispatchHandler with the given attributes added.
func (h *LevelDispatchHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LevelDispatchHandler{
		stdoutHandler: h.stdoutHandler.WithAttrs(attrs),
		stderrHandler: h.stderrHandler.WithAttrs(attrs),
	}
}

// WithGroup returns a new LevelDispatchHandler with the given group.
func (h *LevelDispatchHandler) WithGroup(name string) slog.Handler {
	return &LevelDispatchHandler{
		stdoutHandler: h.stdoutHandler.WithGroup(name),
		stderrHandler: h.stderrHandler.WithGroup(name),
	}
}

// fanoutHandler duplicates every record to all wrapped handlers. Used to feed
// the console dispatcher and the run log file from a single logger.
type fanoutHandler struct {
	handlers []slog.Handler
}

func (h *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, sub := range h.handlers {
		if sub.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, sub := range h.handlers {
		if !sub.Enabled(ctx, r.Level) {
			continue
		}
		if err := sub.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	subs := make([]slog.Handler, len(h.handlers))
	for i, sub := range h.handlers {
		subs[i] = sub.WithAttrs(attrs)
	}
	return &fanoutHandler{handlers: subs}
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	subs := make([]slog.Handler, len(h.handlers))
	for i, sub := range h.handlers {
		subs[i] = sub.WithGroup(name)
	}
	return &fanoutHandler{handlers: subs}
}

var (
	mu            sync.Mutex
	defaultLogger atomic.Pointer[slog.Logger]
	consoleLevel  = new(slog.LevelVar)
	runLogLevel   = new(slog.LevelVar)
	runLogCloser  io.Closer
)

func init() {
	consoleLevel.Set(slog.LevelInfo)
	runLogLevel.Set(LevelNotice)
	defaultLogger.Store(slog.New(consoleHandler()))
}

func consoleHandler() slog.Handler {
	opts := &slog.HandlerOptions{
		Level:       consoleLevel,
		ReplaceAttr: replaceLevelName,
	}
	return &LevelDispatchHandler{
		stdoutHandler: slog.NewTextHandler(os.Stdout, opts),
		stderrHandler: slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level:       slog.LevelWarn,
			ReplaceAttr: replaceLevelName,
		}),
	}
}

// replaceLevelName renders the custom NOTICE level by name instead of "INFO+2".
func replaceLevelName(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if level, ok := a.Value.Any().(slog.Level); ok && level == LevelNotice {
			a.Value = slog.StringValue("NOTICE")
		}
	}
	return a
}

// SetOutput redirects all logger output to w, primarily for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger.Store(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})))
}

// SetLevel sets the minimum level written to the console. The run log file
// always records NOTICE and above.
func SetLevel(level slog.Level) {
	consoleLevel.Set(level)
}

// LevelFromString converts a config/flag value into a slog level.
// Unknown values fall back to INFO.
func LevelFromString(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "notice":
		return LevelNotice
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// OpenRunLog creates one timestamped log artifact for this invocation under
// dir and attaches it to the global logger. The returned path identifies the
// artifact; CloseRunLog detaches and closes it. The file receives UTF-8 text
// and is size-capped so a runaway run cannot fill the disk.
func OpenRunLog(dir string, startTime time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("could not create log directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, fmt.Sprintf("dupsync_%s.log", startTime.Format("20060102_150405")))

	mu.Lock()
	defer mu.Unlock()

	writer := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    512, // MB per invocation before rollover
		MaxBackups: 2,
		Compress:   false,
	}
	fileHandler := slog.NewTextHandler(writer, &slog.HandlerOptions{
		Level:       runLogLevel,
		ReplaceAttr: replaceLevelName,
	})

	runLogCloser = writer
	defaultLogger.Store(slog.New(&fanoutHandler{
		handlers: []slog.Handler{consoleHandler(), fileHandler},
	}))
	return path, nil
}

// CloseRunLog detaches the run log file and restores console-only logging.
func CloseRunLog() {
	mu.Lock()
	defer mu.Unlock()
	if runLogCloser != nil {
		runLogCloser.Close()
		runLogCloser = nil
	}
	defaultLogger.Store(slog.New(consoleHandler()))
}

// Debug logs a debug message.
func Debug(msg string, args ...any) {
	defaultLogger.Load().Debug(msg, args...)
}

// Info logs an informational message.
func Info(msg string, args ...any) {
	defaultLogger.Load().Info(msg, args...)
}

// Notice logs a per-file action record.
func Notice(msg string, args ...any) {
	defaultLogger.Load().Log(context.Background(), LevelNotice, msg, args...)
}

// Warn logs a warning message.
func Warn(msg string, args ...any) {
	defaultLogger.Load().Warn(msg, args...)
}

// Error logs an error message.
func Error(msg string, args ...any) {
	defaultLogger.Load().Error(msg, args...)
}
