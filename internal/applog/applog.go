package applog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	maxFileSize = 5 << 20 // 5 MB
	maxValueLen = 200
	truncSuffix = "…"
)

var (
	mu     sync.Mutex
	file   *os.File
	logger *zap.SugaredLogger
)

// Options controls where and how much is logged.
type Options struct {
	Dir    string // log directory; empty disables the file sink
	Level  string // debug, info, warn, error (default info)
	Pretty bool   // also log human-readable lines to stderr
}

// Init opens the log file for appending. Call once at startup.
// If the file exceeds 5 MB, it is rotated (renamed to .log.1) before opening.
// Without Init every log call is a no-op.
func Init(opts Options) error {
	level := parseLevel(opts.Level)
	var cores []zapcore.Core
	var f *os.File

	if opts.Dir != "" {
		path := filepath.Join(opts.Dir, "tabecho.log")
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return err
		}
		if info, err := os.Stat(path); err == nil && info.Size() > maxFileSize {
			os.Rename(path, path+".1")
		}
		var err error
		f, err = os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		enc := zap.NewProductionEncoderConfig()
		enc.TimeKey = "ts"
		enc.MessageKey = "event"
		enc.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(f), level))
	}
	if opts.Pretty {
		enc := zap.NewDevelopmentEncoderConfig()
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(os.Stderr), level))
	}

	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		file.Close()
	}
	file = f
	if len(cores) == 0 {
		logger = nil
		return nil
	}
	logger = zap.New(zapcore.NewTee(cores...)).Sugar()
	return nil
}

// Close flushes and closes the log file.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if logger != nil {
		logger.Sync()
		logger = nil
	}
	if file != nil {
		file.Close()
		file = nil
	}
}

// Debug logs a low-volume diagnostic event.
func Debug(event string, kv ...any) {
	write(zapcore.DebugLevel, event, nil, kv)
}

// Info logs a structured event line.
//
//	applog.Info("ws.connected", "remote", addr)
//	applog.Info("scan.done", "tracked", 12, "archived", 2)
func Info(event string, kv ...any) {
	write(zapcore.InfoLevel, event, nil, kv)
}

// Warn logs a degraded-but-handled condition.
func Warn(event string, err error, kv ...any) {
	write(zapcore.WarnLevel, event, err, kv)
}

// Error logs an event with an error.
//
//	applog.Error("archive.save", err, "tab", 42)
func Error(event string, err error, kv ...any) {
	write(zapcore.ErrorLevel, event, err, kv)
}

func write(level zapcore.Level, event string, err error, kv []any) {
	mu.Lock()
	l := logger
	mu.Unlock()
	if l == nil {
		return
	}

	fields := make([]any, 0, len(kv)+2)
	if err != nil {
		fields = append(fields, "err", quote(err.Error()))
	}
	for i := 0; i+1 < len(kv); i += 2 {
		fields = append(fields, fmt.Sprint(kv[i]), clip(kv[i+1]))
	}

	switch level {
	case zapcore.DebugLevel:
		l.Debugw(event, fields...)
	case zapcore.WarnLevel:
		l.Warnw(event, fields...)
	case zapcore.ErrorLevel:
		l.Errorw(event, fields...)
	default:
		l.Infow(event, fields...)
	}
}

// clip truncates long string values; other values pass through so zap keeps their type.
func clip(v any) any {
	switch s := v.(type) {
	case string:
		return quote(s)
	case fmt.Stringer:
		return quote(s.String())
	}
	return v
}

func quote(s string) string {
	if len(s) > maxValueLen {
		s = s[:maxValueLen] + truncSuffix
	}
	return strings.TrimSpace(s)
}

func parseLevel(lvl string) zapcore.Level {
	switch strings.ToLower(lvl) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
