// Package logger provides the process-wide structured logging sink.
//
// Output is file-only by design: log lines must never land on stdout, since
// stdout (terminal REPL) and the WebSocket JSON stream are both user-facing
// protocols that a stray log line would corrupt.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/rs/zerolog"
)

// Level represents log levels.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) zerolog() zerolog.Level {
	switch l {
	case DEBUG:
		return zerolog.DebugLevel
	case WARN:
		return zerolog.WarnLevel
	case ERROR:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Logger wraps a zerolog.Logger behind the call-site shape this codebase
// already uses everywhere: Info(scope, msg, fields...).
type Logger struct {
	z       zerolog.Logger
	service string
}

var globalLogger *Logger

// Init initializes the global logger. On any failure to create the log
// directory or open the log file, it falls back to stdout so the process
// never silently loses logs.
func Init(logPath string, level Level, serviceName string) error {
	logDir := filepath.Dir(logPath)
	var w io.Writer
	if logDir != "." {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Failed to create log directory %s: %v\n", logDir, err)
			fmt.Fprintf(os.Stderr, "Logging to stdout only\n")
			w = os.Stdout
		}
	}
	if w == nil {
		f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Failed to open log file %s: %v\n", logPath, err)
			fmt.Fprintf(os.Stderr, "Logging to stdout only\n")
			w = os.Stdout
		} else {
			w = f
		}
	}

	zl := zerolog.New(w).With().Timestamp().Logger().Level(level.zerolog())
	globalLogger = &Logger{z: zl, service: serviceName}
	return nil
}

func (l *Logger) log(level Level, scope string, msg string, ctx map[string]interface{}) {
	var ev *zerolog.Event
	switch level {
	case DEBUG:
		ev = l.z.Debug()
	case WARN:
		ev = l.z.Warn()
	case ERROR:
		ev = l.z.Error()
	default:
		ev = l.z.Info()
	}

	ev = ev.Str("scope", scope)
	if l.service != "" {
		ev = ev.Str("service", l.service)
	}
	if _, file, line, ok := runtime.Caller(3); ok {
		caller := file
		if root, err := os.Getwd(); err == nil {
			if rel, relErr := filepath.Rel(root, file); relErr == nil {
				caller = rel
			}
		}
		ev = ev.Str("caller", fmt.Sprintf("%s:%d", caller, line))
	}
	if len(ctx) > 0 {
		ev = ev.Fields(ctx)
	}
	ev.Msg(msg)
}

// Info logs at INFO level against the global logger. A no-op before Init.
func Info(scope string, msg string, args ...map[string]interface{}) {
	if globalLogger == nil {
		return
	}
	globalLogger.log(INFO, scope, msg, getCtx(args))
}

// Error logs at ERROR level against the global logger.
func Error(scope string, msg string, args ...map[string]interface{}) {
	if globalLogger == nil {
		return
	}
	globalLogger.log(ERROR, scope, msg, getCtx(args))
}

// Debug logs at DEBUG level against the global logger.
func Debug(scope string, msg string, args ...map[string]interface{}) {
	if globalLogger == nil {
		return
	}
	globalLogger.log(DEBUG, scope, msg, getCtx(args))
}

// Warn logs at WARN level against the global logger.
func Warn(scope string, msg string, args ...map[string]interface{}) {
	if globalLogger == nil {
		return
	}
	globalLogger.log(WARN, scope, msg, getCtx(args))
}

func getCtx(args []map[string]interface{}) map[string]interface{} {
	if len(args) > 0 {
		return args[0]
	}
	return nil
}
