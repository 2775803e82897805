package logger

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

var levelStrings = map[LogLevel]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

func (l LogLevel) String() string {
	if s, ok := levelStrings[l]; ok {
		return s
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseLevel converts DEBUG, INFO, WARN or ERROR (any case) to a LogLevel
func ParseLevel(s string) (LogLevel, error) {
	for level, name := range levelStrings {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return level, nil
		}
	}
	return INFO, fmt.Errorf("unknown log level %q", s)
}

// Logger provides structured logging with timestamp, PID, and caller
type Logger struct {
	zl    *zap.Logger
	level zap.AtomicLevel
}

// NewLogger creates a console logger writing to stdout, errors to stderr
func NewLogger(minLevel LogLevel) *Logger {
	l, _ := newZapLogger(minLevel, "console")
	return l
}

// NewLoggerWithCore wraps an existing zap core. Used by tests to observe output.
func NewLoggerWithCore(core zapcore.Core) *Logger {
	level := zap.NewAtomicLevelAt(zapcore.DebugLevel)
	return &Logger{
		zl:    zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2)),
		level: level,
	}
}

func newZapLogger(minLevel LogLevel, format string) (*Logger, error) {
	level := zap.NewAtomicLevelAt(minLevel.zapLevel())

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	var encoder zapcore.Encoder
	switch strings.ToLower(format) {
	case "json":
		encoder = zapcore.NewJSONEncoder(encCfg)
	case "console", "":
		encoder = zapcore.NewConsoleEncoder(encCfg)
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}

	stdout := zapcore.Lock(os.Stdout)
	stderr := zapcore.Lock(os.Stderr)
	belowError := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return level.Enabled(l) && l < zapcore.ErrorLevel
	})
	errorAndUp := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return level.Enabled(l) && l >= zapcore.ErrorLevel
	})

	core := zapcore.NewTee(
		zapcore.NewCore(encoder, stdout, belowError),
		zapcore.NewCore(encoder, stderr, errorAndUp),
	)

	zl := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2)).
		With(zap.Int("pid", os.Getpid()))
	return &Logger{zl: zl, level: level}, nil
}

// Default logger instance (INFO level)
var defaultLogger = NewLogger(INFO)

// fields converts the context map into zap fields in a stable order
func fields(context []map[string]interface{}) []zap.Field {
	if len(context) == 0 || len(context[0]) == 0 {
		return nil
	}
	ctx := context[0]
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		out = append(out, zap.Any(k, ctx[k]))
	}
	return out
}

func (l *Logger) log(level LogLevel, message string, context []map[string]interface{}) {
	if ce := l.zl.Check(level.zapLevel(), message); ce != nil {
		ce.Write(fields(context)...)
	}
}

// Debug logs a debug message
func (l *Logger) Debug(message string, context ...map[string]interface{}) {
	l.log(DEBUG, message, context)
}

// Info logs an info message
func (l *Logger) Info(message string, context ...map[string]interface{}) {
	l.log(INFO, message, context)
}

// Warn logs a warning message
func (l *Logger) Warn(message string, context ...map[string]interface{}) {
	l.log(WARN, message, context)
}

// Error logs an error message
func (l *Logger) Error(message string, context ...map[string]interface{}) {
	l.log(ERROR, message, context)
}

// Zap exposes the underlying zap logger for libraries that want one
func (l *Logger) Zap() *zap.Logger {
	return l.zl.WithOptions(zap.AddCallerSkip(-2))
}

// Package-level convenience functions using default logger

// Debug logs a debug message using the default logger
func Debug(message string, context ...map[string]interface{}) {
	defaultLogger.log(DEBUG, message, context)
}

// Info logs an info message using the default logger
func Info(message string, context ...map[string]interface{}) {
	defaultLogger.log(INFO, message, context)
}

// Warn logs a warning message using the default logger
func Warn(message string, context ...map[string]interface{}) {
	defaultLogger.log(WARN, message, context)
}

// Error logs an error message using the default logger
func Error(message string, context ...map[string]interface{}) {
	defaultLogger.log(ERROR, message, context)
}

// SetMinLevel sets the minimum log level for the default logger
func SetMinLevel(level LogLevel) {
	defaultLogger.level.SetLevel(level.zapLevel())
}

// Configure replaces the default logger with one using the given level and
// format ("console" or "json")
func Configure(level, format string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	l, err := newZapLogger(lvl, format)
	if err != nil {
		return err
	}
	defaultLogger = l
	return nil
}

// SetDefault swaps the default logger and returns the previous one
func SetDefault(l *Logger) *Logger {
	prev := defaultLogger
	defaultLogger = l
	return prev
}

// Default returns the default logger
func Default() *Logger {
	return defaultLogger
}

// Sync flushes buffered log entries
func Sync() {
	_ = defaultLogger.zl.Sync()
}
