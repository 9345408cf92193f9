// Package logger provides component-scoped structured logging on top of zap.
package logger

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

var (
	mu     sync.RWMutex
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	base   = newLogger("json")
	levels = map[LogLevel]zapcore.Level{
		DEBUG: zapcore.DebugLevel,
		INFO:  zapcore.InfoLevel,
		WARN:  zapcore.WarnLevel,
		ERROR: zapcore.ErrorLevel,
		FATAL: zapcore.FatalLevel,
	}
)

func newLogger(format string) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if format == "console" {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(os.Stderr)), level)
	return zap.New(core)
}

// Configure sets the output format ("json" or "console") and the minimum level
// by name. Unknown level names fall back to info.
func Configure(format, levelName string) {
	SetLevel(ParseLevel(levelName))
	mu.Lock()
	base = newLogger(format)
	mu.Unlock()
}

func ParseLevel(name string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	case "fatal":
		return FATAL
	default:
		return INFO
	}
}

func SetLevel(l LogLevel) {
	if zl, ok := levels[l]; ok {
		level.SetLevel(zl)
	}
}

func GetLevel() LogLevel {
	cur := level.Level()
	for l, zl := range levels {
		if zl == cur {
			return l
		}
	}
	return INFO
}

// Replace swaps the underlying zap logger and returns a func restoring the
// previous one. Tests use it with zaptest/observer.
func Replace(l *zap.Logger) func() {
	mu.Lock()
	prev := base
	base = l
	mu.Unlock()
	return func() {
		mu.Lock()
		base = prev
		mu.Unlock()
	}
}

// Sync flushes any buffered log entries.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = base.Sync()
}

func logMessage(l zapcore.Level, component string, message string, fields map[string]interface{}) {
	mu.RLock()
	lg := base
	mu.RUnlock()

	ce := lg.Check(l, message)
	if ce == nil {
		return
	}

	zf := make([]zap.Field, 0, len(fields)+1)
	if component != "" {
		zf = append(zf, zap.String("component", component))
	}
	for k, v := range fields {
		zf = append(zf, zap.Any(k, v))
	}
	ce.Write(zf...)
}

func Debug(message string) {
	logMessage(zapcore.DebugLevel, "", message, nil)
}

func DebugC(component string, message string) {
	logMessage(zapcore.DebugLevel, component, message, nil)
}

func DebugF(message string, fields map[string]interface{}) {
	logMessage(zapcore.DebugLevel, "", message, fields)
}

func DebugCF(component string, message string, fields map[string]interface{}) {
	logMessage(zapcore.DebugLevel, component, message, fields)
}

func Info(message string) {
	logMessage(zapcore.InfoLevel, "", message, nil)
}

func InfoC(component string, message string) {
	logMessage(zapcore.InfoLevel, component, message, nil)
}

func InfoF(message string, fields map[string]interface{}) {
	logMessage(zapcore.InfoLevel, "", message, fields)
}

func InfoCF(component string, message string, fields map[string]interface{}) {
	logMessage(zapcore.InfoLevel, component, message, fields)
}

func Warn(message string) {
	logMessage(zapcore.WarnLevel, "", message, nil)
}

func WarnC(component string, message string) {
	logMessage(zapcore.WarnLevel, component, message, nil)
}

func WarnCF(component string, message string, fields map[string]interface{}) {
	logMessage(zapcore.WarnLevel, component, message, fields)
}

func Error(message string) {
	logMessage(zapcore.ErrorLevel, "", message, nil)
}

func ErrorC(component string, message string) {
	logMessage(zapcore.ErrorLevel, component, message, nil)
}

func ErrorCF(component string, message string, fields map[string]interface{}) {
	logMessage(zapcore.ErrorLevel, component, message, fields)
}

// FatalCF logs and terminates the process.
func FatalCF(component string, message string, fields map[string]interface{}) {
	logMessage(zapcore.FatalLevel, component, message, fields)
}
