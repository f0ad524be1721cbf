package logger

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level represents the severity of a log entry.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

// ParseLevel maps a config string to a Level, defaulting to INFO.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

func (l Level) zap() zapcore.Level {
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

// Options configures the process-wide logger.
type Options struct {
	Level     Level
	JSON      bool
	RedactPII bool
}

// Logger provides structured key/value logging with optional PII redaction.
type Logger struct {
	mu        sync.RWMutex
	sugar     *zap.SugaredLogger
	level     zap.AtomicLevel
	redactPII bool
}

var defaultLogger = newDefault()

func newDefault() *Logger {
	lvl := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	z, err := cfg.Build(zap.AddCallerSkip(2))
	if err != nil {
		z = zap.NewNop()
	}
	return &Logger{sugar: z.Sugar(), level: lvl, redactPII: true}
}

// Init rebuilds the default logger from opts. It is called once from main.
func Init(opts Options) error {
	var cfg zap.Config
	if opts.JSON {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	lvl := zap.NewAtomicLevelAt(opts.Level.zap())
	cfg.Level = lvl

	z, err := cfg.Build(zap.AddCallerSkip(2))
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	defaultLogger.mu.Lock()
	old := defaultLogger.sugar
	defaultLogger.sugar = z.Sugar()
	defaultLogger.level = lvl
	defaultLogger.redactPII = opts.RedactPII
	defaultLogger.mu.Unlock()
	_ = old.Sync()
	return nil
}

// Use replaces the backing zap logger. Tests use it with zaptest/observer.
func Use(z *zap.Logger, redactPII bool) {
	defaultLogger.mu.Lock()
	defaultLogger.sugar = z.WithOptions(zap.AddCallerSkip(2)).Sugar()
	defaultLogger.redactPII = redactPII
	defaultLogger.mu.Unlock()
}

// SetLevel sets the minimum log level for the default logger.
func SetLevel(l Level) { defaultLogger.level.SetLevel(l.zap()) }

// SetRedactPII enables or disables PII redaction for the default logger.
func SetRedactPII(r bool) {
	defaultLogger.mu.Lock()
	defaultLogger.redactPII = r
	defaultLogger.mu.Unlock()
}

// Sync flushes buffered entries.
func Sync() error {
	defaultLogger.mu.RLock()
	defer defaultLogger.mu.RUnlock()
	return defaultLogger.sugar.Sync()
}

// Debug emits a DEBUG-level structured log entry.
func Debug(msg string, fields ...interface{}) { defaultLogger.log(DEBUG, msg, fields...) }

// Info emits an INFO-level structured log entry.
func Info(msg string, fields ...interface{}) { defaultLogger.log(INFO, msg, fields...) }

// Warn emits a WARN-level structured log entry.
func Warn(msg string, fields ...interface{}) { defaultLogger.log(WARN, msg, fields...) }

// Error emits an ERROR-level structured log entry.
func Error(msg string, fields ...interface{}) { defaultLogger.log(ERROR, msg, fields...) }

func (l *Logger) log(level Level, msg string, fields ...interface{}) {
	l.mu.RLock()
	sugar, redact := l.sugar, l.redactPII
	l.mu.RUnlock()

	// Parse key-value pairs from fields
	kv := make([]interface{}, 0, len(fields))
	for i := 0; i < len(fields)-1; i += 2 {
		key := fmt.Sprintf("%v", fields[i])
		val := fields[i+1]
		if err, ok := val.(error); ok {
			val = err.Error()
		}
		if s, ok := val.(string); ok && redact {
			val = redactPIIValue(key, s)
		}
		kv = append(kv, key, val)
	}

	switch level {
	case DEBUG:
		sugar.Debugw(msg, kv...)
	case WARN:
		sugar.Warnw(msg, kv...)
	case ERROR:
		sugar.Errorw(msg, kv...)
	default:
		sugar.Infow(msg, kv...)
	}
}

var emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

func redactPIIValue(key, val string) string {
	key = strings.ToLower(key)
	// Redact email fields
	if strings.Contains(key, "email") || strings.Contains(key, "recipient") || strings.Contains(key, "subscriber") {
		return RedactEmail(val)
	}
	// Redact any embedded emails in generic fields
	return emailRegex.ReplaceAllStringFunc(val, RedactEmail)
}
