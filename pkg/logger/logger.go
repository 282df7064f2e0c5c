package logger

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu    sync.Mutex
	sugar *zap.SugaredLogger
)

// InitLogger writes to stderr and, when filename is set, appends to that file.
func InitLogger(filename string, debug bool) error {
	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	if !debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	if filename != "" {
		cfg.OutputPaths = append(cfg.OutputPaths, filename)
	}

	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	if sugar != nil {
		_ = sugar.Sync()
	}
	sugar = l.Sugar()
	return nil
}

// Init installs a console logger at info level.
func Init() {
	_ = InitLogger("", false)
}

// Use replaces the package logger, mainly so tests can observe output.
func Use(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	sugar = l.WithOptions(zap.AddCallerSkip(1)).Sugar()
}

func Close() {
	mu.Lock()
	defer mu.Unlock()
	if sugar != nil {
		_ = sugar.Sync()
	}
}

func get() *zap.SugaredLogger {
	mu.Lock()
	l := sugar
	mu.Unlock()
	if l == nil {
		Init()
		mu.Lock()
		l = sugar
		mu.Unlock()
	}
	return l
}

func Debugf(format string, v ...interface{}) { get().Debugf(format, v...) }
func Infof(format string, v ...interface{})  { get().Infof(format, v...) }
func Warnf(format string, v ...interface{})  { get().Warnf(format, v...) }
func Errorf(format string, v ...interface{}) { get().Errorf(format, v...) }

func Debugw(msg string, kv ...interface{}) { get().Debugw(msg, redact(kv)...) }
func Infow(msg string, kv ...interface{})  { get().Infow(msg, redact(kv)...) }
func Warnw(msg string, kv ...interface{})  { get().Warnw(msg, redact(kv)...) }
func Errorw(msg string, kv ...interface{}) { get().Errorw(msg, redact(kv)...) }

func redact(kv []interface{}) []interface{} {
	if len(kv) == 0 {
		return kv
	}
	out := make([]interface{}, len(kv))
	copy(out, kv)
	for i := 0; i+1 < len(out); i += 2 {
		key, ok := out[i].(string)
		if !ok {
			continue
		}
		if isSecretKey(key) {
			out[i+1] = "[REDACTED]"
		}
	}
	return out
}

func isSecretKey(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "password") ||
		strings.Contains(k, "secret") ||
		strings.Contains(k, "credential")
}
