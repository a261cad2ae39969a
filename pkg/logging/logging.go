// Package logging provides the process-wide structured logger used by every
// component of benchctl. A single atomic level is shared across all derived
// loggers so that `-v` and LOG_LEVEL can reconfigure verbosity without
// threading a level value through every constructor.
package logging

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.Mutex
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	base   *zap.Logger
	sugar  *zap.SugaredLogger
	setup  sync.Once
)

func initLogger() {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder

	encoder := zapcore.NewConsoleEncoder(cfg)
	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level)

	base = zap.New(core)
	sugar = base.Sugar()
}

// L returns the process-wide zap.Logger.
func L() *zap.Logger {
	setup.Do(initLogger)
	return base
}

// S returns the process-wide SugaredLogger, the form the rest of the
// codebase uses for key/value structured fields.
func S() *zap.SugaredLogger {
	setup.Do(initLogger)
	return sugar
}

// SetLevel adjusts the level of every logger derived from this package.
func SetLevel(l zapcore.Level) {
	mu.Lock()
	defer mu.Unlock()
	setup.Do(initLogger)
	level.SetLevel(l)
}

// NewLogger builds a private logger writing to an additional sink, used by
// callers (such as pkg/rpc) that need a per-request or per-run logger while
// still honoring the global level.
func NewLogger(ws zapcore.WriteSyncer) *zap.Logger {
	setup.Do(initLogger)

	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(cfg)

	stderrCore := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.Lock(os.Stderr), level)
	extraCore := zapcore.NewCore(encoder, ws, level)

	return zap.New(zapcore.NewTee(stderrCore, extraCore))
}
