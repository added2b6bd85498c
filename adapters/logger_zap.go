// File: adapters/logger_zap.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Default api.Logger implementation backed by go.uber.org/zap. Lives
// outside every core package and is wired in only at webframe/cmd
// construction time, so core packages never import zap directly.

package adapters

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/momentics/reactorhttp/api"
)

// ZapLogger adapts *zap.Logger to api.Logger.
type ZapLogger struct {
	z *zap.Logger
}

// NewZapLogger builds a production or development zap core depending on
// dev. Errors constructing the logger fall back to zap.NewNop() so the
// server can always start.
func NewZapLogger(dev bool) *ZapLogger {
	var z *zap.Logger
	var err error
	if dev {
		z, err = zap.NewDevelopment()
	} else {
		z, err = zap.NewProduction()
	}
	if err != nil {
		z = zap.NewNop()
	}
	return &ZapLogger{z: z}
}

// NewZapLoggerAt builds a leveled logger writing to stderr, used by the
// entry binary when a config-driven level is requested instead of the
// canned dev/production presets.
func NewZapLoggerAt(level zapcore.Level) *ZapLogger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	z, err := cfg.Build()
	if err != nil {
		z = zap.NewNop()
	}
	return &ZapLogger{z: z}
}

func toZapFields(fields []api.Field) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, len(fields))
	for i, f := range fields {
		out[i] = zap.Any(f.Key, f.Value)
	}
	return out
}

func (l *ZapLogger) Debug(msg string, fields ...api.Field) { l.z.Debug(msg, toZapFields(fields)...) }
func (l *ZapLogger) Info(msg string, fields ...api.Field)  { l.z.Info(msg, toZapFields(fields)...) }
func (l *ZapLogger) Warn(msg string, fields ...api.Field)  { l.z.Warn(msg, toZapFields(fields)...) }
func (l *ZapLogger) Error(msg string, fields ...api.Field) { l.z.Error(msg, toZapFields(fields)...) }

// Sync flushes the underlying zap core; callers should defer this at
// shutdown.
func (l *ZapLogger) Sync() error { return l.z.Sync() }
