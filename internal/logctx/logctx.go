// Package logctx builds the node's zap.Logger: a production config with
// caller/stacktrace disabled, a configurable level and encoding, and an
// ISO8601 timestamp only when attached to a terminal.
package logctx

import (
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

// Options configures logger construction.
type Options struct {
	Level    string // "debug", "info", "warn", "error"; default "info"
	Encoding string // "console" or "json"; default "console"
	Debug    bool   // forces debug level regardless of Level
}

// New builds a production-style zap.Logger per Options.
func New(opts Options) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		var err error
		level, err = zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, err
		}
	}
	if opts.Debug {
		level = zapcore.DebugLevel
	}

	encoding := "console"
	if opts.Encoding != "" {
		encoding = opts.Encoding
	}

	cc := zap.NewProductionConfig()
	cc.DisableCaller = true
	cc.DisableStacktrace = true
	cc.Encoding = encoding
	cc.Level = zap.NewAtomicLevelAt(level)
	cc.Sampling = nil
	cc.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	cc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	if term.IsTerminal(int(os.Stdout.Fd())) {
		cc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		cc.EncoderConfig.EncodeTime = func(time.Time, zapcore.PrimitiveArrayEncoder) {}
	}

	return cc.Build()
}
