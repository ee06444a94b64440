package logger

import (
	"go.uber.org/zap"
)

var Log *zap.Logger

// Init builds the process logger. Verbosity 0 logs at info, 1 and above at
// debug.
func Init(verbosity int) *zap.Logger {
	lvl := zap.InfoLevel
	if verbosity >= 1 {
		lvl = zap.DebugLevel
	}

	cfg := zap.Config{
		Encoding:         "json",
		Level:            zap.NewAtomicLevelAt(lvl),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig:    zap.NewProductionEncoderConfig(),
	}

	l, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	Log = l
	return l
}
