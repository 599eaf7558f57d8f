package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const envProduction = "production"

// New creates the process logger. Production writes JSON at info level,
// every other environment writes colored console output at debug level.
// Output always goes to stdout for container compatibility.
func New(env string) *zap.Logger {
	return build(env, zapcore.Lock(os.Stdout))
}

func build(env string, sink zapcore.WriteSyncer) *zap.Logger {
	core := zapcore.NewCore(newEncoder(env), sink, minLevel(env))

	return zap.New(core,
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.ErrorOutput(zapcore.Lock(os.Stderr)),
	)
}

func newEncoder(env string) zapcore.Encoder {
	if env == envProduction {
		cfg := zap.NewProductionEncoderConfig()
		cfg.TimeKey = "timestamp"
		cfg.MessageKey = "message"
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		return zapcore.NewJSONEncoder(cfg)
	}

	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(cfg)
}

func minLevel(env string) zapcore.Level {
	if env == envProduction {
		return zapcore.InfoLevel
	}
	return zapcore.DebugLevel
}
