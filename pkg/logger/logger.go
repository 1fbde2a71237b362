package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process-wide zap logger. The level comes from
// configuration; an unknown value falls back to info.
func NewLogger(level string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}

	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var parsed zapcore.Level
	if err := parsed.UnmarshalText([]byte(level)); err == nil {
		config.Level.SetLevel(parsed)
	}

	return config.Build()
}
