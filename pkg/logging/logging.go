package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"touradmin/pkg/config"
)

// New builds the process logger: colored development output outside prod,
// JSON production output in prod. LOG_LEVEL overrides the default level.
func New(cfg config.Config) (*zap.Logger, error) {
	var zc zap.Config
	if cfg.IsDevelopment() {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zc = zap.NewProductionConfig()
	}

	level := zapcore.InfoLevel
	if cfg.LogLevel != "" {
		if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
			level = zapcore.InfoLevel
		}
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	return zc.Build()
}

// OrNop lets components take an optional logger.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// Mask keeps the first few characters of a secret for diagnostics.
func Mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 6 {
		return "***"
	}
	return secret[:6] + "***"
}
