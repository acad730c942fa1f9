// Package obslog builds the engine's process-wide structured logger.
//
// Grounded on imReese-NexusKV/pkg/log/hotreload.go's SetupLoggerFromConfig:
// same JSON encoder config and lumberjack-backed rotating file sink; the
// hot-reload handler itself is dropped (nothing in spec.md's scope reloads
// logger config at runtime).
package obslog

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"enginecore/config"
)

// New builds a zap.Logger writing JSON-encoded, rotated log files under
// cfg.RunDir.
func New(cfg config.LogConfig) (*zap.Logger, error) {
	if err := os.MkdirAll(cfg.RunDir, 0755); err != nil {
		return nil, fmt.Errorf("obslog: creating run dir: %w", err)
	}

	sink := &lumberjack.Logger{
		Filename:  filepath.Join(cfg.RunDir, "enginecore.log"),
		MaxSize:   cfg.MaxSize,
		MaxBackups: cfg.MaxBackup,
		MaxAge:    cfg.MaxAge,
		Compress:  true,
		LocalTime: true,
	}

	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(sink), level)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}
