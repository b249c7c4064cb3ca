package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger: debug-level JSON into logPath, info-level
// console output on stderr. An empty logPath or an unwritable directory
// degrades to console-only logging instead of failing startup.
func New(logPath string, verbose bool) *zap.Logger {
	consoleLevel := zapcore.InfoLevel
	if verbose {
		consoleLevel = zapcore.DebugLevel
	}

	encoderCfg := zap.NewDevelopmentEncoderConfig()
	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.Lock(os.Stderr),
		consoleLevel,
	)

	cores := []zapcore.Core{consoleCore}
	if logPath != "" {
		if fileCore, ok := fileCore(logPath); ok {
			cores = append(cores, fileCore)
		}
	}

	return zap.New(zapcore.NewTee(cores...))
}

func fileCore(logPath string) (zapcore.Core, bool) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0o700); err != nil {
		return nil, false
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, false
	}

	return zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(f),
		zapcore.DebugLevel,
	), true
}
