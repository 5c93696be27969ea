package logging

import (
	"os"

	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const accessLoggerName = "access"

var Logger *zap.Logger

func init() {
	var err error

	Logger, err = getDoubleLogger()
	if err != nil {
		zap.NewExample().Fatal("Could not initialize logger", zap.String("error", err.Error()))
	}
}

// Access returns the logger used for per-request summaries.
func Access() *zap.Logger {
	return Logger.Named(accessLoggerName)
}

func getDoubleLogger() (*zap.Logger, error) {
	level := resolveLevel(config.Conf.LogLevel, config.Conf.Debug)

	consoleEncoderConfig := zap.NewDevelopmentEncoderConfig()
	consoleEncoderConfig.ConsoleSeparator = "  "
	consoleEncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(consoleEncoderConfig),
		zapcore.AddSync(os.Stdout),
		level,
	)

	if config.Conf.LogFilePath == "" {
		return zap.New(consoleCore, zap.AddCaller()), nil
	}

	productionEncoderConfig := zap.NewProductionEncoderConfig()
	productionEncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	zapConfig := &zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       false,
		DisableCaller:     false,
		DisableStacktrace: false,
		Encoding:          "json",
		EncoderConfig:     productionEncoderConfig,
		OutputPaths:       []string{config.Conf.LogFilePath},
	}

	fileLogger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}

	core := zapcore.NewTee(fileLogger.Core(), consoleCore)

	return zap.New(core, zap.AddCaller()), nil
}

func resolveLevel(raw string, debug bool) zapcore.Level {
	if debug {
		return zapcore.DebugLevel
	}

	level, err := zapcore.ParseLevel(raw)
	if err != nil {
		zap.NewExample().Info("Invalid log level, using info level", zap.String("log_level", raw))

		return zapcore.InfoLevel
	}

	return level
}
