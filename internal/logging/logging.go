package logging

import (
	"fmt"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Setup builds the application logger. Output goes to stdout and, when
// toFile is set, to app.log as well.
func Setup(level string, toFile bool) (*zap.SugaredLogger, error) {
	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}

	config := zap.NewProductionConfig()
	config.OutputPaths = []string{"stdout"}
	if toFile {
		config.OutputPaths = append(config.OutputPaths, "app.log")
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}

	return logger.Sugar(), nil
}

type gocronLogger struct {
	sugar *zap.SugaredLogger
}

// Gocron adapts sugar to the scheduler's logger interface.
func Gocron(sugar *zap.SugaredLogger) gocron.Logger {
	return &gocronLogger{sugar: sugar.Named("scheduler")}
}

func (l *gocronLogger) Debug(msg string, args ...any) {
	l.sugar.Debugw(msg, args...)
}

func (l *gocronLogger) Info(msg string, args ...any) {
	l.sugar.Infow(msg, args...)
}

func (l *gocronLogger) Warn(msg string, args ...any) {
	l.sugar.Warnw(msg, args...)
}

func (l *gocronLogger) Error(msg string, args ...any) {
	l.sugar.Errorw(msg, args...)
}
