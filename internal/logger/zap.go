package logger

import (
	"os"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"gitlab.com/nunet/nosana-node-monitor/internal/config"
)

type Logger struct {
	*zap.Logger
}

func (l *Logger) init() error {
	var err error
	if _, debug := os.LookupEnv("NOSANA_DEBUG"); debug || config.GetConfig().General.Debug {
		zapConfig := zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		l.Logger, err = zapConfig.Build()
	} else {
		l.Logger, err = zap.NewProduction()
	}

	return err
}

// New takes in a package to initialize the new Logger in.
func New(pkg string) *Logger {
	Log := &Logger{}
	if err := Log.init(); err != nil {
		panic(err)
	}

	Log.Logger = Log.Logger.With(
		zap.String("package", pkg),
	)

	return Log
}

// OtelZapLogger wraps the package logger so log calls made with a context
// carry the active trace and span ids.
func OtelZapLogger(pkg string) otelzap.Logger {
	return *otelzap.New(New(pkg).Logger, otelzap.WithMinLevel(zapcore.InfoLevel))
}
