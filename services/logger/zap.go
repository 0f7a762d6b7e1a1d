package logsvc

import (
	"os"
	"strings"

	"github.com/rollbar/rollbar-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/greesoft/canteen/core"
)

func levelFromString(l string) zapcore.Level {
	switch strings.ToLower(l) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// NewZapLogger builds the process logger: JSON on stdout in production, colored console output otherwise.
func NewZapLogger(conf *core.Config) (*zap.Logger, error) {
	lvl := levelFromString(conf.Log.Level)
	if conf.Debug && !conf.Log.JSON {
		c := zap.NewDevelopmentConfig()
		c.Level = zap.NewAtomicLevelAt(lvl)
		c.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return c.Build(zap.AddCallerSkip(1))
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	zc := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(os.Stdout), lvl)
	return zap.New(zc, zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel)).
		With(zap.String("app", conf.AppName), zap.String("env", conf.Env), zap.String("build", conf.Build)), nil
}

// NewNopLogger discards every event. Used by tests and one-shot commands.
func NewNopLogger() *RollbarLogger {
	rollbar.SetEnabled(false)
	return &RollbarLogger{zl: zap.NewNop().Sugar()}
}
