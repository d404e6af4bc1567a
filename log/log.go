package log

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var atom = zap.NewAtomicLevel()
var sugar *zap.SugaredLogger

func init() {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	logger := zap.New(zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.Lock(os.Stdout),
		atom,
	))
	sugar = logger.Sugar()
}

func SetLevel(loglevel string) {
	var level zapcore.Level
	switch loglevel {
	case "debug":
		level = zap.DebugLevel
	case "info":
		level = zap.InfoLevel
	case "error":
		level = zap.ErrorLevel
	default:
		level = zap.InfoLevel
	}
	atom.SetLevel(level)
}

func Errorf(format string, args ...interface{}) {
	sugar.Errorf(format, args...)
}

func Debugf(format string, args ...interface{}) {
	sugar.Debugf(format, args...)
}

func Warnf(format string, args ...interface{}) {
	sugar.Warnf(format, args...)
}

func Infof(format string, args ...interface{}) {
	sugar.Infof(format, args...)
}

func Printf(format string, args ...interface{}) {
	sugar.Infof(format, args...)
}

func Info(args ...interface{}) {
	sugar.Info(args...)
}

func Error(args ...interface{}) {
	sugar.Error(args...)
}

func Debug(args ...interface{}) {
	sugar.Debug(args...)
}

func Sync() {
	_ = sugar.Sync()
}
