package jobmanager

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// newLogger builds the structured log sink for a Manager: stdout by
// default, or a lumberjack-rotated file when cfg.LogFilePrefix is set
// (spec §4.9's "log sink (stdout or rotating file)").
func newLogger(cfg Config) *zap.Logger {
	var ws zapcore.WriteSyncer
	if cfg.LogFilePrefix == "" {
		ws = zapcore.AddSync(os.Stdout)
	} else {
		ws = zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.LogFilePrefix + ".log",
			MaxSize:    cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
			MaxAge:     cfg.LogMaxAgeDays,
			Compress:   cfg.LogCompress,
		})
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), ws, zap.InfoLevel)
	return zap.New(core)
}
