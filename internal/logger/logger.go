package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lkarthik76/ddnd/internal/models"
)

const serviceName = "ddnd"

// New builds the daemon logger from the log section of cfg. Debug mode
// forces the debug level regardless of log.level; an empty level means info.
func New(cfg *models.Config, version string) (*zap.Logger, error) {
	return build(cfg, version, zapcore.Lock(os.Stdout))
}

// Level resolves the effective level for cfg
func Level(cfg *models.Config) (zapcore.Level, error) {
	if cfg.Debug {
		return zapcore.DebugLevel, nil
	}
	if cfg.Log.Level == "" {
		return zapcore.InfoLevel, nil
	}
	level, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q: %v", cfg.Log.Level, err)
	}
	return level, nil
}

func build(cfg *models.Config, version string, out zapcore.WriteSyncer) (*zap.Logger, error) {
	level, err := Level(cfg)
	if err != nil {
		return nil, err
	}

	var encoder zapcore.Encoder
	switch cfg.Log.Format {
	case "console":
		encoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	case "", "json":
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.TimeKey = "timestamp"
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encCfg)
	default:
		return nil, fmt.Errorf("invalid log format %q", cfg.Log.Format)
	}

	opts := []zap.Option{zap.ErrorOutput(zapcore.Lock(os.Stderr))}
	if cfg.Debug {
		opts = append(opts, zap.AddCaller())
	}

	fields := []zap.Field{zap.String("service_name", serviceName)}
	if version != "" {
		fields = append(fields, zap.String("version", version))
	}
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		fields = append(fields, zap.String("hostname", hostname))
	}

	core := zapcore.NewCore(encoder, out, zap.NewAtomicLevelAt(level))
	return zap.New(core, opts...).With(fields...), nil
}
