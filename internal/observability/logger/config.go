package logger

import (
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config configura el logger de aplicación.
type Config struct {
	// Env define el entorno: "dev" (consola con colores) o "prod" (JSON).
	// Default: "dev"
	Env string

	// Level define el nivel mínimo de log: "debug", "info", "warn", "error".
	// Default: "info"
	Level string

	// ServiceName se agrega como campo "service" si no está vacío.
	ServiceName string

	// Version es la versión del binario.
	Version string

	// Output destino de los logs. Default: os.Stderr
	Output io.Writer
}

// build construye el logger según la configuración.
func build(cfg Config) *zap.Logger {
	level := zap.NewAtomicLevelAt(parseLevel(cfg.Level))

	var out io.Writer = os.Stderr
	if cfg.Output != nil {
		out = cfg.Output
	}

	opts := []zap.Option{zap.AddCaller()}
	var enc zapcore.Encoder
	if strings.ToLower(cfg.Env) == "prod" {
		enc = zapcore.NewJSONEncoder(prodEncoderConfig())
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	} else {
		enc = zapcore.NewConsoleEncoder(devEncoderConfig())
	}

	l := zap.New(zapcore.NewCore(enc, zapcore.AddSync(out), level), opts...)
	if cfg.ServiceName != "" {
		l = l.With(zap.String("service", cfg.ServiceName))
	}
	if cfg.Version != "" {
		l = l.With(zap.String("version", cfg.Version))
	}
	return l
}

func devEncoderConfig() zapcore.EncoderConfig {
	ec := zap.NewDevelopmentEncoderConfig()
	// Colores para el nivel
	ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	ec.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	ec.EncodeCaller = zapcore.ShortCallerEncoder
	return ec
}

func prodEncoderConfig() zapcore.EncoderConfig {
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.EncodeCaller = zapcore.ShortCallerEncoder
	return ec
}

// parseLevel convierte un string a zapcore.Level.
func parseLevel(lvl string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
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
