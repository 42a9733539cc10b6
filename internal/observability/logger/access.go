package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Salidas soportadas por el access log.
const (
	AccessOutputStdout = "stdout"
	AccessOutputFile   = "file"
	AccessOutputNone   = "none"
)

// AccessConfig configura el access log.
type AccessConfig struct {
	// Output: "stdout", "file" o "none". Vacío equivale a "none".
	Output string
	// Filename del archivo cuando Output es "file".
	Filename string
	// MaxSizeMB tamaño antes de rotar.
	MaxSizeMB int
	// MaxBackups cantidad de archivos rotados a conservar.
	MaxBackups int
	// Compress comprime (gzip) los archivos rotados.
	Compress bool
}

// AccessLog escribe una línea por request proxied.
type AccessLog struct {
	l      *zap.Logger
	closer io.Closer
}

// AccessEntry es la línea del access log.
type AccessEntry struct {
	Time      time.Time
	RequestID string
	APIKey    string
	Status    int
	Latency   time.Duration
	Body      string
	Bytes     int
	Cache     string
}

// NewAccessLog construye el access log según cfg. Con output "none" retorna
// un AccessLog que descarta todo.
func NewAccessLog(cfg AccessConfig) (*AccessLog, error) {
	var ws zapcore.WriteSyncer
	var closer io.Closer

	switch strings.ToLower(strings.TrimSpace(cfg.Output)) {
	case AccessOutputNone, "":
		return &AccessLog{l: zap.NewNop()}, nil
	case AccessOutputStdout:
		ws = zapcore.Lock(os.Stdout)
	case AccessOutputFile:
		if cfg.Filename == "" {
			return nil, fmt.Errorf("access log: file output requires a filename")
		}
		lj := &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   cfg.Compress,
		}
		ws = zapcore.AddSync(lj)
		closer = lj
	default:
		return nil, fmt.Errorf("access log: unknown output %q", cfg.Output)
	}
	return newAccessLog(ws, closer), nil
}

// NewAccessLogWriter crea un access log sobre un writer arbitrario (tests).
func NewAccessLogWriter(w io.Writer) *AccessLog {
	return newAccessLog(zapcore.AddSync(w), nil)
}

func newAccessLog(ws zapcore.WriteSyncer, closer io.Closer) *AccessLog {
	ec := zapcore.EncoderConfig{
		TimeKey:        "ts",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(ec), ws, zapcore.InfoLevel)
	return &AccessLog{l: zap.New(core), closer: closer}
}

// Log escribe la entrada. La API key se enmascara.
func (a *AccessLog) Log(e AccessEntry) {
	if a == nil || a.l == nil {
		return
	}
	if ce := a.l.Check(zapcore.InfoLevel, "access"); ce != nil {
		if !e.Time.IsZero() {
			ce.Time = e.Time
		}
		ce.Write(
			RequestID(e.RequestID),
			APIKey(e.APIKey),
			Status(e.Status),
			zap.Duration("latency", e.Latency),
			zap.String("body", e.Body),
			Bytes(e.Bytes),
			CacheStatus(e.Cache),
		)
	}
}

// Close flushea y cierra el archivo si corresponde.
func (a *AccessLog) Close() error {
	if a == nil || a.l == nil {
		return nil
	}
	_ = a.l.Sync()
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}
