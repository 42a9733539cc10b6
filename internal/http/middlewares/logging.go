package middlewares

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/dropDatabas3/rpcgate/internal/observability/logger"
	"github.com/dropDatabas3/rpcgate/internal/rpc"
	"github.com/dropDatabas3/rpcgate/internal/util"
)

// =================================================================================
// STATUS RECORDER
// =================================================================================

// statusRecorder captura el status code y bytes escritos de la respuesta.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.wroteHeader {
		return // Evitar llamadas múltiples
	}
	s.status = code
	s.wroteHeader = true
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if !s.wroteHeader {
		s.status = http.StatusOK
		s.wroteHeader = true
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

func (s *statusRecorder) code() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}

// =================================================================================
// LOGGING MIDDLEWARE
// =================================================================================

// WithLogging escribe una línea en el access log por request y registra en el
// log de aplicación los requests que terminan en error. access puede ser nil.
func WithLogging(access *logger.AccessLog) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}

			next.ServeHTTP(rec, r)

			dur := time.Since(start)
			info := GetInfo(r.Context())
			status := rec.code()

			access.Log(logger.AccessEntry{
				Time:      start,
				RequestID: info.ID,
				APIKey:    keyOf(info.Call),
				Status:    status,
				Latency:   dur,
				Body:      maskedCall(info.Call),
				Bytes:     rec.bytes,
				Cache:     info.Cache,
			})

			log := logger.From(r.Context())
			fields := []logger.Field{
				logger.Method(r.Method),
				logger.Path(r.URL.Path),
				logger.RPCMethod(methodOf(info.Call)),
				logger.Status(status),
				logger.DurationMs(dur.Milliseconds()),
			}
			switch {
			case status >= 500:
				log.Error("request failed", fields...)
			case status >= 400:
				log.Debug("request rejected", append(fields, logger.Reason(info.Reject))...)
			default:
				log.Debug("request completed", append(fields, logger.CacheStatus(info.Cache))...)
			}
		})
	}
}

func keyOf(c *rpc.Call) string {
	if c == nil {
		return ""
	}
	return c.Key
}

func methodOf(c *rpc.Call) string {
	if c == nil {
		return ""
	}
	return c.Method
}

// maskedCall serializa la llamada para el access log con la key enmascarada.
func maskedCall(c *rpc.Call) string {
	if c == nil {
		return "null"
	}
	cp := *c
	cp.Key = util.MaskKey(cp.Key)
	b, err := json.Marshal(cp)
	if err != nil {
		return ""
	}
	return string(b)
}
