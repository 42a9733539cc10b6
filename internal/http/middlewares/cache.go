package middlewares

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/dropDatabas3/rpcgate/internal/cache"
	"github.com/dropDatabas3/rpcgate/internal/metrics"
	"github.com/dropDatabas3/rpcgate/internal/observability/logger"
	"github.com/dropDatabas3/rpcgate/internal/rpc"
)

// DefaultMaxEntryBytes es el tamaño máximo de una respuesta cacheable (1 MiB).
const DefaultMaxEntryBytes = 1 << 20

// CacheConfig configura el middleware de cache de respuestas.
type CacheConfig struct {
	Store         cache.Store
	Policy        *cache.Policy
	MaxEntryBytes int
}

// WithCache sirve desde el cache las llamadas a métodos cacheables y guarda
// las respuestas exitosas del nodo. Una respuesta se guarda solo si es 2xx,
// es JSON sin "error" y el cliente no cortó antes de terminar.
func WithCache(cfg CacheConfig) Middleware {
	if cfg.Store == nil || !cfg.Policy.Enabled() {
		return nil
	}
	if cfg.MaxEntryBytes <= 0 {
		cfg.MaxEntryBytes = DefaultMaxEntryBytes
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := rpc.PayloadFrom(r.Context())
			if p == nil || p.Call == nil {
				next.ServeHTTP(w, r)
				return
			}
			ttl, ok := cfg.Policy.TTL(p.Call.Method)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			info := GetInfo(r.Context())
			log := logger.From(r.Context())
			key := cacheKey(p)

			entry, err := cfg.Store.Get(r.Context(), key)
			if err == nil && entry.ExpiresAt.IsZero() {
				// una entrada sin vencimiento (p.ej. un PERSIST en redis) no se sirve:
				// se borra y se refresca desde el nodo con el TTL del método
				if derr := cfg.Store.Delete(r.Context(), key); derr != nil {
					log.Warn("cache delete failed", logger.Err(derr))
				}
				err = cache.ErrNotFound
			}
			switch {
			case err == nil:
				metrics.CacheLookups.WithLabelValues("hit").Inc()
				info.Cache = CacheHit
				writeCached(w, entry)
				return
			case !cache.IsNotFound(err):
				// store caído: se sigue hacia el nodo sin cachear
				log.Warn("cache lookup failed", logger.Err(err))
				metrics.CacheLookups.WithLabelValues("error").Inc()
				info.Cache = CacheBypass
				next.ServeHTTP(w, r)
				return
			}

			metrics.CacheLookups.WithLabelValues("miss").Inc()
			info.Cache = CacheMiss
			w.Header().Set("X-Cache", CacheMiss)
			// el body se guarda tal cual; sin compresión del nodo
			r.Header.Del("Accept-Encoding")

			cw := &captureWriter{ResponseWriter: w, limit: cfg.MaxEntryBytes}
			next.ServeHTTP(cw, r)

			if r.Context().Err() != nil || !cw.cacheable() {
				metrics.CacheLookups.WithLabelValues("skipped").Inc()
				return
			}
			if err := cfg.Store.Set(r.Context(), key, cw.buf.Bytes(), ttl); err != nil {
				log.Warn("cache store failed", logger.Err(err))
				return
			}
			metrics.CacheLookups.WithLabelValues("stored").Inc()
		})
	}
}

// cacheKey separa las llamadas en batch: el nodo responde un array y no
// debe servirse a una llamada simple.
func cacheKey(p *rpc.Payload) string {
	k := cache.Key(p.Call)
	if p.Batched {
		return "batch:" + k
	}
	return k
}

func writeCached(w http.ResponseWriter, e cache.Entry) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Content-Length", strconv.Itoa(len(e.Body)))
	h.Set("X-Cache", CacheHit)
	if remaining := e.Remaining(time.Now()); remaining > 0 {
		h.Set("Cache-Control", "max-age="+strconv.Itoa(int(math.Ceil(remaining.Seconds()))))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(e.Body)
}

// =================================================================================
// CAPTURE WRITER
// =================================================================================

// captureWriter pasa la respuesta al cliente y en paralelo guarda una copia
// hasta limit bytes. Si la respuesta excede el límite deja de copiar.
type captureWriter struct {
	http.ResponseWriter
	status   int
	buf      bytes.Buffer
	limit    int
	overflow bool
}

func (c *captureWriter) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *captureWriter) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	if !c.overflow {
		if c.buf.Len()+len(b) > c.limit {
			c.overflow = true
			c.buf.Reset()
		} else {
			c.buf.Write(b)
		}
	}
	return c.ResponseWriter.Write(b)
}

func (c *captureWriter) Flush() {
	if f, ok := c.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (c *captureWriter) Unwrap() http.ResponseWriter {
	return c.ResponseWriter
}

func (c *captureWriter) cacheable() bool {
	if c.overflow || c.status < 200 || c.status > 299 || c.buf.Len() == 0 {
		return false
	}
	if c.Header().Get("Content-Encoding") != "" {
		return false
	}
	return isSuccessBody(c.buf.Bytes())
}

type rpcResponse struct {
	Error json.RawMessage `json:"error"`
}

// isSuccessBody: JSON válido sin "error" (o con error null). En un batch
// ningún elemento puede traer error.
func isSuccessBody(body []byte) bool {
	b := bytes.TrimSpace(body)
	if len(b) == 0 {
		return false
	}
	if b[0] == '[' {
		var batch []rpcResponse
		if err := json.Unmarshal(b, &batch); err != nil {
			return false
		}
		for _, item := range batch {
			if !isNull(item.Error) {
				return false
			}
		}
		return true
	}
	var resp rpcResponse
	if err := json.Unmarshal(b, &resp); err != nil {
		return false
	}
	return isNull(resp.Error)
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}
