package middlewares

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/dropDatabas3/rpcgate/internal/rpc"
)

// Valores de RequestInfo.Cache
const (
	CacheHit    = "HIT"
	CacheMiss   = "MISS"
	CacheBypass = "BYPASS"
)

// RequestInfo acumula lo que los middlewares internos averiguan del request
// para que los externos (métricas, logs) lo lean cuando la respuesta vuelve.
// Lo crea WithRequestID; los demás middlewares lo completan.
type RequestInfo struct {
	ID     string
	Call   *rpc.Call
	Reject string // code del rechazo, vacío si llegó al nodo
	Cache  string
}

type ctxKey struct{}

func withInfo(ctx context.Context, info *RequestInfo) context.Context {
	return context.WithValue(ctx, ctxKey{}, info)
}

// GetInfo obtiene el RequestInfo del contexto. Nunca retorna nil: sin
// WithRequestID retorna uno vacío descartable.
func GetInfo(ctx context.Context) *RequestInfo {
	if v := ctx.Value(ctxKey{}); v != nil {
		if info, ok := v.(*RequestInfo); ok {
			return info
		}
	}
	return &RequestInfo{}
}

// clientIP extrae la IP del cliente, considerando proxies.
func clientIP(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		parts := strings.Split(xf, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
