package middlewares

import (
	"net/http"

	"github.com/dropDatabas3/rpcgate/internal/access"
	"github.com/dropDatabas3/rpcgate/internal/rpc"
)

// WithAccess aplica la decisión del access controller. Solo las llamadas
// autorizadas siguen hacia el cache y el nodo.
func WithAccess(ctrl *access.Controller) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := ctrl.Authorize(rpc.CallFrom(r.Context())); err != nil {
				reject(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
