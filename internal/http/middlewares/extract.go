package middlewares

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	httperrors "github.com/dropDatabas3/rpcgate/internal/http/errors"
	"github.com/dropDatabas3/rpcgate/internal/rpc"
)

// DefaultBodyLimit es el tamaño máximo de body aceptado (2 MiB).
const DefaultBodyLimit int64 = 2 << 20

// WithExtract lee el body una sola vez (hasta limit bytes), extrae la llamada
// RPC y la deja en el contexto. El body se repone para el resto de la cadena.
// Un body que no parsea no es un error acá: el access controller lo rechaza.
func WithExtract(limit int64) Middleware {
	if limit <= 0 {
		limit = DefaultBodyLimit
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body []byte
			if r.Body != nil && r.Body != http.NoBody {
				var err error
				body, err = io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
				_ = r.Body.Close()
				if err != nil {
					var maxErr *http.MaxBytesError
					if errors.As(err, &maxErr) {
						reject(w, r, err)
						return
					}
					reject(w, r, httperrors.ErrBadRequest.WithCause(err))
					return
				}
			}

			p := rpc.Parse(body)
			GetInfo(r.Context()).Call = p.Call

			r.Body = io.NopCloser(bytes.NewReader(body))
			r.ContentLength = int64(len(body))
			next.ServeHTTP(w, r.WithContext(rpc.WithPayload(r.Context(), p)))
		})
	}
}
