package middlewares

import (
	"net/http"

	httperrors "github.com/dropDatabas3/rpcgate/internal/http/errors"
	"github.com/dropDatabas3/rpcgate/internal/metrics"
	"github.com/dropDatabas3/rpcgate/internal/observability/logger"
)

// reject corta el pipeline: cuenta el rechazo, lo anota en el RequestInfo y
// escribe la respuesta de texto plano.
func reject(w http.ResponseWriter, r *http.Request, err error) {
	appErr := httperrors.FromError(err)
	metrics.Rejections.WithLabelValues(appErr.Code).Inc()
	GetInfo(r.Context()).Reject = appErr.Code
	logger.From(r.Context()).Debug("request rejected",
		logger.Reason(appErr.Code),
		logger.Status(appErr.HTTPStatus),
	)
	httperrors.WriteError(w, appErr)
}
