package errors

import (
	"encoding/json"
	"net/http"
)

// WriteError escribe el rechazo como texto plano, igual que lo espera el
// cliente del nodo. Los errores que no son *AppError pasan por FromError.
func WriteError(w http.ResponseWriter, err error) {
	appErr := FromError(err)
	if appErr == nil {
		appErr = ErrInternalServerError
	}
	h := w.Header()
	h.Del("Content-Length")
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(appErr.HTTPStatus)
	_, _ = w.Write([]byte(appErr.Message))
}

// WriteJSON: respuesta JSON estándar (endpoints de administración).
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
