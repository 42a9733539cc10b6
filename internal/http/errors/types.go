package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/dropDatabas3/rpcgate/internal/access"
)

// AppError es un rechazo del gateway. Code se usa como label de métricas y en
// logs; al cliente solo le llega Message como texto plano.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error // causa original, solo para logs
}

// Error implementa la interfaz error
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap permite acceder al error original
func (e *AppError) Unwrap() error {
	return e.Err
}

// New crea un nuevo AppError
func New(status int, code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: status,
	}
}

// WithCause agrega el error original (causa).
// Devuelve una COPIA para no mutar las variables base.
func (e *AppError) WithCause(err error) *AppError {
	newErr := *e
	newErr.Err = err
	return &newErr
}

// FromError convierte un error de cualquier capa en un AppError.
// Los sentinels de access se mapean a su rechazo; un body que excede el
// límite es 413; cualquier otro error es 500.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	switch {
	case stderrors.Is(err, access.ErrMethodNotAvailable):
		return ErrMethodNotAvailable.WithCause(err)
	case stderrors.Is(err, access.ErrInvalidKey):
		return ErrInvalidKey.WithCause(err)
	case stderrors.Is(err, access.ErrNotStarted):
		return ErrNotStarted.WithCause(err)
	}
	var maxErr *http.MaxBytesError
	if stderrors.As(err, &maxErr) {
		return ErrBodyTooLarge.WithCause(err)
	}
	return ErrInternalServerError.WithCause(err)
}

// =================================================================================
// RECHAZOS DEL GATEWAY
// =================================================================================

var (
	ErrMethodNotAvailable = &AppError{
		Code:       "method_not_available",
		Message:    "method not available",
		HTTPStatus: http.StatusForbidden,
	}

	ErrInvalidKey = &AppError{
		Code:       "invalid_key",
		Message:    "API key is invalid",
		HTTPStatus: http.StatusForbidden,
	}

	ErrNotStarted = &AppError{
		Code:       "not_started",
		Message:    "proxy is not started",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrBadRequest = &AppError{
		Code:       "bad_request",
		Message:    "failed to read request body",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrBodyTooLarge = &AppError{
		Code:       "body_too_large",
		Message:    "request entity too large",
		HTTPStatus: http.StatusRequestEntityTooLarge,
	}

	ErrTooManyRequests = &AppError{
		Code:       "rate_limited",
		Message:    "Too many requests, please try again later.",
		HTTPStatus: http.StatusTooManyRequests,
	}
)

// =================================================================================
// ERRORES DE SERVIDOR / UPSTREAM
// =================================================================================

var (
	ErrInternalServerError = &AppError{
		Code:       "internal",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrBadGateway = &AppError{
		Code:       "upstream",
		Message:    "proxy error",
		HTTPStatus: http.StatusBadGateway,
	}

	ErrServiceUnavailable = &AppError{
		Code:       "unavailable",
		Message:    "service unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
	}
)
