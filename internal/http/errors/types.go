package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/dropDatabas3/biliproxy/internal/bilibili"
	"github.com/dropDatabas3/biliproxy/internal/wbi"
)

// AppError es el error estándar de la API del proxy.
// Code es negativo para errores locales; los errores de negocio del upstream
// conservan su code original.
type AppError struct {
	Code       int             `json:"code"`
	Message    string          `json:"message"`
	Detail     string          `json:"detail,omitempty"`
	Stale      json.RawMessage `json:"-"` // último data bueno conocido, si lo hay
	HTTPStatus int             `json:"-"`
	Err        error           `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// New crea un AppError.
func New(status, code int, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status}
}

// WithDetail devuelve una COPIA con detalle (validaciones).
func (e *AppError) WithDetail(detail string) *AppError {
	n := *e
	n.Detail = detail
	return &n
}

// WithCause devuelve una COPIA con la causa original.
func (e *AppError) WithCause(err error) *AppError {
	n := *e
	n.Err = err
	return &n
}

// WithStale devuelve una COPIA que adjunta un snapshot viejo del recurso.
func (e *AppError) WithStale(data []byte) *AppError {
	n := *e
	n.Stale = json.RawMessage(data)
	return &n
}

// FromError convierte errores de otras capas en AppError.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}

	if ue, ok := bilibili.AsUpstream(err); ok {
		switch ue.Kind {
		case bilibili.KindCode:
			msg := ue.Message
			if msg == "" {
				msg = ErrUpstreamRejected.Message
			}
			return &AppError{Code: ue.Code, Message: msg, HTTPStatus: http.StatusBadGateway, Err: err}
		case bilibili.KindTimeout:
			return ErrUpstreamTimeout.WithCause(err)
		default:
			return ErrUpstreamUnavailable.WithCause(err)
		}
	}

	switch {
	case stderrors.Is(err, wbi.ErrKeysUnavailable):
		return ErrKeysUnavailable.WithCause(err)
	case stderrors.Is(err, bilibili.ErrInvalidID):
		return ErrInvalidParameter.WithCause(err)
	case stderrors.Is(err, context.DeadlineExceeded):
		return ErrUpstreamTimeout.WithCause(err)
	}
	return ErrInternalServerError.WithCause(err)
}

// =================================================================================
// ERRORES PREDEFINIDOS
// =================================================================================

var (
	ErrBadRequest = &AppError{
		Code:       -400,
		Message:    "La solicitud contiene sintaxis inválida o parámetros faltantes.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrInvalidJSON = &AppError{
		Code:       -400,
		Message:    "El cuerpo de la solicitud no es un JSON válido.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrInvalidParameter = &AppError{
		Code:       -400,
		Message:    "Uno de los parámetros es inválido.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrBatchTooLarge = &AppError{
		Code:       -413,
		Message:    "El batch excede la cantidad máxima de ids.",
		HTTPStatus: http.StatusRequestEntityTooLarge,
	}
)

var (
	ErrNotFound = &AppError{
		Code:       -404,
		Message:    "El recurso solicitado no fue encontrado.",
		HTTPStatus: http.StatusNotFound,
	}

	ErrMethodNotAllowed = &AppError{
		Code:       -405,
		Message:    "Método HTTP no permitido para esta ruta.",
		HTTPStatus: http.StatusMethodNotAllowed,
	}

	ErrRateLimitExceeded = &AppError{
		Code:       -429,
		Message:    "Demasiadas solicitudes. Intente más tarde.",
		HTTPStatus: http.StatusTooManyRequests,
	}
)

var (
	ErrInternalServerError = &AppError{
		Code:       -500,
		Message:    "Error interno del servidor.",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrUpstreamUnavailable = &AppError{
		Code:       -502,
		Message:    "El upstream no está disponible.",
		HTTPStatus: http.StatusBadGateway,
	}

	ErrUpstreamRejected = &AppError{
		Code:       -502,
		Message:    "El upstream rechazó la solicitud.",
		HTTPStatus: http.StatusBadGateway,
	}

	ErrKeysUnavailable = &AppError{
		Code:       -503,
		Message:    "Las claves de firma WBI no están disponibles.",
		HTTPStatus: http.StatusServiceUnavailable,
	}

	ErrUpstreamTimeout = &AppError{
		Code:       -504,
		Message:    "El upstream no respondió a tiempo.",
		HTTPStatus: http.StatusGatewayTimeout,
	}
)
