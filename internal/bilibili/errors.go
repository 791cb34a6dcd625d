package bilibili

import (
	"errors"
	"fmt"
)

// ErrorKind clasifica la falla del upstream.
type ErrorKind string

const (
	KindTransport ErrorKind = "transport" // red, DNS, conexión
	KindTimeout   ErrorKind = "timeout"
	KindStatus    ErrorKind = "status" // HTTP no-2xx
	KindDecode    ErrorKind = "decode" // body no es el JSON esperado
	KindCode      ErrorKind = "code"   // code embebido != 0
)

// Códigos del upstream que el proxy reconoce.
const (
	CodeOK          = 0
	CodeNotLoggedIn = -101
	CodeRiskControl = -352 // firma rechazada / control de riesgo
	CodeNotFound    = -404
)

// UpstreamError describe una respuesta fallida del upstream.
type UpstreamError struct {
	Kind       ErrorKind
	Path       string
	HTTPStatus int
	Code       int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	switch e.Kind {
	case KindCode:
		return fmt.Sprintf("bilibili %s: code=%d message=%q", e.Path, e.Code, e.Message)
	case KindStatus:
		return fmt.Sprintf("bilibili %s: http status %d", e.Path, e.HTTPStatus)
	default:
		return fmt.Sprintf("bilibili %s: %s: %v", e.Path, e.Kind, e.Err)
	}
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// AsUpstream es un atajo para errors.As.
func AsUpstream(err error) (*UpstreamError, bool) {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}
