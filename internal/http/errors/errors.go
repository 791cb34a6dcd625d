// Package errors define el envelope de error de la API y cómo se escribe.
package errors

import (
	"encoding/json"
	"net/http"
)

// Response es el envelope común de todas las respuestas JSON:
// {code, message, data?, errors?, stale?}.
type Response struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Detail  string          `json:"detail,omitempty"`
	Data    any             `json:"data,omitempty"`
	Errors  any             `json:"errors,omitempty"`
	Stale   json.RawMessage `json:"stale,omitempty"`
}

// WriteError escribe el AppError correspondiente a err.
func WriteError(w http.ResponseWriter, err error) {
	appErr := FromError(err)
	if appErr == nil {
		appErr = ErrInternalServerError
	}
	WriteJSON(w, appErr.HTTPStatus, Response{
		Code:    appErr.Code,
		Message: appErr.Message,
		Detail:  appErr.Detail,
		Stale:   appErr.Stale,
	})
}

// WriteOK escribe {code:0, message:"ok", data}.
func WriteOK(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, Response{Code: 0, Message: "ok", Data: data})
}

// WriteJSON serializa v con el status dado.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
