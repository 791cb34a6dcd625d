// Package proxy contiene los DTOs de los endpoints /api.
package proxy

import "encoding/json"

// BatchRequest es el body de POST /api/video/batch.
type BatchRequest struct {
	IDs []string `json:"ids"`
}

// BatchItem es un resultado exitoso del batch.
type BatchItem struct {
	ID      string          `json:"id"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// BatchError es un id fallido del batch.
type BatchError struct {
	ID      string `json:"id"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// BatchResult agrupa ambos arrays en orden de entrada.
type BatchResult struct {
	Data   []BatchItem
	Errors []BatchError
}

// BatchResponse es la respuesta JSON del batch.
type BatchResponse struct {
	Code    int          `json:"code"`
	Message string       `json:"message"`
	Data    []BatchItem  `json:"data"`
	Errors  []BatchError `json:"errors"`
}
