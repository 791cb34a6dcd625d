// Package health contiene el DTO de GET /health.
package health

import "time"

// HealthResponse es la respuesta de GET /health.
type HealthResponse struct {
	Code          int       `json:"code"`
	Message       string    `json:"message"`
	Status        string    `json:"status"` // "ok" | "degraded"
	Version       string    `json:"version,omitempty"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	CacheKeys     int64     `json:"cache_keys"` // entradas de resultado, sin copias stale
	CacheStale    int64     `json:"cache_stale_keys"`
	CacheDriver   string    `json:"cache_driver"`
	WbiReady      bool      `json:"wbi_ready"`
	Timestamp     time.Time `json:"timestamp"`
}
