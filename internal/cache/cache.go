// Package cache provee el cache de resultados del proxy con soporte multi-backend.
//
// Soporta:
//   - Memory (in-process, go-cache con TTL; default)
//   - Redis (compartido entre réplicas)
//
// Los valores son snapshots JSON del upstream: idempotentes, last-writer-wins,
// sin refresh-on-read.
package cache

import (
	"context"
	"errors"
	"time"
)

// Client define las operaciones de cache.
type Client interface {
	// Get obtiene un valor. Retorna ErrNotFound si no existe o expiró.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set reemplaza el valor completo con el TTL dado, medido desde ahora.
	// Si ttl es 0 se usa el TTL default del driver.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete elimina una key.
	Delete(ctx context.Context, key string) error

	// Ping verifica la conexión.
	Ping(ctx context.Context) error

	// Close libera recursos.
	Close() error

	// Stats retorna estadísticas del cache.
	Stats(ctx context.Context) (Stats, error)
}

// StalePrefix marca las copias de respaldo con TTL largo que se devuelven
// junto a un error del upstream. Stats las cuenta aparte.
const StalePrefix = "stale:"

// Stats contiene estadísticas del cache.
type Stats struct {
	Driver     string
	// Keys cuenta solo entradas de resultado; StaleKeys las copias stale:.
	Keys       int64
	StaleKeys  int64
	UsedMemory string
	Hits       int64
	Misses     int64
}

// Config configuración para crear un cliente de cache.
type Config struct {
	Driver     string // "memory" | "redis"
	DefaultTTL time.Duration
	Addr       string
	Password   string
	DB         int
	Prefix     string // Prefijo para todas las keys
}

// ErrNotFound indica cache miss.
var ErrNotFound = errors.New("cache: key not found")

// IsNotFound verifica si el error es porque la key no existe.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// New crea un cliente de cache según la configuración.
func New(ctx context.Context, cfg Config) (Client, error) {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 5 * time.Minute
	}
	switch cfg.Driver {
	case "redis":
		return NewRedis(ctx, cfg)
	default:
		return NewMemory(cfg.Prefix, cfg.DefaultTTL), nil
	}
}
