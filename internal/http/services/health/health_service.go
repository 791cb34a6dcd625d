// Package health contiene el service para health checks.
package health

import (
	"context"
	"time"

	"github.com/dropDatabas3/biliproxy/internal/cache"
	dto "github.com/dropDatabas3/biliproxy/internal/http/dto/health"
	"github.com/dropDatabas3/biliproxy/internal/observability/logger"
)

// HealthService define las operaciones de health check.
type HealthService interface {
	Check(ctx context.Context) dto.HealthResponse
}

// KeyReadiness abstrae el KeyCache WBI.
type KeyReadiness interface {
	Ready() bool
}

// Deps contiene las dependencias inyectables para el health service.
type Deps struct {
	Cache   cache.Client
	Keys    KeyReadiness
	Started time.Time
	Version string
	Now     func() time.Time
}

type healthService struct {
	deps Deps
}

// NewHealthService crea un nuevo service de health check.
func NewHealthService(deps Deps) HealthService {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Started.IsZero() {
		deps.Started = deps.Now()
	}
	return &healthService{deps: deps}
}

func (s *healthService) Check(ctx context.Context) dto.HealthResponse {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("health"),
		logger.Op("Check"),
	)

	now := s.deps.Now()
	resp := dto.HealthResponse{
		Code:          0,
		Message:       "ok",
		Status:        "ok",
		Version:       s.deps.Version,
		UptimeSeconds: int64(now.Sub(s.deps.Started).Seconds()),
		Timestamp:     now.UTC(),
	}

	if s.deps.Cache != nil {
		st, err := s.deps.Cache.Stats(ctx)
		if err != nil {
			log.Warn("cache stats failed", logger.Err(err))
			resp.Status = "degraded"
		}
		resp.CacheKeys = st.Keys
		resp.CacheStale = st.StaleKeys
		resp.CacheDriver = st.Driver
	}

	// Sin claves WBI los endpoints firmados fallan, el resto sigue andando.
	if s.deps.Keys != nil {
		resp.WbiReady = s.deps.Keys.Ready()
	}
	return resp
}
