// Package server arma el handler HTTP del proxy con todas sus dependencias.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/biliproxy/internal/bilibili"
	"github.com/dropDatabas3/biliproxy/internal/cache"
	"github.com/dropDatabas3/biliproxy/internal/config"
	healthctrl "github.com/dropDatabas3/biliproxy/internal/http/controllers/health"
	proxyctrl "github.com/dropDatabas3/biliproxy/internal/http/controllers/proxy"
	"github.com/dropDatabas3/biliproxy/internal/http/router"
	healthsvc "github.com/dropDatabas3/biliproxy/internal/http/services/health"
	proxysvc "github.com/dropDatabas3/biliproxy/internal/http/services/proxy"
	"github.com/dropDatabas3/biliproxy/internal/metrics"
	"github.com/dropDatabas3/biliproxy/internal/observability/logger"
	"github.com/dropDatabas3/biliproxy/internal/rate"
)

// Options permite reemplazar piezas en tests.
type Options struct {
	HTTPClient *http.Client         // cliente hacia el upstream
	Registry   *prometheus.Registry // nil = registry default
}

// BuildHandler construye el handler raíz. cleanup cierra el cache.
func BuildHandler(ctx context.Context, cfg *config.Config, opts Options) (http.Handler, func() error, error) {
	log := logger.L().With(logger.Component("wiring"))

	// 1. Métricas
	var reg prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if opts.Registry != nil {
		reg, gatherer = opts.Registry, opts.Registry
	}
	if err := metrics.Register(reg); err != nil {
		return nil, nil, fmt.Errorf("metrics register: %w", err)
	}

	// 2. Cache de resultados
	cc, err := cache.New(ctx, cache.Config{
		Driver:     cfg.Cache.Kind,
		DefaultTTL: cfg.CacheTTL(),
		Addr:       cfg.Cache.Redis.Addr,
		Password:   cfg.Cache.Redis.Password,
		DB:         cfg.Cache.Redis.DB,
		Prefix:     cfg.Cache.Redis.Prefix,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("cache init: %w", err)
	}
	cleanup := cc.Close

	// 3. Cliente upstream (incluye KeyCache WBI)
	client, err := bilibili.New(bilibili.Config{
		BaseURL:     cfg.Upstream.BaseURL,
		Timeout:     cfg.UpstreamTimeout(),
		UserAgent:   cfg.Upstream.UserAgent,
		Cookie:      cfg.Upstream.Cookie,
		KeyTTL:      cfg.KeyTTL(),
		KeyMaxStale: cfg.KeyMaxStale(),
		HTTPClient:  opts.HTTPClient,
	})
	if err != nil {
		_ = cleanup()
		return nil, nil, err
	}

	// 4. Rate limit entrante: Redis si el cache ya es Redis, memoria si no.
	var limiter rate.Limiter
	if cfg.Rate.Enabled {
		if rc, ok := cc.(interface{ Redis() *redis.Client }); ok {
			limiter = rate.NewRedisLimiter(rc.Redis(), cfg.Cache.Redis.Prefix+":rl:", cfg.Rate.MaxRequests, cfg.RateWindow())
		} else {
			limiter = rate.NewMemoryLimiter(cfg.Rate.MaxRequests, cfg.RateWindow())
		}
	}

	// 5. Services y controllers
	proxyService := proxysvc.NewService(proxysvc.Deps{
		Upstream: client,
		Cache:    cc,
		Gate:     rate.NewGate(cfg.BatchInterval()),
		TTL:      cfg.CacheTTL(),
		StaleTTL: cfg.StaleTTL(),
		MaxBatch: cfg.Batch.MaxItems,
	})
	healthService := healthsvc.NewHealthService(healthsvc.Deps{
		Cache:   cc,
		Keys:    client.Keys(),
		Started: time.Now(),
		Version: cfg.App.Version,
	})

	h := router.New(router.Deps{
		Proxy:       proxyctrl.NewProxyController(proxyService),
		Health:      healthctrl.NewHealthController(healthService),
		Metrics:     metrics.Handler(gatherer),
		CORSOrigins: cfg.Server.CORSAllowedOrigins,
		RateLimiter: limiter,

		TrustForwarded: cfg.Rate.TrustForwardedHeaders,
	})

	log.Info("handler ready",
		logger.String("cache_driver", cfg.Cache.Kind),
		logger.String("upstream", cfg.Upstream.BaseURL),
		logger.Bool("rate_limit", limiter != nil),
	)
	return h, cleanup, nil
}
