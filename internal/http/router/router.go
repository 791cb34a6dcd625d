// Package router arma el chi.Router del proxy.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	healthctrl "github.com/dropDatabas3/biliproxy/internal/http/controllers/health"
	proxyctrl "github.com/dropDatabas3/biliproxy/internal/http/controllers/proxy"
	httperrors "github.com/dropDatabas3/biliproxy/internal/http/errors"
	mw "github.com/dropDatabas3/biliproxy/internal/http/middlewares"
	"github.com/dropDatabas3/biliproxy/internal/rate"
)

// Deps contiene los controllers y la infraestructura del router.
type Deps struct {
	Proxy   *proxyctrl.ProxyController
	Health  *healthctrl.HealthController
	Metrics http.Handler // nil = sin /metrics

	CORSOrigins []string
	RateLimiter rate.Limiter // nil = sin rate limit entrante

	// TrustForwarded: la IP del limiter sale de X-Forwarded-For / X-Real-IP.
	TrustForwarded bool
}

// New devuelve el handler raíz con la cadena base de middlewares aplicada.
func New(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(mw.WithMetrics())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httperrors.WriteError(w, httperrors.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
	})

	if deps.Health != nil {
		r.Get("/health", deps.Health.Health)
	}
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	if deps.Proxy != nil {
		r.Route("/api", func(r chi.Router) {
			r.Use(mw.WithRateLimit(mw.RateLimitConfig{
				Limiter:        deps.RateLimiter,
				TrustForwarded: deps.TrustForwarded,
			}))

			r.Get("/video", deps.Proxy.Video)
			r.Get("/video/stat", deps.Proxy.VideoStat)
			r.Post("/video/batch", deps.Proxy.VideoBatch)
			r.Get("/user/info", deps.Proxy.UserInfo)
			r.Get("/user/card", deps.Proxy.UserCard)
			r.Get("/user/videos", deps.Proxy.UserVideos)
			r.Get("/search", deps.Proxy.Search)
		})
	}

	return mw.Chain(r,
		mw.WithRequestID(),
		mw.WithLogging(),
		mw.WithRecover(),
		mw.WithCORS(deps.CORSOrigins),
	)
}
