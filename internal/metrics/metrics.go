// Package metrics define las métricas Prometheus del proxy.
// Viven en un paquete propio para que bilibili, wbi y http las usen sin ciclos.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "biliproxy_http_requests_total",
		Help: "Requests entrantes por ruta y status",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "biliproxy_http_request_duration_seconds",
		Help:    "Latencia de requests entrantes",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	HTTPInflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "biliproxy_http_inflight_requests",
		Help: "Requests entrantes en vuelo",
	})

	UpstreamRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "biliproxy_upstream_requests_total",
		Help: "Llamadas al upstream por path y resultado",
	}, []string{"path", "result"}) // result: ok|code|status|transport|decode

	UpstreamDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "biliproxy_upstream_request_duration_seconds",
		Help:    "Latencia de llamadas al upstream",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
	}, []string{"path"})

	CacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "biliproxy_cache_lookups_total",
		Help: "Lecturas del cache de resultados",
	}, []string{"result"}) // hit|miss|stale

	WbiKeyRefreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "biliproxy_wbi_key_refreshes_total",
		Help: "Refresh de claves WBI por resultado",
	}, []string{"result"}) // ok|error
)

// Register registra todas las métricas en reg (o el default si es nil).
// Los duplicados se ignoran para que tests y main puedan llamarlo más de una vez.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		HTTPRequestsTotal, HTTPRequestDuration, HTTPInflight,
		UpstreamRequestsTotal, UpstreamDuration,
		CacheLookups, WbiKeyRefreshes,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}

// Handler expone /metrics para el gatherer dado (o el default).
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// ObserveUpstream registra una llamada al upstream.
func ObserveUpstream(path, result string, d time.Duration) {
	UpstreamRequestsTotal.WithLabelValues(path, result).Inc()
	UpstreamDuration.WithLabelValues(path).Observe(d.Seconds())
}

// ObserveHTTP registra un request entrante ya resuelto.
func ObserveHTTP(method, route string, status int, d time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// ObserveKeyRefresh es un wbi.RefreshObserver.
func ObserveKeyRefresh(err error, _ time.Duration) {
	if err != nil {
		WbiKeyRefreshes.WithLabelValues("error").Inc()
		return
	}
	WbiKeyRefreshes.WithLabelValues("ok").Inc()
}
