package api

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/psantana5/denoise-studio/pkg/bandwidth"
	"github.com/psantana5/denoise-studio/pkg/metrics"
	"github.com/psantana5/denoise-studio/pkg/middleware"
	"github.com/psantana5/denoise-studio/pkg/ratelimit"
	"github.com/psantana5/denoise-studio/pkg/tracing"
)

// RouterOptions selects the middleware wrapped around the API
type RouterOptions struct {
	// Registry enables /metrics with bandwidth and job metrics
	Registry *prometheus.Registry
	// Limiter rate limits every route per client IP
	Limiter *ratelimit.Limiter
	// Tracing records a server span per request
	Tracing *tracing.Provider
}

// NewRouter builds the service router
func NewRouter(h *Handler, opts RouterOptions) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.RequestID, middleware.Recover(h.logger), middleware.AccessLog(h.logger))

	if opts.Tracing != nil {
		r.Use(tracing.HTTPMiddleware(opts.Tracing))
	}
	if opts.Limiter != nil {
		r.Use(opts.Limiter.Middleware(ratelimit.IPKeyFunc))
	}
	if opts.Registry != nil {
		monitor := bandwidth.NewMonitor(opts.Registry)
		r.Use(monitor.Middleware)
		opts.Registry.MustRegister(metrics.NewServiceCollector(h.jobs))
		r.Handle("/metrics", promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{})).Methods("GET")
	}

	h.RegisterRoutes(r)
	return r
}
