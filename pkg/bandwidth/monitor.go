package bandwidth

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
)

// Monitor tracks upload and download volume of the service
type Monitor struct {
	bytesReceived *prometheus.CounterVec
	bytesSent     *prometheus.CounterVec
	requestSize   *prometheus.HistogramVec
	responseSize  *prometheus.HistogramVec
}

// NewMonitor creates a bandwidth monitor registered on reg
func NewMonitor(reg prometheus.Registerer) *Monitor {
	m := &Monitor{
		bytesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "denoise_service_http_request_bytes_total",
				Help: "Total bytes received in HTTP requests",
			},
			[]string{"method", "endpoint"},
		),
		bytesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "denoise_service_http_response_bytes_total",
				Help: "Total bytes sent in HTTP responses",
			},
			[]string{"method", "endpoint", "status"},
		),
		requestSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "denoise_service_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "endpoint"},
		),
		responseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "denoise_service_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "endpoint", "status"},
		),
	}

	reg.MustRegister(m.bytesReceived, m.bytesSent, m.requestSize, m.responseSize)
	return m
}

// Middleware returns mux middleware that tracks bandwidth per route template
func (m *Monitor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := routeTemplate(r)
		method := r.Method

		if r.ContentLength > 0 {
			m.bytesReceived.WithLabelValues(method, endpoint).Add(float64(r.ContentLength))
			m.requestSize.WithLabelValues(method, endpoint).Observe(float64(r.ContentLength))
		}

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		if rw.bytesWritten > 0 {
			status := strconv.Itoa(rw.statusCode)
			m.bytesSent.WithLabelValues(method, endpoint, status).Add(float64(rw.bytesWritten))
			m.responseSize.WithLabelValues(method, endpoint, status).Observe(float64(rw.bytesWritten))
		}
	})
}

// routeTemplate keeps job ids out of label values
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "other"
}

type responseWriter struct {
	http.ResponseWriter
	bytesWritten int
	statusCode   int
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}
