package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recordingProvider() (*Provider, *tracetest.SpanRecorder) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	return &Provider{tp: tp, tracer: tp.Tracer("test")}, rec
}

func TestInitTracerDisabled(t *testing.T) {
	p, err := InitTracer(Config{ServiceName: "studio"}, nil)
	if err != nil {
		t.Fatalf("InitTracer failed: %v", err)
	}
	if p.Tracer() == nil {
		t.Fatal("Expected a no-op tracer")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestTransportPropagatesContext(t *testing.T) {
	provider, rec := recordingProvider()

	var traceparent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceparent = r.Header.Get("Traceparent")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := &http.Client{Transport: &Transport{Provider: provider}}
	resp, err := client.Get(srv.URL + "/api/health")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	resp.Body.Close()

	if traceparent == "" {
		t.Error("Expected a traceparent header")
	}
	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("Expected 1 span, got %d", len(spans))
	}
	if spans[0].Name() != "GET /api/health" {
		t.Errorf("Unexpected span name %q", spans[0].Name())
	}
}

func TestHTTPMiddlewareRecordsSpan(t *testing.T) {
	provider, rec := recordingProvider()

	handler := HTTPMiddleware(provider)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/denoise", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Errorf("Expected 202, got %d", w.Code)
	}
	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("Expected 1 span, got %d", len(spans))
	}
	if spans[0].Name() != "POST /api/denoise" {
		t.Errorf("Unexpected span name %q", spans[0].Name())
	}
}
