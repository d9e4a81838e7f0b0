package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return rec
}

func TestTracingMiddleware(t *testing.T) {
	rec := recordSpans(t)

	r := chi.NewRouter()
	r.Use(TracingMiddleware("test"))
	r.Get("/items/{id}", func(w http.ResponseWriter, r *http.Request) {})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {})
	r.Get("/events", func(w http.ResponseWriter, r *http.Request) {})

	upgrade := httptest.NewRequest(http.MethodGet, "/events", nil)
	upgrade.Header.Set("Upgrade", "websocket")

	tests := []struct {
		name string
		req  *http.Request
		want string
	}{
		{"route pattern", httptest.NewRequest(http.MethodGet, "/items/7", nil), "GET /items/{id}"},
		{"unmatched", httptest.NewRequest(http.MethodGet, "/nowhere", nil), "GET unmatched"},
		{"health check", httptest.NewRequest(http.MethodGet, "/healthz", nil), ""},
		{"websocket upgrade", upgrade, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(rec.Ended())
			r.ServeHTTP(httptest.NewRecorder(), tt.req)
			spans := rec.Ended()[before:]
			if tt.want == "" {
				if len(spans) != 0 {
					t.Fatalf("expected no span, got %q", spans[0].Name())
				}
				return
			}
			if len(spans) != 1 {
				t.Fatalf("expected one span, got %d", len(spans))
			}
			if got := spans[0].Name(); got != tt.want {
				t.Fatalf("span name = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRecordErrorSetsStatus(t *testing.T) {
	rec := recordSpans(t)

	_, span := StartSpan(context.Background(), "test", "work")
	RecordError(span, nil)
	AddSpanAttributes(span, map[string]any{"n": 3, "ok": true, "skip": struct{}{}})
	RecordError(span, errors.New("boom"))
	span.End()

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected one span, got %d", len(spans))
	}
	if st := spans[0].Status(); st.Code != codes.Error || st.Description != "boom" {
		t.Fatalf("status = %+v", st)
	}
	if n := len(spans[0].Attributes()); n != 2 {
		t.Fatalf("expected 2 attributes, got %d", n)
	}
}

func TestInitTracerDisabled(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	tp, err := InitTracer(context.Background(), TracerConfig{ServiceName: "test"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("init tracer: %v", err)
	}
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	_, span := StartSpan(context.Background(), "test", "noop")
	if span.SpanContext().IsValid() {
		t.Fatal("expected a no-op span while tracing is disabled")
	}
	span.End()
}

func TestSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1, "AlwaysOnSampler"},
		{2, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{-1, "AlwaysOffSampler"},
	}
	for _, tt := range tests {
		if got := sampler(tt.rate).Description(); got != tt.want {
			t.Errorf("sampler(%v) = %q, want %q", tt.rate, got, tt.want)
		}
	}
}
