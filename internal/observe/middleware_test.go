package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// middlewareFixture wires an in-memory metric reader and span exporter behind
// a Middleware instance, the same shape the admin server uses in production.
type middlewareFixture struct {
	mw     func(http.Handler) http.Handler
	reader *sdkmetric.ManualReader
	spans  *tracetest.InMemoryExporter
}

func newMiddlewareFixture(t *testing.T) *middlewareFixture {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	origTP := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(origTP) })

	return &middlewareFixture{mw: Middleware(m), reader: reader, spans: exp}
}

// serve runs a single request through the middleware with a handler that
// records the correlation ID it saw and replies with the given status.
func (f *middlewareFixture) serve(target string, status int) (*httptest.ResponseRecorder, string) {
	var cid string
	handler := f.mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cid = CorrelationID(r.Context())
		w.WriteHeader(status)
	}))

	req := httptest.NewRequest("GET", target, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, cid
}

func TestMiddlewareSetsCorrelationID(t *testing.T) {
	f := newMiddlewareFixture(t)

	rec, cid := f.serve("/healthz", http.StatusOK)

	if cid == "" {
		t.Error("handler saw no correlation ID in context")
	}
	if len(cid) != 32 {
		t.Errorf("correlation ID length = %d, want 32 (hex trace ID)", len(cid))
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != cid {
		t.Errorf("response X-Correlation-ID = %q, want %q", got, cid)
	}
}

func TestMiddlewareCreatesServerSpan(t *testing.T) {
	f := newMiddlewareFixture(t)

	f.serve("/readyz", http.StatusOK)

	spans := f.spans.GetSpans()
	if len(spans) == 0 {
		t.Fatal("no span recorded for the request")
	}
	if spans[0].Name != "HTTP GET /readyz" {
		t.Errorf("span name = %q, want %q", spans[0].Name, "HTTP GET /readyz")
	}
}

func TestMiddlewareRecordsRequestDuration(t *testing.T) {
	f := newMiddlewareFixture(t)

	f.serve("/metrics", http.StatusOK)

	var rm metricdata.ResourceMetrics
	if err := f.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	met := findMetric(rm, "handsfree.http.request.duration")
	if met == nil {
		t.Fatal("request duration metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) == 0 {
		t.Fatal("no data points")
	}

	dp := hist.DataPoints[0]
	if dp.Count != 1 {
		t.Errorf("sample count = %d, want 1", dp.Count)
	}

	foundMethod, foundPath := false, false
	for _, kv := range dp.Attributes.ToSlice() {
		if string(kv.Key) == "method" && kv.Value.AsString() == "GET" {
			foundMethod = true
		}
		if string(kv.Key) == "path" && kv.Value.AsString() == "/metrics" {
			foundPath = true
		}
	}
	if !foundMethod {
		t.Error("missing method attribute")
	}
	if !foundPath {
		t.Error("missing path attribute")
	}
}

func TestMiddlewareCapturesStatusCode(t *testing.T) {
	f := newMiddlewareFixture(t)

	rec, _ := f.serve("/no-such-route", http.StatusNotFound)

	if rec.Code != http.StatusNotFound {
		t.Errorf("response status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	spans := f.spans.GetSpans()
	if len(spans) == 0 {
		t.Fatal("no spans recorded")
	}
	found := false
	for _, a := range spans[0].Attributes {
		if string(a.Key) == "http.response.status_code" && a.Value.AsInt64() == 404 {
			found = true
		}
	}
	if !found {
		t.Error("span missing http.response.status_code attribute")
	}
}

func TestMiddlewareContinuesIncomingTrace(t *testing.T) {
	f := newMiddlewareFixture(t)

	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"

	var cid string
	handler := f.mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cid = CorrelationID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/healthz", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	// The span, and so the correlation ID, must continue the caller's trace.
	if cid != traceID {
		t.Errorf("correlation ID = %q, want %q", cid, traceID)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != traceID {
		t.Errorf("response X-Correlation-ID = %q, want %q", got, traceID)
	}
}
