package myhttp

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMux(t *testing.T) (*myRouter, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("myhttp_test")
	histogram, err := meter.Int64Histogram("http_requests_duration_micro_seconds")
	if err != nil {
		t.Fatalf("failed to create histogram: %v", err)
	}
	return NewServerMux(slog.New(slog.DiscardHandler), histogram), reader
}

func TestMiddleware(t *testing.T) {
	t.Run("ServesAndRecordsDuration", func(t *testing.T) {
		mux, reader := newTestMux(t)
		mux.HandleFuncWithMiddleware("POST /compare", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusAccepted)
		})

		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/compare", nil))
		if diff := cmp.Diff(http.StatusAccepted, w.Code); diff != "" {
			t.Errorf("(-want +got):\n%s", diff)
		}

		var rm metricdata.ResourceMetrics
		if err := reader.Collect(t.Context(), &rm); err != nil {
			t.Fatalf("failed to collect metrics: %v", err)
		}
		if len(rm.ScopeMetrics) != 1 || len(rm.ScopeMetrics[0].Metrics) != 1 {
			t.Fatalf("Expected one recorded metric, got %+v", rm.ScopeMetrics)
		}
		if diff := cmp.Diff("http_requests_duration_micro_seconds", rm.ScopeMetrics[0].Metrics[0].Name); diff != "" {
			t.Errorf("(-want +got):\n%s", diff)
		}
	})

	t.Run("RecoversFromPanic", func(t *testing.T) {
		mux, _ := newTestMux(t)
		mux.HandleFuncWithMiddleware("GET /panic", func(w http.ResponseWriter, r *http.Request) {
			panic(http.ErrAbortHandler.Error())
		})
		mux.HandleFuncWithMiddleware("GET /panic-error", func(w http.ResponseWriter, r *http.Request) {
			panic(http.ErrBodyNotAllowed)
		})

		for _, target := range []string{"/panic", "/panic-error"} {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
			if diff := cmp.Diff(http.StatusInternalServerError, w.Code); diff != "" {
				t.Errorf("%s: (-want +got):\n%s", target, diff)
			}
		}
	})
}
