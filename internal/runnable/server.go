package runnable

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"runtime"
	"time"

	"frame-dedup/internal/myhttp"
	"frame-dedup/internal/routes"
	"frame-dedup/internal/storage"

	otelpyroscope "github.com/grafana/otel-profiling-go"
	"github.com/grafana/pyroscope-go"
	pyroscopepprof "github.com/grafana/pyroscope-go/http/pprof"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"golang.org/x/net/netutil"
	"golang.org/x/xerrors"
	"k8s.io/client-go/dynamic"
)

const serviceName = "frame-dedup-controller"

type ServerOptions struct {
	Address                string
	TerminationGracePeriod time.Duration
	Lameduck               time.Duration
	KeepAlive              bool
	MaxConnections         int
	// Debug serves pprof and logs as text.
	Debug bool
}

// Server is the report API of the controller. It is added to the manager
// and stops when the manager's context is cancelled.
type Server struct {
	options       ServerOptions
	dynamicClient dynamic.Interface
	storageClient storage.Storage
}

func NewServer(options ServerOptions, dynamicClient dynamic.Interface, storageClient storage.Storage) *Server {
	return &Server{
		options:       options,
		dynamicClient: dynamicClient,
		storageClient: storageClient,
	}
}

// Handler routes the ScheduledDedup and report endpoints plus healthz and
// metrics.
func (s *Server) Handler(logger *slog.Logger, httpRequestsDurationMicroSeconds metric.Int64Histogram) http.Handler {
	mux := myhttp.NewServerMux(logger, httpRequestsDurationMicroSeconds)

	mux.HandleFuncWithMiddleware("GET /api/{namespace}/scheduleddedups", routes.ListScheduledDedups(s.dynamicClient))
	mux.HandleFuncWithMiddleware("GET /api/{namespace}/scheduleddedups/{name}", routes.ReadScheduledDedup(s.dynamicClient))
	mux.HandleFuncWithMiddleware("GET /api/{namespace}/scheduleddedups/{name}/report", routes.GetReport(s.dynamicClient, s.storageClient))
	mux.HandleFuncWithMiddleware("PATCH /api/{namespace}/scheduleddedups/{name}/report", routes.UpdateReport(s.dynamicClient))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(http.StatusText(http.StatusOK)))
	})

	mux.Handle("GET /metrics", promhttp.InstrumentMetricHandler(
		prometheus.DefaultRegisterer, promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}),
	))

	if s.options.Debug {
		mux.HandleFunc("GET /debug/pprof/", pprof.Index)
		mux.HandleFunc("GET /debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("GET /debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("GET /debug/pprof/trace", pprof.Trace)
		mux.HandleFunc("GET /debug/pprof/profile", pyroscopepprof.Profile)
	}

	return mux
}

// newLogger writes OpenTelemetry log data model keys at the GO_LOG level.
func newLogger(debug bool) (*slog.Logger, error) {
	logLevel := slog.LevelInfo
	if v, ok := os.LookupEnv("GO_LOG"); ok {
		if err := logLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, xerrors.Errorf("failed to parse log level: %w", err)
		}
	}
	handlerOpts := &slog.HandlerOptions{
		Level: logLevel,
		// https://opentelemetry.io/docs/specs/otel/logs/data-model/
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.LevelKey:
				a.Key = "severitytext"
			case slog.MessageKey:
				a.Key = "body"
			}
			return a
		},
	}
	if debug {
		return slog.New(slog.NewTextHandler(os.Stderr, handlerOpts)), nil
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, handlerOpts)), nil
}

type telemetry struct {
	profiler      *pyroscope.Profiler
	traceProvider *sdktrace.TracerProvider
	histogram     metric.Int64Histogram
}

// startTelemetry installs the global tracer and meter providers. The meter
// provider also carries the dedup run counters recorded by in-process runs.
func startTelemetry(ctx context.Context) (*telemetry, error) {
	runtime.SetMutexProfileFraction(1)
	runtime.SetBlockProfileRate(1)

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: serviceName,
		ServerAddress:   os.Getenv("PYROSCOPE_ENDPOINT"),
		UploadRate:      60 * time.Second,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
			pyroscope.ProfileMutexDuration,
			pyroscope.ProfileBlockDuration,
		},
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to create profiler: %w", err)
	}

	otel.SetTextMapPropagator(propagation.TraceContext{})

	r, err := sdkresource.Merge(
		sdkresource.Default(),
		sdkresource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, xerrors.Errorf("failed to create resource: %w", err)
	}
	traceExporter, err := otlptracegrpc.New(ctx)
	if err != nil {
		return nil, xerrors.Errorf("failed to create trace exporter: %w", err)
	}
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(r),
		sdktrace.WithBatcher(traceExporter),
	)
	otel.SetTracerProvider(otelpyroscope.NewTracerProvider(traceProvider))

	exporter, err := otelprometheus.New()
	if err != nil {
		return nil, xerrors.Errorf("failed to create exporter: %w", err)
	}
	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithResource(r), sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(meterProvider)
	histogram, err := meterProvider.Meter(serviceName).Int64Histogram("http_requests_duration_micro_seconds")
	if err != nil {
		return nil, xerrors.Errorf("failed to create histogram: %w", err)
	}

	return &telemetry{
		profiler:      profiler,
		traceProvider: traceProvider,
		histogram:     histogram,
	}, nil
}

func (t *telemetry) shutdown(ctx context.Context) error {
	if err := t.traceProvider.Shutdown(ctx); err != nil {
		return xerrors.Errorf("failed to shutdown trace provider: %w", err)
	}
	if err := t.profiler.Stop(); err != nil {
		return xerrors.Errorf("failed to shutdown profiler: %w", err)
	}
	return nil
}

func (s *Server) Start(ctx context.Context) error {
	t, err := startTelemetry(ctx)
	if err != nil {
		return err
	}

	logger, err := newLogger(s.options.Debug)
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", s.options.Address)
	if err != nil {
		return xerrors.Errorf("failed to listen on address %s: %w", s.options.Address, err)
	}

	server := &http.Server{
		Handler: s.Handler(logger, t.histogram),
	}
	server.SetKeepAlivesEnabled(s.options.KeepAlive)

	go func() {
		if err := server.Serve(netutil.LimitListener(listener, s.options.MaxConnections)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to serve HTTP", "error", err)
		}
	}()

	<-ctx.Done()
	time.Sleep(s.options.Lameduck)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.options.TerminationGracePeriod)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return xerrors.Errorf("failed to shutdown server: %w", err)
	}
	return t.shutdown(shutdownCtx)
}
