package main

import (
	"crypto/tls"
	"flag"
	"os"
	"strconv"
	"time"

	dedupV1 "frame-dedup/api/v1"
	"frame-dedup/internal/controllers"
	"frame-dedup/internal/runnable"
	"frame-dedup/internal/storage"

	// Import all Kubernetes client auth plugins (e.g. Azure, GCP, OIDC, etc.)
	// to ensure that exec-entrypoint and run can make use of them.
	_ "k8s.io/client-go/plugin/pkg/client/auth"

	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	"k8s.io/client-go/dynamic"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/klog/v2"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"
	"sigs.k8s.io/controller-runtime/pkg/webhook"
	// +kubebuilder:scaffold:imports
)

var (
	scheme = runtime.NewScheme()
)

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(dedupV1.AddToScheme(scheme))
}

func envOrDefaultValue[T any](key string, defaultValue T) T {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}

	switch any(defaultValue).(type) {
	case string:
		return any(value).(T)
	case int:
		if intValue, err := strconv.Atoi(value); err == nil {
			return any(intValue).(T)
		}
	case int64:
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return any(intValue).(T)
		}
	case uint:
		if uintValue, err := strconv.ParseUint(value, 10, 0); err == nil {
			return any(uint(uintValue)).(T)
		}
	case uint64:
		if uintValue, err := strconv.ParseUint(value, 10, 64); err == nil {
			return any(uintValue).(T)
		}
	case float64:
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return any(floatValue).(T)
		}
	case bool:
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return any(boolValue).(T)
		}
	case time.Duration:
		if durationValue, err := time.ParseDuration(value); err == nil {
			return any(durationValue).(T)
		}
	}

	return defaultValue
}

func main() {
	var metricsAddr string
	var secureMetrics bool
	var enableHTTP2 bool
	var probeAddr string
	var enableLeaderElection bool

	var storageBackend string

	var distributed bool
	var distributedCallbackHost string
	var distributedWorkerImage string

	var serverOptions runnable.ServerOptions

	flag.StringVar(&metricsAddr, "metrics-bind-address", envOrDefaultValue("METRICS_BIND_ADDRESS", "0.0.0.0:8080"), "The address the metric endpoint binds to.")
	flag.BoolVar(&secureMetrics, "metrics-secure", envOrDefaultValue("METRICS_SECURE", false), "If set the metrics endpoint is served securely")
	flag.BoolVar(&enableHTTP2, "enable-http2", envOrDefaultValue("ENABLE_HTTP2", false), "If set, HTTP/2 will be enabled for the metrics and webhook servers")
	flag.StringVar(&probeAddr, "health-probe-bind-address", envOrDefaultValue("HEALTH_PROBE_BIND_ADDRESS", "0.0.0.0:8081"), "The address the probe endpoint binds to.")
	flag.BoolVar(&enableLeaderElection, "enable-leader-election", envOrDefaultValue("ENABLE_LEADER_ELECTION", false),
		"Enable leader election for controller manager.")

	flag.StringVar(&storageBackend, "storage-backend", envOrDefaultValue("STORAGE_BACKEND", "s3"), "Storage backend holding frames and reports (file or s3)")

	flag.BoolVar(&distributed, "distributed", envOrDefaultValue("DISTRIBUTED", false), "Run deduplication in CronJobs instead of the controller process")
	flag.StringVar(&distributedCallbackHost, "distributed-callback-host", envOrDefaultValue("DISTRIBUTED_CALLBACK_HOST", "frame-dedup.frame-dedup.svc.cluster.local:8082"), "Host the distributed workers report back to")
	flag.StringVar(&distributedWorkerImage, "distributed-worker-image", envOrDefaultValue("DISTRIBUTED_WORKER_IMAGE", "frame-dedup/dedup:main"), "The image to use for the distributed worker jobs")
	flag.StringVar(&serverOptions.Address, "address", envOrDefaultValue("ADDRESS", "0.0.0.0:8082"), "The address the report API binds to")
	flag.DurationVar(&serverOptions.TerminationGracePeriod, "termination-grace-period", envOrDefaultValue("TERMINATION_GRACE_PERIOD", 10*time.Second), "Time allowed for in-flight report requests on shutdown")
	flag.DurationVar(&serverOptions.Lameduck, "lameduck", envOrDefaultValue("LAMEDUCK", 1*time.Second), "Delay between the shutdown signal and closing the report API")
	flag.BoolVar(&serverOptions.KeepAlive, "http-keepalive", envOrDefaultValue("HTTP_KEEPALIVE", true), "Enable HTTP keep-alive on the report API")
	flag.IntVar(&serverOptions.MaxConnections, "max-connections", envOrDefaultValue("MAX_CONNECTIONS", 65532), "Maximum concurrent connections to the report API")
	flag.BoolVar(&serverOptions.Debug, "debug", envOrDefaultValue("DEBUG", false), "Serve pprof endpoints and log as text")
	opts := zap.Options{}
	opts.BindFlags(flag.CommandLine)
	klog.InitFlags(flag.CommandLine)
	flag.Parse()

	zapLogger := zap.New(zap.UseFlagOptions(&opts))
	klog.SetLogger(zapLogger)
	ctrl.SetLogger(zapLogger)

	entrypointLogger := ctrl.Log.WithName("entrypoint")

	// if the enable-http2 flag is false (the default), http/2 should be disabled
	// due to its vulnerabilities. More specifically, disabling http/2 will
	// prevent from being vulnerable to the HTTP/2 Stream Cancelation and
	// Rapid Reset CVEs. For more information see:
	// - https://github.com/advisories/GHSA-qppj-fm5r-hxr3
	// - https://github.com/advisories/GHSA-4374-p667-p6c8
	disableHTTP2 := func(c *tls.Config) {
		entrypointLogger.Info("disabling http/2")
		c.NextProtos = []string{"http/1.1"}
	}

	tlsOpts := []func(*tls.Config){}
	if !enableHTTP2 {
		tlsOpts = append(tlsOpts, disableHTTP2)
	}

	m, err := ctrl.NewManager(ctrl.GetConfigOrDie(), ctrl.Options{
		Scheme: scheme,
		Metrics: metricsserver.Options{
			BindAddress:   metricsAddr,
			SecureServing: secureMetrics,
			TLSOpts:       tlsOpts,
		},
		HealthProbeBindAddress: probeAddr,
		WebhookServer: webhook.NewServer(webhook.Options{
			TLSOpts: tlsOpts,
		}),
		LeaderElection:   enableLeaderElection,
		LeaderElectionID: "frame-dedup",
	})
	if err != nil {
		entrypointLogger.Error(err, "unable to create manager")
		os.Exit(1)
	}

	ctx := ctrl.SetupSignalHandler()

	storageClient, err := storage.New(ctx, storageBackend)
	if err != nil {
		entrypointLogger.Error(err, "unable to create storage backend")
		os.Exit(1)
	}

	if err := (&controllers.ScheduledDedupReconciler{
		Client:                  m.GetClient(),
		Scheme:                  m.GetScheme(),
		Log:                     ctrl.Log.WithName("controllers").WithName("scheduleddedup"),
		Recorder:                m.GetEventRecorderFor("scheduleddedup-controller"),
		Storage:                 storageClient,
		Distributed:             distributed,
		DistributedCallbackHost: distributedCallbackHost,
		DistributedWorkerImage:  distributedWorkerImage,
	}).SetupWithManager(m); err != nil {
		entrypointLogger.Error(err, "unable to create controller", "controller", "ScheduledDedup")
		os.Exit(1)
	}

	dynamicClient, err := dynamic.NewForConfig(m.GetConfig())
	if err != nil {
		entrypointLogger.Error(err, "unable to create kubernetes dynamic client")
		os.Exit(1)
	}

	if err := m.Add(runnable.NewServer(serverOptions, dynamicClient, storageClient)); err != nil {
		entrypointLogger.Error(err, "unable to add Server runnable")
		os.Exit(1)
	}

	if err := m.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		entrypointLogger.Error(err, "unable to set up health check")
		os.Exit(1)
	}
	if err := m.AddReadyzCheck("readyz", healthz.Ping); err != nil {
		entrypointLogger.Error(err, "unable to set up ready check")
		os.Exit(1)
	}

	entrypointLogger.Info("starting manager")
	if err := m.Start(ctx); err != nil {
		entrypointLogger.Error(err, "problem running manager")
		os.Exit(1)
	}
}
