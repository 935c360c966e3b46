package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"frame-dedup/internal/dedup"
	"frame-dedup/internal/frame"
	"frame-dedup/internal/preprocess"
	"frame-dedup/internal/retry"
	"frame-dedup/internal/routes"
	"frame-dedup/internal/storage"

	"github.com/go-logr/logr"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"golang.org/x/xerrors"
)

var ErrMissingInput = errors.New("input folder path not specified")

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
	case uint:
		if uintValue, err := strconv.ParseUint(value, 10, 0); err == nil {
			return any(uint(uintValue)).(T)
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

// positionalArgs resolves "input [min_contour_area] [threshold]". Omitted
// numbers keep the values already set through flags or the environment.
func positionalArgs(args []string, minContourArea float64, threshold float64) (string, float64, float64, error) {
	input := os.Getenv("INPUT")
	if len(args) > 0 {
		input = args[0]
	}
	if input == "" {
		return "", 0, 0, ErrMissingInput
	}

	if len(args) > 1 {
		v, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return "", 0, 0, xerrors.Errorf("invalid min contour area %q: %w", args[1], err)
		}
		minContourArea = v
	}
	if len(args) > 2 {
		v, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return "", 0, 0, xerrors.Errorf("invalid threshold %q: %w", args[2], err)
		}
		threshold = v
	}

	return input, minContourArea, threshold, nil
}

func parseKernelSizes(s string) ([]int, error) {
	var sizes []int
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		k, err := strconv.Atoi(field)
		if err != nil {
			return nil, xerrors.Errorf("invalid kernel size %q: %w", field, err)
		}
		sizes = append(sizes, k)
	}
	return sizes, nil
}

func newLogger() (*slog.Logger, error) {
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
	return slog.New(slog.NewJSONHandler(os.Stderr, handlerOpts)), nil
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("failed to load .env: %v", err)
	}

	pipeline := dedup.DefaultPipeline()

	var minContourArea float64
	var threshold float64
	var blurKernels string
	var border string
	var binarizeThreshold uint
	var extensions string
	var storageBackend string
	var dryRun bool
	var skipUndecodable bool
	var quarantine string
	var annotatePrefix string
	var schedule string
	var reportKey string
	var callbackURL string
	var callbackRetryOn string

	flag.Float64Var(&minContourArea, "min-contour-area", envOrDefaultValue("MIN_CONTOUR_AREA", pipeline.Detect.MinContourArea), "Smallest changed region, in pixels, that counts towards the score")
	flag.Float64Var(&threshold, "threshold", envOrDefaultValue("THRESHOLD", 4025.0), "Score below which the earlier frame of a pair is deleted")
	flag.IntVar(&pipeline.Preprocess.Width, "width", envOrDefaultValue("WIDTH", pipeline.Preprocess.Width), "Canonical frame width")
	flag.IntVar(&pipeline.Preprocess.Height, "height", envOrDefaultValue("HEIGHT", pipeline.Preprocess.Height), "Canonical frame height")
	flag.StringVar(&blurKernels, "blur-kernels", envOrDefaultValue("BLUR_KERNELS", "3"), "Comma separated odd Gaussian kernel sizes applied in order")
	flag.StringVar(&border, "border", envOrDefaultValue("BORDER", pipeline.Preprocess.Border.String()), "Masked margin as left,top,right,bottom percentages")
	flag.UintVar(&binarizeThreshold, "binarize-threshold", envOrDefaultValue("BINARIZE_THRESHOLD", uint(pipeline.Detect.BinarizeThreshold)), "Absolute difference above which a pixel counts as changed")
	flag.IntVar(&pipeline.Detect.DilateIterations, "dilate-iterations", envOrDefaultValue("DILATE_ITERATIONS", pipeline.Detect.DilateIterations), "Number of 3x3 dilation passes over the change mask")
	flag.StringVar(&pipeline.Engine, "engine", envOrDefaultValue("ENGINE", pipeline.Engine), "Change detector implementation (native or opencv)")
	flag.StringVar(&extensions, "extensions", envOrDefaultValue("EXTENSIONS", ".png"), "Comma separated file extensions treated as frames")
	flag.StringVar(&storageBackend, "storage-backend", envOrDefaultValue("STORAGE_BACKEND", "file"), "Storage backend (file or s3)")
	flag.BoolVar(&dryRun, "dry-run", envOrDefaultValue("DRY_RUN", false), "Report near duplicates without deleting them")
	flag.BoolVar(&skipUndecodable, "skip-undecodable", envOrDefaultValue("SKIP_UNDECODABLE", false), "Skip frames that fail to decode instead of aborting")
	flag.StringVar(&quarantine, "quarantine", envOrDefaultValue("QUARANTINE", ""), "Prefix near duplicates are copied to before deletion")
	flag.StringVar(&annotatePrefix, "annotate-prefix", envOrDefaultValue("ANNOTATE_PREFIX", ""), "Prefix annotated change masks are written to")
	flag.StringVar(&schedule, "schedule", envOrDefaultValue("SCHEDULE", ""), "Cron schedule to run on repeatedly instead of once")
	flag.StringVar(&reportKey, "report-key", envOrDefaultValue("REPORT_KEY", ""), "Storage key the JSON report is written to")
	flag.StringVar(&callbackURL, "callback-url", envOrDefaultValue("CALLBACK_URL", ""), "URL the report summary is sent to")
	flag.StringVar(&callbackRetryOn, "callback-retry-on", envOrDefaultValue("CALLBACK_RETRY_ON", retry.DefaultConditions().String()), "Conditions on which the callback is retried")
	flag.Parse()

	input, minContourArea, threshold, err := positionalArgs(flag.Args(), minContourArea, threshold)
	if err != nil {
		log.Fatalf("%v", err)
	}

	pipeline.Detect.MinContourArea = minContourArea
	if binarizeThreshold > 255 {
		log.Fatalf("binarize threshold must be at most 255, got %d", binarizeThreshold)
	}
	pipeline.Detect.BinarizeThreshold = uint8(binarizeThreshold)
	pipeline.Preprocess.KernelSizes, err = parseKernelSizes(blurKernels)
	if err != nil {
		log.Fatalf("%v", err)
	}
	pipeline.Preprocess.Border, err = preprocess.ParseBorder(border)
	if err != nil {
		log.Fatalf("%v", err)
	}

	retryOn, err := retry.ParseConditions(callbackRetryOn)
	if err != nil {
		log.Fatalf("%v", err)
	}

	preprocessor, differ, err := pipeline.Build()
	if err != nil {
		log.Fatalf("failed to build pipeline: %v", err)
	}

	logger, err := newLogger()
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := storage.New(ctx, storageBackend)
	if err != nil {
		log.Fatalf("failed to create storage backend: %v", err)
	}

	job := &Job{
		Deduplicator: &dedup.Deduplicator{
			Storage:         s,
			Preprocessor:    preprocessor,
			Differ:          differ,
			Threshold:       threshold,
			DryRun:          dryRun,
			SkipUndecodable: skipUndecodable,
			Quarantine:      quarantine,
			AnnotatePrefix:  annotatePrefix,
			Log:             logr.FromSlogHandler(logger.Handler()),
		},
		Input:       input,
		Extensions:  frame.ParseExtensions(extensions),
		ReportKey:   reportKey,
		CallbackURL: callbackURL,
		Callback:    retry.NewClient(http.DefaultTransport, retry.NewFullJitter(10*time.Millisecond, 1*time.Second, 3), retryOn),
	}

	if schedule == "" {
		report, err := job.Run(ctx)
		if err != nil {
			log.Fatalf("failed to deduplicate %s: %v", input, err)
		}
		j, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			log.Fatalf("failed to marshal report: %v", err)
		}
		fmt.Println(string(j))
		return
	}

	c := cron.New(cron.WithParser(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)))
	if _, err := c.AddFunc(schedule, func() {
		report, err := job.Run(ctx)
		if err != nil {
			logger.Error("failed to deduplicate", "input", input, "error", err)
			return
		}
		logger.Info("deduplicated", "input", input, "frames", report.Frames, "deleted", len(report.Deleted))
	}); err != nil {
		log.Fatalf("failed to parse schedule %q: %v", schedule, err)
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
}

// Job is one deduplication pass over Input together with the delivery of its
// report.
type Job struct {
	Deduplicator *dedup.Deduplicator
	Input        string
	Extensions   []string

	ReportKey   string
	CallbackURL string
	Callback    *http.Client
}

func (j *Job) Run(ctx context.Context) (*dedup.Report, error) {
	report, err := j.Deduplicator.RunPrefix(ctx, j.Input, j.Extensions)
	if err != nil {
		return nil, err
	}

	var reportURL string
	if j.ReportKey != "" {
		data, err := json.Marshal(report)
		if err != nil {
			return nil, xerrors.Errorf("failed to marshal report: %w", err)
		}
		reportURL, err = j.Deduplicator.Storage.Put(ctx, j.ReportKey, data)
		if err != nil {
			return nil, xerrors.Errorf("failed to upload report: %w", err)
		}
	}

	if j.CallbackURL != "" {
		summary, err := json.Marshal(routes.ReportRequest{
			ReportURL: reportURL,
			Frames:    report.Frames,
			Evaluated: report.Evaluated,
			Deleted:   len(report.Deleted),
			Skipped:   len(report.Skipped),
		})
		if err != nil {
			return nil, xerrors.Errorf("failed to marshal report summary: %w", err)
		}
		if err := callback(ctx, j.Callback, j.CallbackURL, summary); err != nil {
			return nil, xerrors.Errorf("failed to send callback: %w", err)
		}
	}

	return report, nil
}

func callback(ctx context.Context, client *http.Client, callbackURL string, data []byte) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodPatch, callbackURL, bytes.NewReader(data))
	if err != nil {
		return xerrors.Errorf("failed to create request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := client.Do(request)
	if err != nil {
		return xerrors.Errorf("failed to send request: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode >= http.StatusBadRequest {
		return xerrors.Errorf("callback responded with %s", response.Status)
	}
	return nil
}
