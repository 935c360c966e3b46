package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	dedupV1 "frame-dedup/api/v1"
	"frame-dedup/internal/dedup"
	"frame-dedup/internal/preprocess"
	"frame-dedup/internal/storage"

	"github.com/go-logr/logr"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
	batchV1 "k8s.io/api/batch/v1"
	coreV1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metaV1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/tools/record"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/predicate"
)

type ScheduledDedupReconciler struct {
	client.Client
	Log      logr.Logger
	Scheme   *runtime.Scheme
	Recorder record.EventRecorder
	Storage  storage.Storage

	Distributed             bool
	DistributedCallbackHost string
	DistributedWorkerImage  string
}

func (r *ScheduledDedupReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	scheduledDedup := &dedupV1.ScheduledDedup{}
	if err := r.Get(ctx, req.NamespacedName, scheduledDedup); err != nil {
		if apierrors.IsNotFound(err) {
			return ctrl.Result{}, nil
		}
		return ctrl.Result{}, err
	}

	if r.Distributed {
		if err := r.createOrUpdateCronJob(ctx, scheduledDedup); err != nil {
			return ctrl.Result{}, err
		}
		return ctrl.Result{}, nil
	}

	schedule, err := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow).Parse(scheduledDedup.Spec.Schedule)
	if err != nil {
		return ctrl.Result{}, err
	}

	nextRun := schedule.Next(time.Now().Add(-1 * time.Minute))
	if scheduledDedup.Status.LastRunTime != nil {
		nextRun = schedule.Next(scheduledDedup.Status.LastRunTime.Time)
	}
	now := time.Now()

	if now.Before(nextRun) {
		requeueAfter := nextRun.Sub(now)
		return ctrl.Result{RequeueAfter: requeueAfter}, nil
	}

	if err := r.processDedup(ctx, scheduledDedup); err != nil {
		r.Recorder.Eventf(scheduledDedup, coreV1.EventTypeWarning, "DedupFailed", "Scheduled dedup failed: %s", err)
		return ctrl.Result{}, err
	}

	nextRun = schedule.Next(now)
	return ctrl.Result{RequeueAfter: nextRun.Sub(now)}, nil
}

// PipelineFromSpec converts the resource's tuning fields into a Pipeline,
// falling back to the defaults for unset fields.
func PipelineFromSpec(spec dedupV1.ScheduledDedupSpec) (dedup.Pipeline, error) {
	p := dedup.DefaultPipeline()

	if spec.MinContourArea != nil {
		p.Detect.MinContourArea = *spec.MinContourArea
	}
	if len(spec.BlurKernelSizes) > 0 {
		p.Preprocess.KernelSizes = spec.BlurKernelSizes
	}
	if spec.Border != "" {
		border, err := preprocess.ParseBorder(spec.Border)
		if err != nil {
			return dedup.Pipeline{}, err
		}
		p.Preprocess.Border = border
	}
	if spec.Engine != "" {
		p.Engine = spec.Engine
	}

	return p, nil
}

func threshold(spec dedupV1.ScheduledDedupSpec) float64 {
	if spec.Threshold != nil {
		return *spec.Threshold
	}
	return 4025
}

func reportPrefix(scheduledDedup *dedupV1.ScheduledDedup) string {
	return fmt.Sprintf("ScheduledDedup/report/%s/%s", scheduledDedup.Namespace, scheduledDedup.Name)
}

func (r *ScheduledDedupReconciler) processDedup(ctx context.Context, scheduledDedup *dedupV1.ScheduledDedup) error {
	pipeline, err := PipelineFromSpec(scheduledDedup.Spec)
	if err != nil {
		return xerrors.Errorf("invalid spec: %w", err)
	}
	preprocessor, differ, err := pipeline.Build()
	if err != nil {
		return err
	}

	d := &dedup.Deduplicator{
		Storage:         r.Storage,
		Preprocessor:    preprocessor,
		Differ:          differ,
		Threshold:       threshold(scheduledDedup.Spec),
		DryRun:          scheduledDedup.Spec.DryRun,
		SkipUndecodable: scheduledDedup.Spec.SkipUndecodable,
		Quarantine:      scheduledDedup.Spec.Quarantine,
		Log:             r.Log.WithValues("scheduleddedup", client.ObjectKeyFromObject(scheduledDedup)),
	}

	report, err := d.RunPrefix(ctx, scheduledDedup.Spec.Prefix, scheduledDedup.Spec.Extensions)
	if err != nil {
		return xerrors.Errorf("failed to deduplicate %s: %w", scheduledDedup.Spec.Prefix, err)
	}

	data, err := json.Marshal(report)
	if err != nil {
		return xerrors.Errorf("failed to marshal report: %w", err)
	}

	var reportURL string
	{
		eg, ctx := errgroup.WithContext(ctx)

		timestamp := time.Now().Format("20060102150405")
		prefix := reportPrefix(scheduledDedup)

		eg.Go(func() error {
			if _, err := r.Storage.Put(ctx, fmt.Sprintf("%s/%s.json", prefix, timestamp), data); err != nil {
				return xerrors.Errorf("failed to upload report: %w", err)
			}
			return nil
		})

		eg.Go(func() error {
			url, err := r.Storage.Put(ctx, prefix+"/latest.json", data)
			if err != nil {
				return xerrors.Errorf("failed to upload latest report: %w", err)
			}
			reportURL = url
			return nil
		})

		if err := eg.Wait(); err != nil {
			return err
		}
	}

	if err := r.updateScheduledDedupStatus(ctx, scheduledDedup, reportURL, report); err != nil {
		return err
	}
	r.Recorder.Eventf(scheduledDedup, coreV1.EventTypeNormal, "DedupCompleted", "Scheduled dedup completed: %d of %d frames deleted (dry run: %t)", len(report.Deleted), report.Frames, report.DryRun)

	return nil
}

func (r *ScheduledDedupReconciler) updateScheduledDedupStatus(ctx context.Context, scheduledDedup *dedupV1.ScheduledDedup, reportURL string, report *dedup.Report) error {
	now := metaV1.Now()

	scheduledDedup.Status.ReportURL = reportURL
	scheduledDedup.Status.Frames = report.Frames
	scheduledDedup.Status.Evaluated = report.Evaluated
	scheduledDedup.Status.Deleted = len(report.Deleted)
	scheduledDedup.Status.Skipped = len(report.Skipped)
	scheduledDedup.Status.LastRunTime = &now

	if err := r.Status().Update(ctx, scheduledDedup); err != nil {
		return xerrors.Errorf("failed to update scheduled dedup status: %w", err)
	}
	return nil
}

// workerArgs are the bin/dedup arguments of the distributed CronJob. Flags
// precede the positional input, min area and threshold.
func workerArgs(scheduledDedup *dedupV1.ScheduledDedup, callbackHost string) []string {
	spec := scheduledDedup.Spec

	args := []string{
		"-storage-backend", "s3",
		"-report-key", reportPrefix(scheduledDedup) + "/latest.json",
		"-callback-url", fmt.Sprintf("http://%s/api/%s/scheduleddedups/%s/report", callbackHost, scheduledDedup.Namespace, scheduledDedup.Name),
	}

	if len(spec.Extensions) > 0 {
		args = append(args, "-extensions", strings.Join(spec.Extensions, ","))
	}
	if len(spec.BlurKernelSizes) > 0 {
		kernels := make([]string, 0, len(spec.BlurKernelSizes))
		for _, k := range spec.BlurKernelSizes {
			kernels = append(kernels, strconv.Itoa(k))
		}
		args = append(args, "-blur-kernels", strings.Join(kernels, ","))
	}
	if spec.Border != "" {
		args = append(args, "-border", spec.Border)
	}
	if spec.Engine != "" {
		args = append(args, "-engine", spec.Engine)
	}
	if spec.DryRun {
		args = append(args, "-dry-run")
	}
	if spec.SkipUndecodable {
		args = append(args, "-skip-undecodable")
	}
	if spec.Quarantine != "" {
		args = append(args, "-quarantine", spec.Quarantine)
	}

	minContourArea := dedup.DefaultPipeline().Detect.MinContourArea
	if spec.MinContourArea != nil {
		minContourArea = *spec.MinContourArea
	}

	return append(args,
		spec.Prefix,
		strconv.FormatFloat(minContourArea, 'f', -1, 64),
		strconv.FormatFloat(threshold(spec), 'f', -1, 64),
	)
}

func (r *ScheduledDedupReconciler) createOrUpdateCronJob(ctx context.Context, scheduledDedup *dedupV1.ScheduledDedup) error {
	cronJobName := fmt.Sprintf("dedup-%s", scheduledDedup.Name)

	envVars := []coreV1.EnvVar{
		{
			Name:  "S3_BUCKET",
			Value: os.Getenv("S3_BUCKET"),
		},
		{
			Name:  "S3_ENDPOINT_URL",
			Value: os.Getenv("S3_ENDPOINT_URL"),
		},
		{
			Name:  "AWS_REGION",
			Value: os.Getenv("AWS_REGION"),
		},
		{
			Name:  "AWS_ACCESS_KEY_ID",
			Value: os.Getenv("AWS_ACCESS_KEY_ID"),
		},
		{
			Name:  "AWS_SECRET_ACCESS_KEY",
			Value: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		},
	}

	cronJob := &batchV1.CronJob{
		ObjectMeta: metaV1.ObjectMeta{
			Name:      cronJobName,
			Namespace: scheduledDedup.Namespace,
		},
		Spec: batchV1.CronJobSpec{
			Schedule: scheduledDedup.Spec.Schedule,
			// runs over the same prefix must not overlap
			ConcurrencyPolicy: batchV1.ForbidConcurrent,
			JobTemplate: batchV1.JobTemplateSpec{
				Spec: batchV1.JobSpec{
					Template: coreV1.PodTemplateSpec{
						Spec: coreV1.PodSpec{
							RestartPolicy: coreV1.RestartPolicyNever,
							Containers: []coreV1.Container{
								{
									Name:  "dedup",
									Image: r.DistributedWorkerImage,
									Args:  workerArgs(scheduledDedup, r.DistributedCallbackHost),
									Env:   envVars,
								},
							},
						},
					},
				},
			},
		},
	}

	if err := controllerutil.SetControllerReference(scheduledDedup, cronJob, r.Scheme); err != nil {
		return xerrors.Errorf("failed to set controller reference: %w", err)
	}

	existingCronJob := &batchV1.CronJob{}
	err := r.Get(ctx, client.ObjectKey{Name: cronJobName, Namespace: scheduledDedup.Namespace}, existingCronJob)
	if err != nil {
		if apierrors.IsNotFound(err) {
			if err := r.Create(ctx, cronJob); err != nil {
				return xerrors.Errorf("failed to create cronjob: %w", err)
			}
			r.Recorder.Eventf(scheduledDedup, coreV1.EventTypeNormal, "CronJobCreated", "Created CronJob %s", cronJobName)
		} else {
			return xerrors.Errorf("failed to get existing cronjob: %w", err)
		}
	} else {
		existingCronJob.Spec = cronJob.Spec
		if err := r.Update(ctx, existingCronJob); err != nil {
			return xerrors.Errorf("failed to update cronjob: %w", err)
		}
		r.Recorder.Eventf(scheduledDedup, coreV1.EventTypeNormal, "CronJobUpdated", "Updated CronJob %s", cronJobName)
	}

	return nil
}

func (r *ScheduledDedupReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&dedupV1.ScheduledDedup{}).
		Owns(&batchV1.CronJob{}).
		WithEventFilter(predicate.GenerationChangedPredicate{}).
		WithOptions(controller.Options{MaxConcurrentReconciles: 1}).
		Complete(r)
}
