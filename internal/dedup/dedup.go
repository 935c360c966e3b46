// Package dedup walks a time ordered sequence of frames and removes every
// frame that is a near duplicate of the frame that follows it.
package dedup

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"path"

	diffimage "frame-dedup/internal/diff/image"
	"frame-dedup/internal/frame"
	"frame-dedup/internal/preprocess"
	"frame-dedup/internal/storage"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/xerrors"
)

const instrumentationName = "frame-dedup/internal/dedup"

var ErrInvalidThreshold = errors.New("threshold must not be negative")

// Decision records the comparison of one consecutive pair.
type Decision struct {
	Base      string  `json:"base"`
	Current   string  `json:"current"`
	Score     float64 `json:"score"`
	Duplicate bool    `json:"duplicate"`
	Contours  int     `json:"contours"`
}

type Report struct {
	Frames    int        `json:"frames"`
	Evaluated int        `json:"evaluated"`
	Deleted   []string   `json:"deleted"`
	Skipped   []string   `json:"skipped,omitempty"`
	Decisions []Decision `json:"decisions"`
	DryRun    bool       `json:"dryRun"`
}

type Deduplicator struct {
	Storage      storage.Storage
	Preprocessor *preprocess.Preprocessor
	Differ       diffimage.Differ
	// A pair whose score is strictly below Threshold is a near duplicate.
	Threshold float64

	// DryRun records deletions in the report without touching storage.
	DryRun bool
	// SkipUndecodable logs and skips frames that fail to decode instead of
	// aborting the run.
	SkipUndecodable bool
	// Quarantine, when set, is the prefix near duplicates are copied under
	// before they are deleted.
	Quarantine string
	// AnnotatePrefix, when set, is the prefix an annotated change mask of
	// every pair with retained contours is stored under.
	AnnotatePrefix string

	Log logr.Logger
}

type instruments struct {
	evaluated metric.Int64Counter
	deleted   metric.Int64Counter
}

func newInstruments() (*instruments, error) {
	meter := otel.Meter(instrumentationName)

	evaluated, err := meter.Int64Counter("dedup_frames_evaluated")
	if err != nil {
		return nil, xerrors.Errorf("failed to create counter: %w", err)
	}
	deleted, err := meter.Int64Counter("dedup_frames_deleted")
	if err != nil {
		return nil, xerrors.Errorf("failed to create counter: %w", err)
	}

	return &instruments{
		evaluated: evaluated,
		deleted:   deleted,
	}, nil
}

// RunPrefix lists the frames under prefix and runs the decision loop over
// them in timestamp order.
func (d *Deduplicator) RunPrefix(ctx context.Context, prefix string, extensions []string) (*Report, error) {
	keys, err := d.Storage.List(ctx, prefix)
	if err != nil {
		return nil, xerrors.Errorf("failed to list frames: %w", err)
	}

	entries, err := frame.Sequence(keys, extensions)
	if err != nil {
		return nil, xerrors.Errorf("%s: %w", prefix, err)
	}

	return d.Run(ctx, entries)
}

// Run compares every frame with the one before it. When the change score is
// below Threshold the earlier frame is deleted. The first frame is never
// evaluated and the last surviving frame is never deleted. The base always
// advances to the frame just compared.
func (d *Deduplicator) Run(ctx context.Context, entries []frame.Entry) (*Report, error) {
	if d.Threshold < 0 {
		return nil, xerrors.Errorf("%v: %w", d.Threshold, ErrInvalidThreshold)
	}
	if len(entries) == 0 {
		return nil, frame.ErrNoFrames
	}

	inst, err := newInstruments()
	if err != nil {
		return nil, err
	}

	report := &Report{
		Frames:    len(entries),
		Deleted:   []string{},
		Decisions: []Decision{},
		DryRun:    d.DryRun,
	}

	var base *frame.Entry
	for i := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		current := entries[i]

		if base == nil {
			if _, err := d.load(ctx, current); err != nil {
				if d.skip(err) {
					d.Log.Info("skipping undecodable frame", "key", current.Key, "error", err.Error())
					report.Skipped = append(report.Skipped, current.Key)
					continue
				}
				return report, err
			}
			base = &current
			continue
		}

		decision, err := d.compare(ctx, *base, current)
		if err != nil {
			var fe *frameError
			if d.skip(err) && errors.As(err, &fe) {
				d.Log.Info("skipping undecodable frame", "key", fe.key, "error", err.Error())
				report.Skipped = append(report.Skipped, fe.key)
				// A base that stopped decoding is replaced by the current frame.
				if fe.key == base.Key {
					base = &current
				}
				continue
			}
			return report, err
		}

		report.Evaluated++
		report.Decisions = append(report.Decisions, decision)
		inst.evaluated.Add(ctx, 1)

		d.Log.V(1).Info("compared frames", "base", decision.Base, "current", decision.Current, "score", decision.Score, "contours", decision.Contours)

		if decision.Duplicate {
			if err := d.remove(ctx, *base); err != nil {
				return report, err
			}
			report.Deleted = append(report.Deleted, base.Key)
			inst.deleted.Add(ctx, 1, metric.WithAttributes(attribute.Bool("dry_run", d.DryRun)))
			d.Log.Info("deleted near duplicate", "key", base.Key, "next", current.Key, "score", decision.Score, "dryRun", d.DryRun)
		}

		base = &current
	}

	return report, nil
}

// frameError attributes a load failure to the frame that caused it.
type frameError struct {
	key string
	err error
}

func (e *frameError) Error() string {
	return e.err.Error()
}

func (e *frameError) Unwrap() error {
	return e.err
}

func (d *Deduplicator) skip(err error) bool {
	return d.SkipUndecodable && errors.Is(err, frame.ErrDecode)
}

func (d *Deduplicator) compare(ctx context.Context, base frame.Entry, current frame.Entry) (Decision, error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "dedup.compare")
	defer span.End()
	span.SetAttributes(
		attribute.String("base", base.Key),
		attribute.String("current", current.Key),
	)

	decision, err := d.decide(ctx, base, current)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Decision{}, err
	}

	span.SetAttributes(
		attribute.Float64("score", decision.Score),
		attribute.Bool("duplicate", decision.Duplicate),
	)
	return decision, nil
}

func (d *Deduplicator) decide(ctx context.Context, base frame.Entry, current frame.Entry) (Decision, error) {
	currentImage, err := d.load(ctx, current)
	if err != nil {
		return Decision{}, &frameError{key: current.Key, err: err}
	}
	baseImage, err := d.load(ctx, base)
	if err != nil {
		return Decision{}, &frameError{key: base.Key, err: err}
	}

	result, err := d.Differ.Calculate(baseImage, currentImage)
	if err != nil {
		return Decision{}, xerrors.Errorf("failed to compare %s with %s: %w", base.Key, current.Key, err)
	}

	if d.AnnotatePrefix != "" && len(result.Contours) > 0 {
		if err := d.annotate(ctx, current, currentImage, result.Contours); err != nil {
			return Decision{}, err
		}
	}

	return Decision{
		Base:      base.Key,
		Current:   current.Key,
		Score:     result.DiffAmount,
		Duplicate: result.DiffAmount < d.Threshold,
		Contours:  len(result.Contours),
	}, nil
}

func (d *Deduplicator) load(ctx context.Context, entry frame.Entry) (*image.Gray, error) {
	data, err := d.Storage.Get(ctx, entry.Key)
	if err != nil {
		return nil, xerrors.Errorf("failed to load frame %s: %w", entry.Key, err)
	}

	img, err := frame.Decode(entry.Key, data)
	if err != nil {
		return nil, err
	}

	gray, err := d.Preprocessor.Normalize(img)
	if err != nil {
		return nil, xerrors.Errorf("failed to normalize %s: %w", entry.Key, err)
	}
	return gray, nil
}

func (d *Deduplicator) remove(ctx context.Context, entry frame.Entry) error {
	if d.DryRun {
		return nil
	}

	if d.Quarantine != "" {
		data, err := d.Storage.Get(ctx, entry.Key)
		if err != nil {
			return xerrors.Errorf("failed to read %s for quarantine: %w", entry.Key, err)
		}
		if _, err := d.Storage.Put(ctx, path.Join(d.Quarantine, entry.Name), data); err != nil {
			return xerrors.Errorf("failed to quarantine %s: %w", entry.Key, err)
		}
	}

	if err := d.Storage.Delete(ctx, entry.Key); err != nil {
		return xerrors.Errorf("failed to delete %s: %w", entry.Key, err)
	}
	return nil
}

func (d *Deduplicator) annotate(ctx context.Context, entry frame.Entry, img *image.Gray, contours []diffimage.Contour) error {
	var buffer bytes.Buffer
	if err := png.Encode(&buffer, diffimage.Annotate(img, contours)); err != nil {
		return xerrors.Errorf("failed to encode annotation: %w", err)
	}

	name := entry.Name[:len(entry.Name)-len(path.Ext(entry.Name))] + ".png"
	if _, err := d.Storage.Put(ctx, path.Join(d.AnnotatePrefix, name), buffer.Bytes()); err != nil {
		return xerrors.Errorf("failed to store annotation: %w", err)
	}
	return nil
}
