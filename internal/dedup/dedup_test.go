package dedup_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"frame-dedup/internal/dedup"
	diffimage "frame-dedup/internal/diff/image"
	"frame-dedup/internal/frame"
	"frame-dedup/internal/preprocess"
	"frame-dedup/internal/storage"

	"github.com/google/go-cmp/cmp"
)

func createFrame(background uint8, blocks ...image.Rectangle) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 160, 120))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{R: background, G: background, B: background, A: 255}}, image.Point{}, draw.Src)
	for _, block := range blocks {
		draw.Draw(img, block, &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	}
	return img
}

func writeFrame(t *testing.T, directory string, name string, img image.Image) string {
	t.Helper()

	var buffer bytes.Buffer
	if err := png.Encode(&buffer, img); err != nil {
		t.Fatalf("failed to encode frame: %v", err)
	}
	p := filepath.Join(directory, name)
	if err := os.WriteFile(p, buffer.Bytes(), 0644); err != nil {
		t.Fatalf("failed to write frame: %v", err)
	}
	return p
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

func newDeduplicator(t *testing.T, directory string) *dedup.Deduplicator {
	t.Helper()

	s, err := storage.NewFileStorage(context.Background(), storage.FileConfig{Directory: directory})
	if err != nil {
		t.Fatalf("NewFileStorage returned error: %v", err)
	}
	p, err := preprocess.New(preprocess.DefaultConfig())
	if err != nil {
		t.Fatalf("preprocess.New returned error: %v", err)
	}
	differ, err := diffimage.NewDiffer("native", diffimage.DefaultConfig())
	if err != nil {
		t.Fatalf("NewDiffer returned error: %v", err)
	}

	return &dedup.Deduplicator{
		Storage:      s,
		Preprocessor: p,
		Differ:       differ,
		Threshold:    4025,
	}
}

type fixedDiffer struct {
	score float64
}

func (f *fixedDiffer) Calculate(baseline *image.Gray, target *image.Gray) (*diffimage.DiffResult, error) {
	return &diffimage.DiffResult{Image: target, DiffAmount: f.score}, nil
}

func TestRunDeletesEarlierNearDuplicate(t *testing.T) {
	directory := t.TempDir()
	first := writeFrame(t, directory, "cam-100.png", createFrame(100))
	second := writeFrame(t, directory, "cam-200.png", createFrame(100))
	third := writeFrame(t, directory, "cam-300.png", createFrame(100, image.Rect(40, 30, 120, 90)))

	d := newDeduplicator(t, directory)
	report, err := d.RunPrefix(context.Background(), directory, nil)
	if err != nil {
		t.Fatalf("RunPrefix returned error: %v", err)
	}

	if diff := cmp.Diff([]string{first}, report.Deleted); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if report.Frames != 3 || report.Evaluated != 2 {
		t.Errorf("Expected 3 frames and 2 evaluations, got %d and %d", report.Frames, report.Evaluated)
	}
	if report.Decisions[0].Score != 0 || !report.Decisions[0].Duplicate {
		t.Errorf("Expected identical frames to score 0, got %+v", report.Decisions[0])
	}
	if report.Decisions[1].Score < d.Threshold || report.Decisions[1].Duplicate {
		t.Errorf("Expected a distinct frame, got %+v", report.Decisions[1])
	}

	if exists(first) {
		t.Errorf("Expected %s to be deleted", first)
	}
	if !exists(second) || !exists(third) {
		t.Errorf("Expected %s and %s to remain", second, third)
	}
}

func TestRunKeepsLastOfIdenticalRun(t *testing.T) {
	directory := t.TempDir()
	var keys []string
	for _, name := range []string{"a-5.png", "a-1.png", "a-3.png", "a-2.png", "a-4.png"} {
		keys = append(keys, writeFrame(t, directory, name, createFrame(80)))
	}

	entries, err := frame.Sequence(keys, nil)
	if err != nil {
		t.Fatalf("Sequence returned error: %v", err)
	}

	d := newDeduplicator(t, directory)
	report, err := d.Run(context.Background(), entries)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	want := []string{
		filepath.Join(directory, "a-1.png"),
		filepath.Join(directory, "a-2.png"),
		filepath.Join(directory, "a-3.png"),
		filepath.Join(directory, "a-4.png"),
	}
	if diff := cmp.Diff(want, report.Deleted); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if !exists(filepath.Join(directory, "a-5.png")) {
		t.Errorf("Expected the last frame to survive")
	}
}

func TestRunSingleFrame(t *testing.T) {
	directory := t.TempDir()
	only := writeFrame(t, directory, "a-1.png", createFrame(80))

	report, err := newDeduplicator(t, directory).RunPrefix(context.Background(), directory, nil)
	if err != nil {
		t.Fatalf("RunPrefix returned error: %v", err)
	}
	if report.Evaluated != 0 || len(report.Deleted) != 0 {
		t.Errorf("Expected nothing evaluated, got %+v", report)
	}
	if !exists(only) {
		t.Errorf("Expected the only frame to survive")
	}
}

func TestRunThresholdIsStrict(t *testing.T) {
	tests := []struct {
		name      string
		score     float64
		threshold float64
		deleted   int
	}{
		{"Equal", 4025, 4025, 0},
		{"Below", 4024.5, 4025, 1},
		{"Above", 5000, 4025, 0},
		{"ZeroThreshold", 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			directory := t.TempDir()
			writeFrame(t, directory, "a-1.png", createFrame(10))
			writeFrame(t, directory, "a-2.png", createFrame(10))

			d := newDeduplicator(t, directory)
			d.Differ = &fixedDiffer{score: tt.score}
			d.Threshold = tt.threshold

			report, err := d.RunPrefix(context.Background(), directory, nil)
			if err != nil {
				t.Fatalf("RunPrefix returned error: %v", err)
			}
			if len(report.Deleted) != tt.deleted {
				t.Errorf("Expected %d deletions, got %d", tt.deleted, len(report.Deleted))
			}
		})
	}
}

func TestRunDecodeFailure(t *testing.T) {
	setup := func(t *testing.T) (string, []string) {
		directory := t.TempDir()
		a := writeFrame(t, directory, "a-1.png", createFrame(50))
		b := filepath.Join(directory, "a-2.png")
		if err := os.WriteFile(b, []byte("not a png"), 0644); err != nil {
			t.Fatalf("failed to write frame: %v", err)
		}
		c := writeFrame(t, directory, "a-3.png", createFrame(50))
		return directory, []string{a, b, c}
	}

	t.Run("FailFast", func(t *testing.T) {
		directory, keys := setup(t)

		_, err := newDeduplicator(t, directory).RunPrefix(context.Background(), directory, nil)
		if !errors.Is(err, frame.ErrDecode) {
			t.Fatalf("Expected ErrDecode, got %v", err)
		}
		for _, key := range keys {
			if !exists(key) {
				t.Errorf("Expected %s to remain", key)
			}
		}
	})

	t.Run("Skip", func(t *testing.T) {
		directory, keys := setup(t)

		d := newDeduplicator(t, directory)
		d.SkipUndecodable = true
		report, err := d.RunPrefix(context.Background(), directory, nil)
		if err != nil {
			t.Fatalf("RunPrefix returned error: %v", err)
		}

		if diff := cmp.Diff([]string{keys[1]}, report.Skipped); diff != "" {
			t.Errorf("(-want +got):\n%s", diff)
		}
		// The base stays on the first frame across the skipped one.
		if diff := cmp.Diff([]string{keys[0]}, report.Deleted); diff != "" {
			t.Errorf("(-want +got):\n%s", diff)
		}
	})
}

// corruptingStorage serves key intact once and as garbage afterwards.
type corruptingStorage struct {
	storage.Storage
	key   string
	reads int
}

func (c *corruptingStorage) Get(ctx context.Context, url string) ([]byte, error) {
	if url == c.key {
		c.reads++
		if c.reads > 1 {
			return []byte("not a png"), nil
		}
	}
	return c.Storage.Get(ctx, url)
}

func TestRunBaseReloadFailure(t *testing.T) {
	setup := func(t *testing.T) (*dedup.Deduplicator, string, []string) {
		directory := t.TempDir()
		keys := []string{
			writeFrame(t, directory, "a-1.png", createFrame(50)),
			writeFrame(t, directory, "a-2.png", createFrame(50)),
			writeFrame(t, directory, "a-3.png", createFrame(50)),
		}
		d := newDeduplicator(t, directory)
		d.Storage = &corruptingStorage{Storage: d.Storage, key: keys[0]}
		return d, directory, keys
	}

	t.Run("FailFast", func(t *testing.T) {
		d, directory, keys := setup(t)

		_, err := d.RunPrefix(context.Background(), directory, nil)
		if !errors.Is(err, frame.ErrDecode) {
			t.Fatalf("Expected ErrDecode, got %v", err)
		}
		for _, key := range keys {
			if !exists(key) {
				t.Errorf("Expected %s to remain", key)
			}
		}
	})

	t.Run("SkipsTheBase", func(t *testing.T) {
		d, directory, keys := setup(t)
		d.SkipUndecodable = true

		report, err := d.RunPrefix(context.Background(), directory, nil)
		if err != nil {
			t.Fatalf("RunPrefix returned error: %v", err)
		}

		if diff := cmp.Diff([]string{keys[0]}, report.Skipped); diff != "" {
			t.Errorf("(-want +got):\n%s", diff)
		}
		// The current frame becomes the base and is compared with the next one.
		if diff := cmp.Diff([]string{keys[1]}, report.Deleted); diff != "" {
			t.Errorf("(-want +got):\n%s", diff)
		}
		if report.Evaluated != 1 {
			t.Errorf("Expected 1 evaluation, got %d", report.Evaluated)
		}
		if !exists(keys[2]) {
			t.Errorf("Expected %s to remain", keys[2])
		}
	})
}

func TestRunDryRun(t *testing.T) {
	directory := t.TempDir()
	a := writeFrame(t, directory, "a-1.png", createFrame(50))
	b := writeFrame(t, directory, "a-2.png", createFrame(50))

	d := newDeduplicator(t, directory)
	d.DryRun = true
	report, err := d.RunPrefix(context.Background(), directory, nil)
	if err != nil {
		t.Fatalf("RunPrefix returned error: %v", err)
	}

	if diff := cmp.Diff([]string{a}, report.Deleted); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if !report.DryRun || !exists(a) || !exists(b) {
		t.Errorf("Expected a dry run to leave every frame in place")
	}
}

func TestRunQuarantineAndAnnotate(t *testing.T) {
	directory := t.TempDir()
	input := filepath.Join(directory, "input")
	if err := os.MkdirAll(input, 0755); err != nil {
		t.Fatalf("failed to create input directory: %v", err)
	}
	a := writeFrame(t, input, "a-1.png", createFrame(50))
	writeFrame(t, input, "a-2.png", createFrame(50))
	writeFrame(t, input, "a-3.png", createFrame(50, image.Rect(20, 20, 100, 100)))

	d := newDeduplicator(t, directory)
	d.Quarantine = "quarantine"
	d.AnnotatePrefix = "annotations"
	if _, err := d.RunPrefix(context.Background(), "input", nil); err != nil {
		t.Fatalf("RunPrefix returned error: %v", err)
	}

	if exists(a) {
		t.Errorf("Expected %s to be deleted", a)
	}
	if !exists(filepath.Join(directory, "quarantine", "a-1.png")) {
		t.Errorf("Expected a quarantined copy of a-1.png")
	}
	if !exists(filepath.Join(directory, "annotations", "a-3.png")) {
		t.Errorf("Expected an annotation for a-3.png")
	}
	if exists(filepath.Join(directory, "annotations", "a-2.png")) {
		t.Errorf("Expected no annotation for an unchanged frame")
	}
}

func TestRunPrefixErrors(t *testing.T) {
	t.Run("NoFrames", func(t *testing.T) {
		directory := t.TempDir()
		if err := os.WriteFile(filepath.Join(directory, "notes-1.txt"), []byte("x"), 0644); err != nil {
			t.Fatalf("failed to write file: %v", err)
		}

		_, err := newDeduplicator(t, directory).RunPrefix(context.Background(), directory, nil)
		if !errors.Is(err, frame.ErrNoFrames) {
			t.Errorf("Expected ErrNoFrames, got %v", err)
		}
	})

	t.Run("UnknownTimestamp", func(t *testing.T) {
		directory := t.TempDir()
		writeFrame(t, directory, "frame.png", createFrame(0))

		_, err := newDeduplicator(t, directory).RunPrefix(context.Background(), directory, nil)
		if !errors.Is(err, frame.ErrUnknownTimestampFormat) {
			t.Errorf("Expected ErrUnknownTimestampFormat, got %v", err)
		}
	})

	t.Run("NegativeThreshold", func(t *testing.T) {
		directory := t.TempDir()
		writeFrame(t, directory, "a-1.png", createFrame(0))

		d := newDeduplicator(t, directory)
		d.Threshold = -1
		if _, err := d.RunPrefix(context.Background(), directory, nil); !errors.Is(err, dedup.ErrInvalidThreshold) {
			t.Errorf("Expected ErrInvalidThreshold, got %v", err)
		}
	})

	t.Run("Cancelled", func(t *testing.T) {
		directory := t.TempDir()
		writeFrame(t, directory, "a-1.png", createFrame(0))
		writeFrame(t, directory, "a-2.png", createFrame(0))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := newDeduplicator(t, directory).RunPrefix(ctx, directory, nil)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	})
}
