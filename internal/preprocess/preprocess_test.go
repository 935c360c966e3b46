package preprocess_test

import (
	"errors"
	"fmt"
	"frame-dedup/internal/preprocess"
	"image"
	"image/color"
	"image/draw"
	"math"
	"runtime"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func createTestImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}

func TestNew(t *testing.T) {
	type in struct {
		first preprocess.Config
	}

	tests := []struct {
		name      string
		in        in
		wantError error
	}{
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{
				preprocess.DefaultConfig(),
			},
			nil,
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{
				preprocess.Config{Width: 640, Height: 480, KernelSizes: nil, Border: preprocess.DefaultBorder()},
			},
			nil,
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{
				preprocess.Config{Width: 640, Height: 480, KernelSizes: []int{3, 4}, Border: preprocess.DefaultBorder()},
			},
			preprocess.ErrInvalidKernelSize,
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{
				preprocess.Config{Width: 640, Height: 480, KernelSizes: []int{0}, Border: preprocess.DefaultBorder()},
			},
			preprocess.ErrInvalidKernelSize,
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{
				preprocess.Config{Width: 0, Height: 480, KernelSizes: []int{3}, Border: preprocess.DefaultBorder()},
			},
			preprocess.ErrInvalidSize,
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{
				preprocess.Config{Width: 640, Height: 480, KernelSizes: []int{3}, Border: preprocess.Border{Left: 60, Right: 40}},
			},
			preprocess.ErrInvalidBorder,
		},
	}

	for _, tt := range tests {
		name := tt.name
		in := tt.in
		wantError := tt.wantError
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := preprocess.New(in.first)
			if !errors.Is(err, wantError) {
				t.Errorf("(-want +got):\n%v\n%v", wantError, err)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	p, err := preprocess.New(preprocess.DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to create preprocessor: %v", err)
	}

	t.Run("CanonicalResolution", func(t *testing.T) {
		for _, size := range []image.Point{{1920, 1080}, {320, 240}, {640, 480}, {17, 9}} {
			got, err := p.Normalize(createTestImage(size.X, size.Y, color.RGBA{R: 200, G: 100, B: 50, A: 255}))
			if err != nil {
				t.Fatalf("Normalize(%v) returned error: %v", size, err)
			}
			if got.Bounds().Dx() != 640 || got.Bounds().Dy() != 480 {
				t.Errorf("Normalize(%v) bounds = %v, want 640x480", size, got.Bounds())
			}
		}
	})

	t.Run("OriginalUntouched", func(t *testing.T) {
		img := createTestImage(640, 480, color.White)
		if _, err := p.Normalize(img); err != nil {
			t.Fatalf("Normalize returned error: %v", err)
		}
		for _, v := range img.Pix {
			if v != 255 {
				t.Fatalf("Input image was modified")
			}
		}
	})

	t.Run("BorderIsBlack", func(t *testing.T) {
		got, err := p.Normalize(createTestImage(640, 480, color.White))
		if err != nil {
			t.Fatalf("Normalize returned error: %v", err)
		}

		// left 5% = 32 columns, top 10% = 48 rows, right 5% = 32 columns
		for _, pt := range []image.Point{{0, 240}, {31, 240}, {320, 0}, {320, 47}, {608, 240}, {639, 479}} {
			if v := got.GrayAt(pt.X, pt.Y).Y; v != 0 {
				t.Errorf("GrayAt(%v) = %d, want 0", pt, v)
			}
		}
		for _, pt := range []image.Point{{32, 48}, {320, 240}, {607, 479}} {
			if v := got.GrayAt(pt.X, pt.Y).Y; v < 254 {
				t.Errorf("GrayAt(%v) = %d, want white", pt, v)
			}
		}
	})

	t.Run("LumaWeights", func(t *testing.T) {
		unmasked, err := preprocess.New(preprocess.Config{Width: 8, Height: 8, Border: preprocess.Border{}})
		if err != nil {
			t.Fatalf("Failed to create preprocessor: %v", err)
		}

		got, err := unmasked.Normalize(createTestImage(8, 8, color.RGBA{R: 255, A: 255}))
		if err != nil {
			t.Fatalf("Normalize returned error: %v", err)
		}
		// 0.299 * 255 = 76.245
		if v := got.GrayAt(4, 4).Y; v < 75 || v > 77 {
			t.Errorf("GrayAt(4, 4) = %d, want ~76", v)
		}
	})

	t.Run("Empty", func(t *testing.T) {
		_, err := p.Normalize(image.NewRGBA(image.Rect(0, 0, 0, 0)))
		if !errors.Is(err, preprocess.ErrEmptyImage) {
			t.Errorf("Expected ErrEmptyImage, got %v", err)
		}
	})
}

func TestPreprocessSmoothing(t *testing.T) {
	c := preprocess.Config{Width: 16, Height: 16, KernelSizes: []int{3}, Border: preprocess.Border{}}
	p, err := preprocess.New(c)
	if err != nil {
		t.Fatalf("Failed to create preprocessor: %v", err)
	}

	img := createTestImage(16, 16, color.Black)
	img.Set(8, 8, color.White)

	got, err := p.Preprocess(img)
	if err != nil {
		t.Fatalf("Preprocess returned error: %v", err)
	}

	// 3x3 kernel: centre weight 0.25, edge 0.125, corner 0.0625
	want := map[image.Point]uint8{
		{8, 8}:  64,
		{7, 8}:  32,
		{8, 9}:  32,
		{9, 9}:  16,
		{10, 8}: 0,
	}
	for pt, w := range want {
		if v := got.GrayAt(pt.X, pt.Y).Y; int(v)-int(w) > 1 || int(w)-int(v) > 1 {
			t.Errorf("GrayAt(%v) = %d, want %d", pt, v, w)
		}
	}
}

func TestGaussianKernel1D(t *testing.T) {
	for _, k := range []int{1, 3, 5, 7, 9, 15} {
		kernel := preprocess.GaussianKernel1D(k)
		if len(kernel) != k {
			t.Fatalf("len(GaussianKernel1D(%d)) = %d", k, len(kernel))
		}

		sum := 0.0
		for i, v := range kernel {
			sum += v
			if math.Abs(v-kernel[k-1-i]) > 1e-12 {
				t.Errorf("GaussianKernel1D(%d) is not symmetric", k)
			}
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Errorf("GaussianKernel1D(%d) sums to %v", k, sum)
		}
	}

	if diff := cmp.Diff([]float64{0.25, 0.5, 0.25}, preprocess.GaussianKernel1D(3)); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}
