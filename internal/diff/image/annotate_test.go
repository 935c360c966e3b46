package image

import (
	"image"
	"image/color"
	"testing"
)

func TestAnnotate(t *testing.T) {
	red := color.RGBA{R: 255, A: 255}

	t.Run("DrawsBoundingRectangle", func(t *testing.T) {
		target := createGrayTestImage(50, 50, 128)
		contours := []Contour{{Bounds: image.Rect(10, 10, 20, 20)}}

		result := Annotate(target, contours)

		if result.Bounds() != target.Bounds() {
			t.Fatalf("Expected bounds %v, got %v", target.Bounds(), result.Bounds())
		}
		for _, p := range []image.Point{{10, 10}, {19, 19}, {8, 15}, {21, 15}, {15, 8}} {
			if got := result.RGBAAt(p.X, p.Y); got != red {
				t.Errorf("Expected red at %v, got %v", p, got)
			}
		}
		for _, p := range []image.Point{{15, 15}, {11, 11}, {7, 15}, {22, 15}, {0, 0}} {
			if got := result.RGBAAt(p.X, p.Y); got == red {
				t.Errorf("Expected no annotation at %v", p)
			}
		}
	})

	t.Run("ClipsAtImageEdges", func(t *testing.T) {
		target := createGrayTestImage(20, 20, 0)
		contours := []Contour{{Bounds: image.Rect(0, 0, 20, 20)}}

		result := Annotate(target, contours)

		if got := result.RGBAAt(0, 0); got != red {
			t.Errorf("Expected red at origin, got %v", got)
		}
		if got := result.RGBAAt(10, 10); got == red {
			t.Errorf("Expected no annotation at centre")
		}
	})

	t.Run("LeavesTargetUntouched", func(t *testing.T) {
		target := createGrayTestImage(20, 20, 50)
		Annotate(target, []Contour{{Bounds: image.Rect(5, 5, 10, 10)}})

		for _, v := range target.Pix {
			if v != 50 {
				t.Fatalf("Annotate modified its input")
			}
		}
	})

	t.Run("NoContours", func(t *testing.T) {
		target := createGrayTestImage(10, 10, 200)
		result := Annotate(target, nil)

		if got := result.RGBAAt(5, 5); got != (color.RGBA{R: 200, G: 200, B: 200, A: 255}) {
			t.Errorf("Expected the original pixel, got %v", got)
		}
	})
}
