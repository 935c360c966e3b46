//go:build opencv

package image

import (
	"image"
	"image/color"
	"testing"
)

func TestOpenCVDiffMatchesNative(t *testing.T) {
	img1 := createGrayTestImage(200, 150, 0)
	img2 := createGrayTestImage(200, 150, 0)
	fillRect(img2, image.Rect(20, 20, 90, 80), 255)
	fillRect(img2, image.Rect(120, 30, 125, 35), 255)
	fillRect(img2, image.Rect(40, 40, 60, 60), 0)
	img2.SetGray(180, 140, color.Gray{Y: 200})

	for _, c := range []Config{
		{BinarizeThreshold: 45, DilateIterations: 0, MinContourArea: 0},
		{BinarizeThreshold: 45, DilateIterations: 2, MinContourArea: 0},
		{BinarizeThreshold: 45, DilateIterations: 2, MinContourArea: 100},
	} {
		native, _ := NewDiffer("native", c)
		opencv, err := NewDiffer("opencv", c)
		if err != nil {
			t.Fatalf("NewDiffer returned error: %v", err)
		}

		want, err := native.Calculate(img1, img2)
		if err != nil {
			t.Fatalf("native Calculate returned error: %v", err)
		}
		got, err := opencv.Calculate(img1, img2)
		if err != nil {
			t.Fatalf("opencv Calculate returned error: %v", err)
		}

		if want.DiffAmount != got.DiffAmount {
			t.Errorf("%+v: native %f, opencv %f", c, want.DiffAmount, got.DiffAmount)
		}
		if len(want.Contours) != len(got.Contours) {
			t.Errorf("%+v: native %d contours, opencv %d", c, len(want.Contours), len(got.Contours))
		}
	}
}
