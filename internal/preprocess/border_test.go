package preprocess_test

import (
	"bytes"
	"errors"
	"frame-dedup/internal/preprocess"
	"image"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMaskIdempotent(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 100, 50))
	for i := range img.Pix {
		img.Pix[i] = uint8(i % 251)
	}

	b := preprocess.Border{Left: 5, Top: 10, Right: 7, Bottom: 20}

	preprocess.Mask(img, b)
	once := append([]byte(nil), img.Pix...)
	preprocess.Mask(img, b)

	if !bytes.Equal(once, img.Pix) {
		t.Errorf("Mask is not idempotent")
	}
}

func TestMaskRegions(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 100, 50))
	for i := range img.Pix {
		img.Pix[i] = 200
	}

	b := preprocess.Border{Left: 10, Top: 10, Right: 20, Bottom: 20}
	preprocess.Mask(img, b)

	if diff := cmp.Diff(image.Rect(10, 5, 80, 40), b.Inner(img.Bounds())); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}

	for y := 0; y < 50; y++ {
		for x := 0; x < 100; x++ {
			inside := image.Pt(x, y).In(image.Rect(10, 5, 80, 40))
			v := img.GrayAt(x, y).Y
			if inside && v != 200 {
				t.Fatalf("GrayAt(%d, %d) = %d inside the mask window", x, y, v)
			}
			if !inside && v != 0 {
				t.Fatalf("GrayAt(%d, %d) = %d outside the mask window", x, y, v)
			}
		}
	}
}

func TestMaskZeroBorder(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 10, 10))
	for i := range img.Pix {
		img.Pix[i] = 9
	}
	preprocess.Mask(img, preprocess.Border{})
	for _, v := range img.Pix {
		if v != 9 {
			t.Fatalf("Zero border modified the image")
		}
	}
}

func TestParseBorder(t *testing.T) {
	got, err := preprocess.ParseBorder("5, 10,5,0")
	if err != nil {
		t.Fatalf("ParseBorder returned error: %v", err)
	}
	if diff := cmp.Diff(preprocess.DefaultBorder(), got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if got.String() != "5,10,5,0" {
		t.Errorf("String() = %q", got.String())
	}

	for _, s := range []string{"5,10,5", "a,b,c,d", "-1,0,0,0", "0,50,0,50", "100,0,0,0", "NaN,10,5,0", "5,10,+Inf,0"} {
		if _, err := preprocess.ParseBorder(s); !errors.Is(err, preprocess.ErrInvalidBorder) {
			t.Errorf("ParseBorder(%q) error = %v, want ErrInvalidBorder", s, err)
		}
	}
}
