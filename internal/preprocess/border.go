package preprocess

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"strconv"
	"strings"

	"golang.org/x/xerrors"
)

var ErrInvalidBorder = errors.New("invalid border")

// Border is a margin, in percent of the image width (Left, Right) and height
// (Top, Bottom), that is blacked out before frames are compared.
type Border struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

func DefaultBorder() Border {
	return Border{Left: 5, Top: 10, Right: 5, Bottom: 0}
}

func (b Border) Validate() error {
	for _, v := range []float64{b.Left, b.Top, b.Right, b.Bottom} {
		if !(v >= 0 && v < 100) {
			return xerrors.Errorf("percentage %v out of [0, 100): %w", v, ErrInvalidBorder)
		}
	}
	if b.Left+b.Right >= 100 {
		return xerrors.Errorf("left+right = %v: %w", b.Left+b.Right, ErrInvalidBorder)
	}
	if b.Top+b.Bottom >= 100 {
		return xerrors.Errorf("top+bottom = %v: %w", b.Top+b.Bottom, ErrInvalidBorder)
	}
	return nil
}

// ParseBorder reads "left,top,right,bottom".
func ParseBorder(s string) (Border, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Border{}, xerrors.Errorf("%q: want left,top,right,bottom: %w", s, ErrInvalidBorder)
	}

	var values [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Border{}, xerrors.Errorf("%q: %v: %w", s, err, ErrInvalidBorder)
		}
		values[i] = v
	}

	b := Border{Left: values[0], Top: values[1], Right: values[2], Bottom: values[3]}
	if err := b.Validate(); err != nil {
		return Border{}, err
	}
	return b, nil
}

func (b Border) String() string {
	format := func(v float64) string {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join([]string{format(b.Left), format(b.Top), format(b.Right), format(b.Bottom)}, ",")
}

// Inner returns the rectangle left untouched by the mask.
func (b Border) Inner(bounds image.Rectangle) image.Rectangle {
	w := bounds.Dx()
	h := bounds.Dy()

	return image.Rect(
		bounds.Min.X+int(b.Left*float64(w)/100),
		bounds.Min.Y+int(b.Top*float64(h)/100),
		bounds.Max.X-int(b.Right*float64(w)/100),
		bounds.Max.Y-int(b.Bottom*float64(h)/100),
	)
}

// Mask blacks out everything outside b.Inner in place. The four strips may
// overlap in the corners.
func Mask(img *image.Gray, b Border) {
	bounds := img.Bounds()
	inner := b.Inner(bounds)
	black := &image.Uniform{C: color.Black}

	strips := []image.Rectangle{
		image.Rect(bounds.Min.X, bounds.Min.Y, inner.Min.X, bounds.Max.Y),
		image.Rect(bounds.Min.X, bounds.Min.Y, bounds.Max.X, inner.Min.Y),
		image.Rect(inner.Max.X, bounds.Min.Y, bounds.Max.X, bounds.Max.Y),
		image.Rect(bounds.Min.X, inner.Max.Y, bounds.Max.X, bounds.Max.Y),
	}
	for _, strip := range strips {
		if strip.Empty() {
			continue
		}
		draw.Draw(img, strip, black, image.Point{}, draw.Src)
	}
}
