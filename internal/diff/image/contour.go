package image

import (
	"image"

	"github.com/disintegration/gift"
	"golang.org/x/xerrors"
)

type ContourDiff struct {
	config Config
	dilate *gift.GIFT
}

func NewContourDiff(c Config) (*ContourDiff, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	filters := make([]gift.Filter, 0, c.DilateIterations)
	for i := 0; i < c.DilateIterations; i++ {
		filters = append(filters, gift.Maximum(3, false))
	}

	return &ContourDiff{
		config: c,
		dilate: gift.New(filters...),
	}, nil
}

func (c *ContourDiff) Calculate(baseline *image.Gray, target *image.Gray) (*DiffResult, error) {
	if baseline.Bounds().Size() != target.Bounds().Size() {
		return nil, xerrors.Errorf("%v != %v: %w", baseline.Bounds().Size(), target.Bounds().Size(), ErrDimensionMismatch)
	}

	if baseline == target {
		return &DiffResult{
			Image:      image.NewGray(image.Rect(0, 0, baseline.Bounds().Dx(), baseline.Bounds().Dy())),
			DiffAmount: 0.0,
		}, nil
	}

	mask := c.binarize(baseline, target)
	if c.config.DilateIterations > 0 {
		dilated := image.NewGray(c.dilate.Bounds(mask.Bounds()))
		c.dilate.Draw(dilated, mask)
		mask = dilated
	}

	var contours []Contour
	score := 0.0
	for _, contour := range FindExternalContours(mask) {
		if contour.Area < c.config.MinContourArea {
			continue
		}
		contours = append(contours, contour)
		score += contour.Area
	}

	return &DiffResult{
		Image:      mask,
		DiffAmount: score,
		Contours:   contours,
	}, nil
}

func (c *ContourDiff) binarize(baseline *image.Gray, target *image.Gray) *image.Gray {
	bounds := baseline.Bounds()
	targetBounds := target.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	mask := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		baselineRow := baseline.Pix[baseline.PixOffset(bounds.Min.X, bounds.Min.Y+y):][:width]
		targetRow := target.Pix[target.PixOffset(targetBounds.Min.X, targetBounds.Min.Y+y):][:width]
		maskRow := mask.Pix[y*mask.Stride:][:width]

		for x := 0; x < width; x++ {
			delta := int(baselineRow[x]) - int(targetRow[x])
			if delta < 0 {
				delta = -delta
			}
			if delta > int(c.config.BinarizeThreshold) {
				maskRow[x] = 255
			}
		}
	}

	return mask
}
