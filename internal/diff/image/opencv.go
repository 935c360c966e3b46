//go:build opencv

package image

import (
	"image"

	"gocv.io/x/gocv"
	"golang.org/x/xerrors"
)

func init() {
	engines["opencv"] = func(c Config) (Differ, error) {
		d, err := NewOpenCVDiff(c)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
}

// OpenCVDiff runs the change detector through OpenCV. Results match
// ContourDiff and it is used to cross-check the native engine.
type OpenCVDiff struct {
	config Config
}

func NewOpenCVDiff(c Config) (*OpenCVDiff, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &OpenCVDiff{config: c}, nil
}

func (o *OpenCVDiff) Calculate(baseline *image.Gray, target *image.Gray) (*DiffResult, error) {
	if baseline.Bounds().Size() != target.Bounds().Size() {
		return nil, xerrors.Errorf("%v != %v: %w", baseline.Bounds().Size(), target.Bounds().Size(), ErrDimensionMismatch)
	}

	base, err := grayToMat(baseline)
	if err != nil {
		return nil, xerrors.Errorf("failed to convert baseline: %w", err)
	}
	defer base.Close()

	current, err := grayToMat(target)
	if err != nil {
		return nil, xerrors.Errorf("failed to convert target: %w", err)
	}
	defer current.Close()

	delta := gocv.NewMat()
	defer delta.Close()
	gocv.AbsDiff(base, current, &delta)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(delta, &thresh, float32(o.config.BinarizeThreshold), 255, gocv.ThresholdBinary)

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Point{X: 3, Y: 3})
	defer kernel.Close()
	for i := 0; i < o.config.DilateIterations; i++ {
		if err := gocv.Dilate(thresh, &thresh, kernel); err != nil {
			return nil, xerrors.Errorf("failed to dilate: %w", err)
		}
	}

	mask, err := thresh.ToImage()
	if err != nil {
		return nil, xerrors.Errorf("failed to convert mask: %w", err)
	}

	found := gocv.FindContours(thresh, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer found.Close()

	var contours []Contour
	score := 0.0
	for i := 0; i < found.Size(); i++ {
		pv := found.At(i)
		area := gocv.ContourArea(pv)
		if area < o.config.MinContourArea {
			continue
		}
		contours = append(contours, Contour{
			Points: pv.ToPoints(),
			Area:   area,
			Bounds: gocv.BoundingRect(pv),
		})
		score += area
	}

	return &DiffResult{
		Image:      mask,
		DiffAmount: score,
		Contours:   contours,
	}, nil
}

func grayToMat(img *image.Gray) (gocv.Mat, error) {
	bounds := img.Bounds()
	pix := make([]byte, 0, bounds.Dx()*bounds.Dy())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		pix = append(pix, img.Pix[img.PixOffset(bounds.Min.X, y):][:bounds.Dx()]...)
	}
	return gocv.NewMatFromBytes(bounds.Dy(), bounds.Dx(), gocv.MatTypeCV8UC1, pix)
}
