// Package preprocess turns decoded frames into masked, smoothed grayscale
// images of a fixed resolution so that two frames can be compared pixel by
// pixel.
//
// Grayscale uses the ITU-R BT.601 luma weights:
//
//	Y = 0.299*R + 0.587*G + 0.114*B
package preprocess

import (
	"errors"
	"image"
	"math"

	"github.com/disintegration/gift"
	"golang.org/x/xerrors"
)

var (
	ErrInvalidKernelSize = errors.New("gaussian kernel size must be odd and positive")
	ErrInvalidSize       = errors.New("canonical size must be positive")
	ErrEmptyImage        = errors.New("empty image")
)

type Config struct {
	Width       int
	Height      int
	KernelSizes []int
	Border      Border
}

func DefaultConfig() Config {
	return Config{
		Width:       640,
		Height:      480,
		KernelSizes: []int{3},
		Border:      DefaultBorder(),
	}
}

type Preprocessor struct {
	config Config
	resize *gift.GIFT
	filter *gift.GIFT
}

func New(c Config) (*Preprocessor, error) {
	if c.Width <= 0 || c.Height <= 0 {
		return nil, xerrors.Errorf("%dx%d: %w", c.Width, c.Height, ErrInvalidSize)
	}
	if err := c.Border.Validate(); err != nil {
		return nil, err
	}

	filters := []gift.Filter{gift.Grayscale()}
	for _, k := range c.KernelSizes {
		if k <= 0 || k%2 == 0 {
			return nil, xerrors.Errorf("kernel size %d: %w", k, ErrInvalidKernelSize)
		}
		filters = append(filters, gift.Convolution(GaussianKernel(k), false, false, false, 0))
	}

	return &Preprocessor{
		config: c,
		resize: gift.New(gift.Resize(c.Width, c.Height, gift.LinearResampling)),
		filter: gift.New(filters...),
	}, nil
}

func (p *Preprocessor) Config() Config {
	return p.config
}

// Resize scales img to the canonical resolution. img is not modified.
func (p *Preprocessor) Resize(img image.Image) (image.Image, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}

	dst := image.NewRGBA(p.resize.Bounds(img.Bounds()))
	p.resize.Draw(dst, img)
	return dst, nil
}

// Preprocess converts img to grayscale, applies each Gaussian pass in order
// and masks the border. The result is a new image; img is not modified.
func (p *Preprocessor) Preprocess(img image.Image) (*image.Gray, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}

	gray := image.NewGray(p.filter.Bounds(img.Bounds()))
	p.filter.Draw(gray, img)
	Mask(gray, p.config.Border)

	return gray, nil
}

// Normalize resizes and then preprocesses img.
func (p *Preprocessor) Normalize(img image.Image) (*image.Gray, error) {
	resized, err := p.Resize(img)
	if err != nil {
		return nil, err
	}
	return p.Preprocess(resized)
}

// Fixed kernels used for small apertures when sigma is derived from the size.
var smallGaussianKernels = map[int][]float64{
	1: {1},
	3: {0.25, 0.5, 0.25},
	5: {0.0625, 0.25, 0.375, 0.25, 0.0625},
	7: {0.03125, 0.109375, 0.21875, 0.28125, 0.21875, 0.109375, 0.03125},
}

// GaussianKernel1D returns a normalized kernel of size k with
// sigma = 0.3*((k-1)*0.5-1)+0.8.
func GaussianKernel1D(k int) []float64 {
	if kernel, ok := smallGaussianKernels[k]; ok {
		return append([]float64(nil), kernel...)
	}

	sigma := 0.3*(float64(k-1)*0.5-1) + 0.8
	scale := -0.5 / (sigma * sigma)
	kernel := make([]float64, k)
	sum := 0.0
	for i := range kernel {
		x := float64(i - (k-1)/2)
		kernel[i] = math.Exp(scale * x * x)
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

// GaussianKernel returns the k*k separable kernel in row-major order.
func GaussianKernel(k int) []float32 {
	k1 := GaussianKernel1D(k)
	kernel := make([]float32, 0, k*k)
	for _, y := range k1 {
		for _, x := range k1 {
			kernel = append(kernel, float32(x*y))
		}
	}
	return kernel
}
