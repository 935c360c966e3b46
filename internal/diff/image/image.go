package image

import (
	"errors"
	"image"
	"sort"

	"golang.org/x/xerrors"
)

var (
	ErrDimensionMismatch = errors.New("images have different dimensions")
	ErrNegativeArea      = errors.New("minimum contour area must not be negative")
	ErrInvalidIterations = errors.New("dilate iterations must not be negative")
	ErrUnknownEngine     = errors.New("unknown diff engine")
)

// Contour is the outer boundary of one connected region of changed pixels.
type Contour struct {
	Points []image.Point   `json:"-"`
	Area   float64         `json:"area"`
	Bounds image.Rectangle `json:"bounds"`
}

type DiffResult struct {
	// Image is the binarized and dilated change mask.
	Image image.Image
	// DiffAmount is the change score: the summed area of Contours.
	DiffAmount float64
	Contours   []Contour
}

type Differ interface {
	Calculate(baseline *image.Gray, target *image.Gray) (*DiffResult, error)
}

type Config struct {
	// Pixels whose absolute difference is greater than BinarizeThreshold are changed.
	BinarizeThreshold uint8
	DilateIterations  int
	MinContourArea    float64
}

func DefaultConfig() Config {
	return Config{
		BinarizeThreshold: 45,
		DilateIterations:  2,
		MinContourArea:    3000,
	}
}

func (c Config) Validate() error {
	if c.MinContourArea < 0 {
		return xerrors.Errorf("%v: %w", c.MinContourArea, ErrNegativeArea)
	}
	if c.DilateIterations < 0 {
		return xerrors.Errorf("%d: %w", c.DilateIterations, ErrInvalidIterations)
	}
	return nil
}

type Engine func(Config) (Differ, error)

var engines = map[string]Engine{
	"native": func(c Config) (Differ, error) {
		d, err := NewContourDiff(c)
		if err != nil {
			return nil, err
		}
		return d, nil
	},
}

func NewDiffer(engine string, c Config) (Differ, error) {
	e, ok := engines[engine]
	if !ok {
		return nil, xerrors.Errorf("%s (available: %v): %w", engine, Engines(), ErrUnknownEngine)
	}
	return e(c)
}

func Engines() []string {
	names := make([]string, 0, len(engines))
	for name := range engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
