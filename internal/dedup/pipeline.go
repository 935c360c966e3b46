package dedup

import (
	diffimage "frame-dedup/internal/diff/image"
	"frame-dedup/internal/preprocess"

	"golang.org/x/xerrors"
)

// Pipeline gathers the settings of the preprocessor and the change detector.
type Pipeline struct {
	Preprocess preprocess.Config
	Detect     diffimage.Config
	Engine     string
}

func DefaultPipeline() Pipeline {
	return Pipeline{
		Preprocess: preprocess.DefaultConfig(),
		Detect:     diffimage.DefaultConfig(),
		Engine:     "native",
	}
}

func (p Pipeline) Build() (*preprocess.Preprocessor, diffimage.Differ, error) {
	preprocessor, err := preprocess.New(p.Preprocess)
	if err != nil {
		return nil, nil, xerrors.Errorf("failed to create preprocessor: %w", err)
	}

	differ, err := diffimage.NewDiffer(p.Engine, p.Detect)
	if err != nil {
		return nil, nil, xerrors.Errorf("failed to create differ: %w", err)
	}

	return preprocessor, differ, nil
}
