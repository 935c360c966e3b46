package main

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"flag"
	"fmt"
	"image"
	"image/png"
	"log"
	"os"
	"strconv"
	"time"

	"frame-dedup/internal/dedup"
	diffimage "frame-dedup/internal/diff/image"
	"frame-dedup/internal/frame"
	"frame-dedup/internal/preprocess"
	"frame-dedup/internal/storage"

	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

type CompareOutput struct {
	Score         float64 `json:"score"`
	Duplicate     bool    `json:"duplicate"`
	Contours      int     `json:"contours"`
	AnnotatedPath string  `json:"annotatedPath,omitempty"`
}

func envOrDefaultValue[T any](key string, defaultValue T) T {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}

	switch any(defaultValue).(type) {
	case string:
		return any(value).(T)
	case float64:
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return any(floatValue).(T)
		}
	case bool:
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return any(boolValue).(T)
		}
	}

	return defaultValue
}

func main() {
	var directory string
	var annotate bool
	var minContourArea float64
	var threshold float64
	var border string
	var engine string
	flag.StringVar(&directory, "directory", envOrDefaultValue("DIRECTORY", "/tmp"), "Output directory for the annotated target")
	flag.BoolVar(&annotate, "annotate", envOrDefaultValue("ANNOTATE", false), "Write the target with changed regions outlined")
	flag.Float64Var(&minContourArea, "min-contour-area", envOrDefaultValue("MIN_CONTOUR_AREA", 3000.0), "Smallest changed region that counts towards the score")
	flag.Float64Var(&threshold, "threshold", envOrDefaultValue("THRESHOLD", 4025.0), "Score below which the pair is a near duplicate")
	flag.StringVar(&border, "border", envOrDefaultValue("BORDER", preprocess.DefaultBorder().String()), "Masked margin as left,top,right,bottom percentages")
	flag.StringVar(&engine, "engine", envOrDefaultValue("ENGINE", "native"), "Change detector implementation (native or opencv)")

	flag.Parse()

	args := flag.Args()
	if len(args) < 2 {
		log.Fatalf("baseline, target not specified")
	}

	pipeline := dedup.DefaultPipeline()
	pipeline.Detect.MinContourArea = minContourArea
	pipeline.Engine = engine
	b, err := preprocess.ParseBorder(border)
	if err != nil {
		log.Fatalf("Invalid border: %v", err)
	}
	pipeline.Preprocess.Border = b

	preprocessor, differ, err := pipeline.Build()
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}

	ctx := context.Background()

	baselinePath := args[0]
	targetPath := args[1]

	var baselineImage image.Image
	var targetImage image.Image
	{
		var eg errgroup.Group

		eg.Go(func() error {
			img, err := loadFrame(baselinePath)
			if err != nil {
				return xerrors.Errorf("failed to load baseline image: %w", err)
			}
			baselineImage = img
			return nil
		})

		eg.Go(func() error {
			img, err := loadFrame(targetPath)
			if err != nil {
				return xerrors.Errorf("failed to load target image: %w", err)
			}
			targetImage = img
			return nil
		})

		if err := eg.Wait(); err != nil {
			log.Fatalf("%v", err)
		}
	}

	output, annotated, err := compare(preprocessor, differ, threshold, baselineImage, targetImage)
	if err != nil {
		log.Fatalf("Failed to compare frames: %v", err)
	}

	if annotate && annotated != nil {
		s, err := storage.NewFileStorage(ctx, storage.FileConfig{
			Directory: directory,
		})
		if err != nil {
			log.Fatalf("Failed to create storage backend: %v", err)
		}

		var buffer bytes.Buffer
		if err := png.Encode(&buffer, annotated); err != nil {
			log.Fatalf("Failed to encode annotated image: %v", err)
		}

		h := sha256.New()
		h.Write([]byte(baselinePath + targetPath))
		hash := fmt.Sprintf("%x", h.Sum(nil))[:16]

		key := fmt.Sprintf("Compare/annotated/%s/%s.png", hash, time.Now().Format("20060102150405"))
		output.AnnotatedPath, err = s.Put(ctx, key, buffer.Bytes())
		if err != nil {
			log.Fatalf("Failed to save annotated image: %v", err)
		}
	}

	if err := json.NewEncoder(os.Stdout).Encode(output); err != nil {
		log.Fatalf("Failed to encode result: %v", err)
	}
}

// compare scores the change from baseline to target. The annotated image is
// nil when no contour survived the area filter.
func compare(preprocessor *preprocess.Preprocessor, differ diffimage.Differ, threshold float64, baseline image.Image, target image.Image) (*CompareOutput, *image.RGBA, error) {
	baselineGray, err := preprocessor.Normalize(baseline)
	if err != nil {
		return nil, nil, xerrors.Errorf("failed to preprocess baseline: %w", err)
	}

	resized, err := preprocessor.Resize(target)
	if err != nil {
		return nil, nil, xerrors.Errorf("failed to resize target: %w", err)
	}
	targetGray, err := preprocessor.Preprocess(resized)
	if err != nil {
		return nil, nil, xerrors.Errorf("failed to preprocess target: %w", err)
	}

	result, err := differ.Calculate(baselineGray, targetGray)
	if err != nil {
		return nil, nil, err
	}

	output := &CompareOutput{
		Score:     result.DiffAmount,
		Duplicate: result.DiffAmount < threshold,
		Contours:  len(result.Contours),
	}
	if len(result.Contours) == 0 {
		return output, nil, nil
	}
	return output, diffimage.Annotate(resized, result.Contours), nil
}

func loadFrame(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return frame.Decode(path, data)
}
