package frame

import (
	"bytes"
	"errors"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path"
	"slices"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"golang.org/x/xerrors"
)

var (
	ErrNoFrames = errors.New("no frames found")
	ErrDecode   = errors.New("failed to decode frame")
)

var DefaultExtensions = []string{".png"}

type Entry struct {
	Key       string `json:"key"`
	Name      string `json:"name"`
	Timestamp int64  `json:"timestamp"`
}

// Sequence filters keys by extension, parses their timestamps and returns
// them in non-decreasing timestamp order. Keys with equal timestamps keep
// their listing order.
func Sequence(keys []string, extensions []string) ([]Entry, error) {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}

	entries := make([]Entry, 0, len(keys))
	for _, key := range keys {
		name := path.Base(key)
		if !HasExtension(name, extensions) {
			continue
		}

		timestamp, err := ParseTimestamp(name)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{
			Key:       key,
			Name:      name,
			Timestamp: timestamp,
		})
	}

	if len(entries) == 0 {
		return nil, ErrNoFrames
	}

	slices.SortStableFunc(entries, func(a Entry, b Entry) int {
		switch {
		case a.Timestamp < b.Timestamp:
			return -1
		case a.Timestamp > b.Timestamp:
			return 1
		}
		return 0
	})

	return entries, nil
}

func HasExtension(name string, extensions []string) bool {
	ext := strings.ToLower(path.Ext(name))
	for _, e := range extensions {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

func ParseExtensions(s string) []string {
	var extensions []string
	for _, e := range strings.Split(s, ",") {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		extensions = append(extensions, e)
	}
	return extensions
}

func Decode(name string, data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, xerrors.Errorf("%s: %v: %w", name, err, ErrDecode)
	}
	return img, nil
}
