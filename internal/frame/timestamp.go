package frame

import (
	"errors"
	"path"
	"strconv"
	"strings"
	"time"

	"golang.org/x/xerrors"
)

var ErrUnknownTimestampFormat = errors.New("unknown timestamp format")

// TimestampParser extracts a sort key from a frame file name.
type TimestampParser interface {
	Name() string
	Match(name string) bool
	Parse(name string) (int64, error)
}

// unixSuffix handles "name-<unixtimestamp>.ext".
type unixSuffix struct{}

func (unixSuffix) Name() string {
	return "unix-suffix"
}

func (unixSuffix) Match(name string) bool {
	return strings.Contains(name, "-")
}

func (unixSuffix) Parse(name string) (int64, error) {
	stem := strings.TrimSuffix(name, path.Ext(name))
	digits := stem[strings.LastIndex(stem, "-")+1:]
	if !isDigits(digits) {
		return 0, xerrors.Errorf("%s: %q is not a unix timestamp: %w", name, digits, ErrUnknownTimestampFormat)
	}

	timestamp, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, xerrors.Errorf("%s: %w", name, err)
	}
	return timestamp, nil
}

// cameraStamp handles "c<id>_<yyyy>_<mm>_<dd>__<hh>__<mm>__<ss>.ext".
type cameraStamp struct{}

const cameraStampLayout = "20060102150405"

func (cameraStamp) Name() string {
	return "camera-stamp"
}

func (cameraStamp) Match(name string) bool {
	return strings.Contains(name, "_")
}

func (cameraStamp) Parse(name string) (int64, error) {
	stem := strings.TrimSuffix(name, path.Ext(name))
	stem = strings.ReplaceAll(stem, "__", "_")

	_, stamp, ok := strings.Cut(stem, "_")
	if !ok {
		return 0, xerrors.Errorf("%s: %w", name, ErrUnknownTimestampFormat)
	}
	digits := strings.ReplaceAll(stamp, "_", "")
	if len(digits) != len(cameraStampLayout) || !isDigits(digits) {
		return 0, xerrors.Errorf("%s: %q is not yyyy_mm_dd_hh_mm_ss: %w", name, stamp, ErrUnknownTimestampFormat)
	}
	if _, err := time.Parse(cameraStampLayout, digits); err != nil {
		return 0, xerrors.Errorf("%s: invalid date: %w", name, ErrUnknownTimestampFormat)
	}

	timestamp, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, xerrors.Errorf("%s: %w", name, err)
	}
	return timestamp, nil
}

// Parsers are tried in order; the first whose Match reports true wins.
var Parsers = []TimestampParser{
	unixSuffix{},
	cameraStamp{},
}

func ParseTimestamp(name string) (int64, error) {
	name = path.Base(name)
	for _, p := range Parsers {
		if p.Match(name) {
			return p.Parse(name)
		}
	}
	return 0, xerrors.Errorf("%s: %w", name, ErrUnknownTimestampFormat)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
