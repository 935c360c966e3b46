package retry

import (
	"errors"
	"math"
	"math/rand"
	"time"

	"golang.org/x/exp/constraints"
)

// Backoff returns the delay before attempt n+1, or stop when no further
// attempt should be made.
type Backoff interface {
	Delay(n uint) (delay time.Duration, stop bool)
}

type never struct{}

func Never() Backoff {
	return never{}
}

func (never) Delay(uint) (time.Duration, bool) {
	return 0, true
}

// Jitter draws a delay in [0, limit).
type Jitter func(limit int64) int64

// FullJitter is exponential backoff with full jitter:
// delay = rand(0, min(max, base * 2^n)).
type FullJitter struct {
	Base       time.Duration
	Max        time.Duration
	MaxRetries uint
	Jitter     Jitter
}

func NewFullJitter(base time.Duration, max time.Duration, maxRetries uint) *FullJitter {
	return &FullJitter{
		Base:       base,
		Max:        max,
		MaxRetries: maxRetries,
	}
}

func (f *FullJitter) Delay(n uint) (time.Duration, bool) {
	if n >= f.MaxRetries {
		return 0, true
	}

	ceiling := int64(f.Max)
	if n < 63 {
		if delay, err := checkedMul(int64(1)<<n, int64(f.Base)); err == nil {
			ceiling = lesser(delay, ceiling)
		}
	}
	if ceiling <= 0 {
		return 0, false
	}
	return time.Duration(f.jitter()(ceiling)), false
}

func (f *FullJitter) jitter() Jitter {
	if f.Jitter == nil {
		return rand.Int63n
	}
	return f.Jitter
}

func lesser[T constraints.Ordered](l T, r T) T {
	if l > r {
		return r
	}
	return l
}

var ErrOverflow = errors.New("overflow")

func checkedMul(l int64, r int64) (int64, error) {
	if l == 0 || r == 0 {
		return 0, nil
	}
	if l > math.MaxInt64/r {
		return 0, ErrOverflow
	}
	return l * r, nil
}
