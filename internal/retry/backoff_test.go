package retry_test

import (
	"fmt"
	"frame-dedup/internal/retry"
	"math"
	"runtime"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func identity(i int64) int64 {
	return i
}

func TestDelay(t *testing.T) {
	type in struct {
		first uint
	}

	type want struct {
		first  time.Duration
		second bool
	}

	tests := []struct {
		name     string
		receiver retry.Backoff
		in       in
		want     want
	}{
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			retry.Never(),
			in{0},
			want{0, true},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			&retry.FullJitter{Base: time.Second, Max: time.Minute, MaxRetries: 0, Jitter: identity},
			in{0},
			want{0, true},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			&retry.FullJitter{Base: time.Second, Max: time.Minute, MaxRetries: 5, Jitter: identity},
			in{0},
			want{time.Second, false},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			&retry.FullJitter{Base: time.Second, Max: time.Minute, MaxRetries: 5, Jitter: identity},
			in{3},
			want{8 * time.Second, false},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			&retry.FullJitter{Base: time.Second, Max: 5 * time.Second, MaxRetries: 5, Jitter: identity},
			in{4},
			want{5 * time.Second, false},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			&retry.FullJitter{Base: time.Second, Max: 5 * time.Second, MaxRetries: 5, Jitter: identity},
			in{5},
			want{0, true},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			&retry.FullJitter{Base: math.MaxInt64, Max: math.MaxInt64, MaxRetries: 100, Jitter: identity},
			in{70},
			want{math.MaxInt64, false},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			&retry.FullJitter{Base: time.Hour, Max: math.MaxInt64, MaxRetries: 100, Jitter: identity},
			in{40},
			want{math.MaxInt64, false},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			&retry.FullJitter{Base: 0, Max: time.Second, MaxRetries: 1, Jitter: identity},
			in{0},
			want{0, false},
		},
	}
	for _, tt := range tests {
		name := tt.name
		receiver := tt.receiver
		in := tt.in
		want := tt.want
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, stop := receiver.Delay(in.first)
			if diff := cmp.Diff(want.first, got); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(want.second, stop); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}
}

func TestFullJitterDefaultRandom(t *testing.T) {
	b := retry.NewFullJitter(10*time.Millisecond, time.Second, 3)
	for i := uint(0); i < 3; i++ {
		delay, stop := b.Delay(i)
		if stop {
			t.Fatalf("Delay(%d) stopped early", i)
		}
		if delay < 0 || delay >= 10*time.Millisecond<<i {
			t.Errorf("Delay(%d) = %v out of range", i, delay)
		}
	}
}
