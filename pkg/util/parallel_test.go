package util

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestParallelVisitsEveryInput(t *testing.T) {
	var sum atomic.Int64
	err := Parallel(context.Background(), []int{1, 2, 3, 4, 5}, 2, func(_ context.Context, n int) error {
		sum.Add(int64(n))
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if sum.Load() != 15 {
		t.Errorf("sum = %d, want 15", sum.Load())
	}
}

func TestParallelJoinsErrors(t *testing.T) {
	errOdd := errors.New("odd")
	var visited atomic.Int32
	err := Parallel(context.Background(), []int{1, 2, 3, 4}, 3, func(_ context.Context, n int) error {
		visited.Add(1)
		if n%2 == 1 {
			return errOdd
		}
		return nil
	})
	if !errors.Is(err, errOdd) {
		t.Errorf("err = %v, want errOdd", err)
	}
	if visited.Load() != 4 {
		t.Errorf("visited %d inputs, want 4 (no fail-fast)", visited.Load())
	}
}

func TestParallelRespectsLimit(t *testing.T) {
	var running, peak atomic.Int32
	inputs := make([]int, 20)
	_ = Parallel(context.Background(), inputs, 3, func(context.Context, int) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
		return nil
	})
	if peak.Load() > 3 {
		t.Errorf("peak concurrency %d > 3", peak.Load())
	}
}

func TestParallelEmpty(t *testing.T) {
	if err := Parallel(context.Background(), nil, 4, func(context.Context, string) error {
		t.Fatal("called for empty input")
		return nil
	}); err != nil {
		t.Fatal(err)
	}
}
