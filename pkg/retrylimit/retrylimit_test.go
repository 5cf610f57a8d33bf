package retrylimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

type statusErr int

func (s statusErr) Error() string   { return "status" }
func (s statusErr) StatusCode() int { return int(s) }

func TestLimiterBounds(t *testing.T) {
	lim := NewAdaptiveLimiter(4, 1, 8, 2, 0.5)
	lim.cooldown = 0

	lim.Success()
	lim.Success()
	lim.Success()
	if got := lim.CurrentLimit(); got != 8 {
		t.Errorf("after successes limit = %v, want capped 8", got)
	}

	for i := 0; i < 10; i++ {
		lim.RateLimited()
	}
	if got := lim.CurrentLimit(); got != 1 {
		t.Errorf("after overloads limit = %v, want floor 1", got)
	}
}

func TestSuccessWithinCooldownKeepsRate(t *testing.T) {
	lim := NewAdaptiveLimiter(4, 1, 8, 2, 0.5)
	lim.RateLimited()
	lim.Success()
	if got := lim.CurrentLimit(); got != 2 {
		t.Errorf("limit = %v, want 2", got)
	}
}

func TestIsOverload(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{statusErr(429), true},
		{statusErr(503), true},
		{statusErr(404), false},
		{errors.New("plain"), false},
	}
	for _, tt := range tests {
		if got := IsOverload(tt.err); got != tt.want {
			t.Errorf("IsOverload(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestDoStopsOnSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 3, nil, func() error {
		calls++
		if calls < 2 {
			return statusErr(500)
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Errorf("Do() = %v after %d calls", err, calls)
	}
}

func TestDoPermanent(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := Do(context.Background(), 5, nil, func() error {
		calls++
		return &Permanent{Err: boom}
	})
	if !errors.Is(err, boom) || calls != 1 {
		t.Errorf("Do() = %v after %d calls", err, calls)
	}
}

func TestDoGivesUp(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 1, nil, func() error {
		calls++
		return statusErr(502)
	})
	var se StatusError
	if !errors.As(err, &se) || calls != 1 {
		t.Errorf("Do() = %v after %d calls", err, calls)
	}
}

func TestDoHonoursContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := Do(ctx, 10, nil, func() error { return errors.New("again") })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Do() = %v, want deadline exceeded", err)
	}
}
