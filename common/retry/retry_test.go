package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/felichat/felichat/common/retry"
)

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	calls := 0
	err := retry.Do(context.Background(), retry.Config{MaxAttempts: 3, Cooldown: time.Millisecond, MaxDelay: time.Millisecond}, func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestDo_RetriesOnFailure(t *testing.T) {
	calls := 0
	sentinel := errors.New("transient")
	err := retry.Do(context.Background(), retry.Config{MaxAttempts: 3, Cooldown: time.Millisecond, MaxDelay: time.Millisecond}, func() error {
		calls++
		if calls < 3 {
			return sentinel
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected nil after eventual success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDo_GivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	sentinel := errors.New("permanent")
	err := retry.Do(context.Background(), retry.Config{MaxAttempts: 3, Cooldown: time.Millisecond, MaxDelay: time.Millisecond}, func() error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDo_ShouldRetryPredicate(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0
	err := retry.Do(context.Background(), retry.Config{
		MaxAttempts: 3,
		Cooldown:    time.Millisecond,
		MaxDelay:    time.Millisecond,
		ShouldRetry: func(err error) bool { return !errors.Is(err, permanent) },
	}, func() error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call (no retry on permanent), got %d", calls)
	}
}

func TestDo_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	sentinel := errors.New("transient")

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := retry.Do(ctx, retry.Config{MaxAttempts: 3, Cooldown: 10 * time.Second, MaxDelay: 10 * time.Second}, func() error {
		calls++
		return sentinel
	})
	elapsed := time.Since(start)

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled in error chain, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call before cancellation, got %d", calls)
	}
	if elapsed > time.Second {
		t.Fatalf("cancellation should interrupt the wait, took %v", elapsed)
	}
}

func TestDelay_ExponentialGrowthWithCap(t *testing.T) {
	cfg := retry.Config{Cooldown: 2 * time.Second, Backoff: 1.5, MaxDelay: 10 * time.Second}

	d0 := cfg.Delay(0)
	d1 := cfg.Delay(1)
	d2 := cfg.Delay(2)

	// cooldown + 1.5^i seconds: 3s, 3.25s, 4.25s.
	if d0 != 3*time.Second {
		t.Errorf("Delay(0) = %v, want 3s", d0)
	}
	if d1 <= d0 || d2 <= d1 {
		t.Errorf("delays should grow: %v, %v, %v", d0, d1, d2)
	}

	// Large attempt indexes hit the ceiling.
	if d := cfg.Delay(20); d != 10*time.Second {
		t.Errorf("Delay(20) = %v, want MaxDelay 10s", d)
	}
}
