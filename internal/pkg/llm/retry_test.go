package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

func recordingSleep(delays *[]time.Duration) func(ctx context.Context, d time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}
}

func TestBackoffDelay(t *testing.T) {
	p := BackoffPolicy{Base: time.Second, Max: 5 * time.Second, Multiplier: 2}
	cases := []struct {
		retry int
		want  time.Duration
	}{
		{0, 0},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 5 * time.Second},
		{10, 5 * time.Second},
	}
	for _, tc := range cases {
		if got := p.Delay(tc.retry); got != tc.want {
			t.Errorf("Delay(%d) = %v, want %v", tc.retry, got, tc.want)
		}
	}
}

func TestAttemptRetriesTransientThenSucceeds(t *testing.T) {
	var delays []time.Duration
	policy := RetryPolicy{
		MaxAttempts: 3,
		Backoff:     BackoffPolicy{Base: 10 * time.Millisecond, Max: time.Second, Multiplier: 2},
		Sleep:       recordingSleep(&delays),
	}
	calls := 0
	result, attempts, err := Attempt(context.Background(), "m", policy, func(ctx context.Context, attempt int) (string, error) {
		calls++
		if attempt < 3 {
			return "", &GatewayError{Kind: KindTransient, StatusCode: 503}
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" || attempts != 3 || calls != 3 {
		t.Fatalf("unexpected result=%q attempts=%d calls=%d", result, attempts, calls)
	}
	if len(delays) != 2 || delays[0] != 10*time.Millisecond || delays[1] != 20*time.Millisecond {
		t.Fatalf("unexpected delays: %v", delays)
	}
}

func TestAttemptStopsOnFatal(t *testing.T) {
	var delays []time.Duration
	policy := RetryPolicy{MaxAttempts: 5, Sleep: recordingSleep(&delays)}
	calls := 0
	_, attempts, err := Attempt(context.Background(), "m", policy, func(ctx context.Context, attempt int) (int, error) {
		calls++
		return 0, &GatewayError{Kind: KindFatal, StatusCode: 400, Message: "bad request"}
	})
	var gwErr *GatewayError
	if !errors.As(err, &gwErr) || gwErr.Kind != KindFatal {
		t.Fatalf("expected fatal gateway error, got %v", err)
	}
	if attempts != 1 || calls != 1 || len(delays) != 0 {
		t.Fatalf("fatal errors must not retry: attempts=%d calls=%d delays=%v", attempts, calls, delays)
	}
	if gwErr.Model != "m" {
		t.Errorf("expected model to be filled in, got %q", gwErr.Model)
	}
}

func TestAttemptExhaustsRateLimit(t *testing.T) {
	var delays []time.Duration
	policy := RetryPolicy{
		MaxAttempts: 3,
		Backoff:     BackoffPolicy{Base: time.Millisecond, Max: 50 * time.Millisecond},
		Sleep:       recordingSleep(&delays),
	}
	_, attempts, err := Attempt(context.Background(), "m", policy, func(ctx context.Context, attempt int) (int, error) {
		return 0, errors.New("error, status code: 429, message: Rate limit exceeded. Try again in 2s")
	})
	var gwErr *GatewayError
	if !errors.As(err, &gwErr) || gwErr.Kind != KindRateLimited {
		t.Fatalf("expected rate_limited error, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	// RetryAfter 2s 超过上限，按 Max 截断
	for _, d := range delays {
		if d != 50*time.Millisecond {
			t.Fatalf("expected delays capped at 50ms, got %v", delays)
		}
	}
}

func TestAttemptStopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	policy := RetryPolicy{
		MaxAttempts: 5,
		Backoff:     BackoffPolicy{Base: time.Hour},
	}
	_, attempts, err := Attempt(ctx, "m", policy, func(ctx context.Context, attempt int) (int, error) {
		calls++
		cancel()
		return 0, &GatewayError{Kind: KindTransient}
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 || attempts != 1 {
		t.Fatalf("expected to stop after first attempt, calls=%d attempts=%d", calls, attempts)
	}
}
