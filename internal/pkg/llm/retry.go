package llm

import (
	"context"
	"time"
)

// BackoffPolicy 指数退避：第 n 次重试前等待 Base * Multiplier^(n-1)，不超过 Max
type BackoffPolicy struct {
	Base       time.Duration
	Max        time.Duration
	Multiplier float64
}

// Delay retry 从 1 开始计数
func (p BackoffPolicy) Delay(retry int) time.Duration {
	if retry < 1 || p.Base <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 2
	}
	d := float64(p.Base)
	for i := 1; i < retry; i++ {
		d *= mult
		if p.Max > 0 && d >= float64(p.Max) {
			return p.Max
		}
	}
	delay := time.Duration(d)
	if p.Max > 0 && delay > p.Max {
		return p.Max
	}
	return delay
}

// RetryPolicy 重试策略
type RetryPolicy struct {
	// MaxAttempts 总尝试次数（含第一次），小于 1 时按 1 处理
	MaxAttempts int
	Backoff     BackoffPolicy
	// Sleep 可注入的等待函数，为空时使用基于 timer 的实现
	Sleep func(ctx context.Context, d time.Duration) error
}

// Attempt 执行 call（attempt 从 1 开始），在限流与瞬时错误上按退避策略重试。
// 返回最终结果、实际尝试次数与最后一次的错误（已分类为 *GatewayError）。
func Attempt[T any](ctx context.Context, model string, policy RetryPolicy, call func(ctx context.Context, attempt int) (T, error)) (T, int, error) {
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	sleep := policy.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var zero T
	var lastErr *GatewayError
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := call(ctx, attempt)
		if err == nil {
			return result, attempt, nil
		}
		lastErr = Classify(model, err)
		if !lastErr.Retryable() || attempt == maxAttempts {
			return zero, attempt, lastErr
		}

		delay := policy.Backoff.Delay(attempt)
		if lastErr.RetryAfter > delay {
			delay = lastErr.RetryAfter
			if policy.Backoff.Max > 0 && delay > policy.Backoff.Max {
				delay = policy.Backoff.Max
			}
		}
		if err := sleep(ctx, delay); err != nil {
			return zero, attempt, lastErr
		}
	}
	return zero, maxAttempts, lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
