package app

import (
	"context"
	"errors"
	"time"

	"github.com/numberport/golang_services/internal/core_porting/domain"
)

// RetryPolicy bounds the attempts made against one provider.
type RetryPolicy struct {
	MaxAttempts int
	// BaseDelay doubles after every failed attempt.
	BaseDelay time.Duration
	// CallTimeout caps a single provider call.
	CallTimeout time.Duration
	// RetryableCodes are provider-reported codes worth another attempt.
	RetryableCodes map[string]bool
}

// NewRetryPolicy builds a policy from the configured code whitelist.
func NewRetryPolicy(maxAttempts int, baseDelay, callTimeout time.Duration, retryableCodes []string) RetryPolicy {
	codes := make(map[string]bool, len(retryableCodes))
	for _, c := range retryableCodes {
		codes[c] = true
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return RetryPolicy{MaxAttempts: maxAttempts, BaseDelay: baseDelay, CallTimeout: callTimeout, RetryableCodes: codes}
}

// Backoff is the wait after the given failed attempt (1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	return p.BaseDelay << (attempt - 1)
}

// classify turns any error into a *domain.ProviderError with Retryable set
// according to the policy.
func (p RetryPolicy) classify(providerName string, err error) *domain.ProviderError {
	var pe *domain.ProviderError
	if errors.As(err, &pe) {
		cp := *pe
		if cp.IsNetworkError || p.RetryableCodes[cp.Code] {
			cp.Retryable = true
		}
		return &cp
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.ProviderError{Provider: providerName, Code: "TIMEOUT", Message: "provider call timed out", IsNetworkError: true, Retryable: true, Err: err}
	}
	return &domain.ProviderError{Provider: providerName, Code: "UNKNOWN", Message: "provider call failed", Err: err}
}

type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// withRetry calls fn until it succeeds, fails permanently or the policy is
// exhausted. It returns the number of calls made.
func withRetry[T any](ctx context.Context, policy RetryPolicy, sleep sleepFunc, providerName string, fn func(ctx context.Context) (T, error)) (T, int, error) {
	var zero T
	var lastErr *domain.ProviderError
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		callCtx := ctx
		cancel := func() {}
		if policy.CallTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, policy.CallTimeout)
		}
		res, err := fn(callCtx)
		cancel()
		if err == nil {
			smsAttemptsCounter.WithLabelValues(providerName, "success").Inc()
			return res, attempt, nil
		}

		lastErr = policy.classify(providerName, err)
		if !lastErr.Retryable {
			smsAttemptsCounter.WithLabelValues(providerName, "permanent_error").Inc()
			return zero, attempt, lastErr
		}
		smsAttemptsCounter.WithLabelValues(providerName, "transient_error").Inc()
		if attempt == policy.MaxAttempts {
			break
		}
		if err := sleep(ctx, policy.Backoff(attempt)); err != nil {
			return zero, attempt, lastErr
		}
	}
	return zero, policy.MaxAttempts, lastErr
}
