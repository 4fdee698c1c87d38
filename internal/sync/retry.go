package sync

import (
	"context"
	"fmt"
	"time"

	"mininter-gps-proxy/backend/internal/logging"
)

const (
	// maxAttempts is the job-level retry budget for one sync job.
	maxAttempts = 5
	// attemptTimeout bounds a single pipeline run.
	attemptTimeout = 300 * time.Second
	// baseBackoff doubles each attempt: 1s, 2s, 4s, 8s, 16s.
	baseBackoff = time.Second
)

// RetryPolicy controls job-level retries around Run.
type RetryPolicy struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
	BaseBackoff    time.Duration
	// OnFinalFailure runs exactly once, after the last attempt fails.
	OnFinalFailure func(ctx context.Context, municipalityID string, attempts int, err error)

	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy returns the standard exponential policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    maxAttempts,
		AttemptTimeout: attemptTimeout,
		BaseBackoff:    baseBackoff,
	}
}

// RunWithRetry runs the sync with bounded retries and exponential backoff.
// Skips and successes end the loop immediately; only errors burn attempts.
// After the final failed attempt the OnFinalFailure hook fires once and the
// last error is returned.
func (o *Orchestrator) RunWithRetry(ctx context.Context, municipalityID string, policy RetryPolicy) (Result, error) {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := policy.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var lastRes Result
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := policy.BaseBackoff << (attempt - 2)
			o.Logger.TransmissionRetry(ctx, municipalityID, attempt, delay.String())
			if err := sleep(ctx, delay); err != nil {
				return lastRes, err
			}
		}

		attemptCtx := ctx
		var cancel context.CancelFunc
		if policy.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, policy.AttemptTimeout)
		}
		lastRes, lastErr = o.Run(attemptCtx, municipalityID)
		if cancel != nil {
			cancel()
		}
		if lastErr == nil {
			return lastRes, nil
		}
		o.Logger.Warning(ctx, logging.ChannelSystem, "sync attempt failed", map[string]any{
			"municipality": municipalityID,
			"attempt":      attempt,
			"error":        lastErr.Error(),
		})
		if ctx.Err() != nil {
			return lastRes, ctx.Err()
		}
	}

	o.Logger.Error(ctx, logging.ChannelSystem, "sync exhausted all attempts", map[string]any{
		"municipality": municipalityID,
		"attempts":     attempts,
		"error":        lastErr.Error(),
	})
	if policy.OnFinalFailure != nil {
		policy.OnFinalFailure(ctx, municipalityID, attempts, lastErr)
	}
	return lastRes, fmt.Errorf("sync for %s failed after %d attempts: %w", municipalityID, attempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
