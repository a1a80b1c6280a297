// Package retry implements the bounded exponential backoff spec §4.5/§7
// require for network-bound steps (fetch/push/hosting-API calls): only
// errors classified copybaraerror.KindTransient are retried, everything
// else fails fast.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/copybara-oss/copybara/pkg/copybaraerror"
)

// Policy configures the backoff schedule.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultPolicy is a conservative default: 5 attempts, starting at 500ms,
// doubling up to a 30s cap.
var DefaultPolicy = Policy{
	MaxAttempts:  5,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     30 * time.Second,
	Multiplier:   2,
}

// Do calls fn, retrying with exponential backoff as long as fn's error is
// classified copybaraerror.KindTransient and attempts remain. Any other
// error (or success) returns immediately. The last error is returned if
// every attempt is exhausted.
func Do(ctx context.Context, log *slog.Logger, policy Policy, label string, fn func(ctx context.Context) error) error {
	if log == nil {
		log = slog.Default()
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultPolicy.MaxAttempts
	}
	delay := policy.InitialDelay
	if delay <= 0 {
		delay = DefaultPolicy.InitialDelay
	}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !copybaraerror.Retryable(err) {
			return err
		}
		if attempt == policy.MaxAttempts {
			break
		}

		log.Warn("retrying after transient error", "op", label, "attempt", attempt, "error", err, "delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * policy.Multiplier)
		if max := policy.MaxDelay; max > 0 && delay > max {
			delay = max
		}
	}
	return fmt.Errorf("%s: giving up after %d attempts: %w", label, policy.MaxAttempts, lastErr)
}
