package scraper

import (
	"context"
	"time"

	"resalewatch/models"

	"github.com/sirupsen/logrus"
)

// CheckFunc performs one fetch+classify+extract attempt
type CheckFunc func(ctx context.Context, url, label string) (models.ExtractionResult, error)

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// RetryPolicy configures the bounded retry around a single page check
type RetryPolicy struct {
	// Delays are waited before each retry; attempts = len(Delays) + 1
	Delays []time.Duration
	// Sleep defaults to a context-aware timer
	Sleep SleepFunc
}

// DefaultRetryPolicy retries once after a short wait and once more after a longer one
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		Delays: []time.Duration{5 * time.Second, 15 * time.Second},
	}
}

// MaxAttempts returns the total number of attempts the policy allows
func (p *RetryPolicy) MaxAttempts() int {
	return len(p.Delays) + 1
}

// RetryOutcome is the last result obtained plus how many attempts it took
type RetryOutcome struct {
	Result   models.ExtractionResult
	Attempts int
}

// FetchWithRetry runs check until it yields a usable result, a blocked
// page, or the policy runs out of attempts. Blocked pages are never
// retried. The returned error is set only when the final attempt failed.
func FetchWithRetry(ctx context.Context, check CheckFunc, url, label string, policy *RetryPolicy, logger *logrus.Logger) (RetryOutcome, error) {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	sleep := policy.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	var outcome RetryOutcome
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts(); attempt++ {
		if attempt > 1 {
			delay := policy.Delays[attempt-2]
			logger.WithFields(logrus.Fields{
				"label":   label,
				"attempt": attempt,
				"delay":   delay,
			}).Info("🔄 Retrying page check")
			if err := sleep(ctx, delay); err != nil {
				return outcome, err
			}
		}

		result, err := check(ctx, url, label)
		outcome = RetryOutcome{Result: result, Attempts: attempt}
		lastErr = err

		if err != nil {
			logger.WithFields(logrus.Fields{
				"label":   label,
				"attempt": attempt,
			}).WithError(err).Warn("❌ Page check failed")
			continue
		}
		if result.Blocked {
			return outcome, nil
		}
		if result.Usable() {
			return outcome, nil
		}

		logger.WithFields(logrus.Fields{
			"label":      label,
			"attempt":    attempt,
			"has_resale": result.HasResaleSignal,
			"offers":     len(result.Offers),
		}).Debug("No usable listings on this attempt")
	}

	return outcome, lastErr
}

// SleepContext sleeps for d unless ctx is cancelled first
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
