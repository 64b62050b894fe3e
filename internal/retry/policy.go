// Package retry provides the bounded, fixed-backoff retry policy applied at every
// remote-call boundary (CRM reads and writes, warehouse queries).
package retry

import (
	"context"
	"time"

	goretry "github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// Policy retries an operation while Retryable reports the error as transient.
// MaxAttempts counts every attempt including the first one.
type Policy struct {
	MaxAttempts int
	Backoff     time.Duration
	Retryable   func(error) bool
	Logger      *zap.Logger
	// OnRetry is called before each backoff sleep
	OnRetry func(operation string, attempt int, err error)
}

// NewPolicy creates a policy with the given attempt bound, fixed backoff and error predicate
func NewPolicy(maxAttempts int, backoff time.Duration, retryable func(error) bool, logger *zap.Logger) *Policy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if backoff <= 0 {
		backoff = time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Policy{
		MaxAttempts: maxAttempts,
		Backoff:     backoff,
		Retryable:   retryable,
		Logger:      logger,
	}
}

// Do runs fn until it succeeds, returns a non-retryable error, or the attempt
// bound is exhausted. The last error is returned unwrapped. Backoff sleeps are
// not interrupted by ctx cancellation; the operation name is only used for logging.
func (p *Policy) Do(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	backoff := goretry.WithMaxRetries(uint64(p.MaxAttempts-1), goretry.NewConstant(p.Backoff))

	attempt := 0
	return goretry.Do(context.WithoutCancel(ctx), backoff, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if p.Retryable == nil || !p.Retryable(err) {
			return err
		}
		if attempt >= p.MaxAttempts {
			p.Logger.Error("operation failed after retries",
				zap.String("operation", operation),
				zap.Int("attempts", attempt),
				zap.Error(err))
			return err
		}
		if p.OnRetry != nil {
			p.OnRetry(operation, attempt, err)
		}
		p.Logger.Warn("transient failure, retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", p.MaxAttempts),
			zap.Duration("backoff", p.Backoff),
			zap.Error(err))
		return goretry.RetryableError(err)
	})
}
