package plate

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/xraph/plate/store"
)

// RetryPolicy bounds how often an operation that lost an optimistic race is
// run again.
type RetryPolicy struct {
	MaxAttempts     int           `json:"max_attempts" yaml:"max_attempts"`
	InitialInterval time.Duration `json:"initial_interval" yaml:"initial_interval"`
	MaxInterval     time.Duration `json:"max_interval" yaml:"max_interval"`
}

// DefaultRetryPolicy is three attempts with exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 10 * time.Millisecond,
		MaxInterval:     250 * time.Millisecond,
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		exp.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		exp.MaxInterval = p.MaxInterval
	}
	exp.MaxElapsedTime = 0
	retries := uint64(0)
	if p.MaxAttempts > 1 {
		retries = uint64(p.MaxAttempts - 1)
	}
	return backoff.WithContext(backoff.WithMaxRetries(exp, retries), ctx)
}

// inTx runs fn in a read-write transaction, running it again from scratch
// when it fails with CONCURRENT_MODIFICATION. Any other error ends the loop.
// fn must not leak state between attempts.
func (e *Engine) inTx(ctx context.Context, op string, fn store.TxFunc) error {
	attempt := 0
	operation := func() error {
		attempt++
		err := e.store.RunInTx(ctx, fn)
		if err == nil || IsRetryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, wait time.Duration) {
		e.logger.Debug("retrying after concurrent modification",
			"op", op,
			"attempt", attempt,
			"wait", wait,
		)
		e.plugins.EmitConflictRetry(ctx, op, attempt, err)
	}

	err := backoff.RetryNotify(operation, e.retry.backOff(ctx), notify)
	if IsRetryable(err) {
		return &DomainError{
			Code:    CodeConcurrentModification,
			Message: op + ": retries exhausted",
			Err:     err,
		}
	}
	return err
}

// inReadTx runs fn against a consistent read-only view.
func (e *Engine) inReadTx(ctx context.Context, fn store.TxFunc) error {
	return e.store.ReadTx(ctx, fn)
}
