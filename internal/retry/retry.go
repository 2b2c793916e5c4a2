// Package retry runs upstream calls under a per-attempt timeout with a small,
// bounded number of attempts and jittered exponential backoff.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/jpillora/backoff"
)

type Policy struct {
	Attempts int
	Timeout  time.Duration
	Min      time.Duration
	Max      time.Duration
	Jitter   bool
}

func (p Policy) normalized() Policy {
	if p.Attempts <= 0 {
		p.Attempts = 1
	}
	if p.Min <= 0 {
		p.Min = 100 * time.Millisecond
	}
	if p.Max < p.Min {
		p.Max = p.Min
	}
	return p
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks an error that must not be retried.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// Do calls fn until it succeeds, returns a permanent error, the attempt budget
// runs out or ctx is done. The last error is returned.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	p = p.normalized()
	b := &backoff.Backoff{Min: p.Min, Max: p.Max, Factor: 2, Jitter: p.Jitter}

	var err error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		err = once(ctx, p.Timeout, fn)
		if err == nil {
			return nil
		}
		var perm permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if attempt == p.Attempts {
			break
		}
		timer := time.NewTimer(b.Duration())
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}

func once(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(actx)
}
