// Package retry runs flaky network calls with bounded exponential backoff
// and jitter.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"memearena/internal/logger"
)

// Policy bounds one retried call.
type Policy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int
	// BaseDelay is the wait before the second attempt.
	BaseDelay time.Duration
	// Factor multiplies the delay after every failed attempt.
	Factor float64
	// Jitter randomizes each delay by +/- Jitter*delay.
	Jitter float64
	// MaxDelay caps a single wait. Zero means uncapped.
	MaxDelay time.Duration
}

// Preset policies mirroring the call sites they serve.
var (
	SwapPolicy  = Policy{Attempts: 4, BaseDelay: 600 * time.Millisecond, Factor: 2, Jitter: 0.25}
	RPCPolicy   = Policy{Attempts: 3, BaseDelay: 400 * time.Millisecond, Factor: 1.8, Jitter: 0.3}
	FetchPolicy = Policy{Attempts: 3, BaseDelay: 500 * time.Millisecond, Factor: 2, Jitter: 0.3}
	FeedPolicy  = Policy{Attempts: 4, BaseDelay: 500 * time.Millisecond, Factor: 2, Jitter: 0.3}
)

func (p Policy) normalized() Policy {
	if p.Attempts <= 0 {
		p.Attempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Millisecond
	}
	if p.Factor < 1 {
		p.Factor = 1
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Jitter > 1 {
		p.Jitter = 1
	}
	return p
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	p = p.normalized()
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.BaseDelay
	exp.Multiplier = p.Factor
	exp.RandomizationFactor = p.Jitter
	exp.MaxElapsedTime = 0
	if p.MaxDelay > 0 {
		exp.MaxInterval = p.MaxDelay
	} else {
		exp.MaxInterval = time.Duration(1<<62 - 1)
	}
	exp.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(p.Attempts-1)), ctx)
}

// Do calls fn until it succeeds, returns a Permanent error, the context is
// done, or the policy's attempts are used up. The last error is returned.
func Do(ctx context.Context, p Policy, label string, fn func(context.Context) error) error {
	attempt := 0
	op := func() error {
		attempt++
		return fn(ctx)
	}
	notify := func(err error, wait time.Duration) {
		logger.Debugf("retry %s: attempt %d failed (%v), next in %s", label, attempt, err, wait.Truncate(time.Millisecond))
	}
	return backoff.RetryNotify(op, p.backOff(ctx), notify)
}

// Value is Do for calls that produce a result.
func Value[T any](ctx context.Context, p Policy, label string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, p, label, func(c context.Context) error {
		v, err := fn(c)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}
