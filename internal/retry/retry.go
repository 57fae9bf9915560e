// Package retry executes remote calls under a bounded exponential backoff
// policy. Every failed attempt is logged and followed by a blocking sleep;
// there is no jitter and no circuit breaker.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ccgateway/logger"

	"github.com/cenkalti/backoff/v5"
)

// ErrRemoteCall is returned once every attempt of a call has failed or the
// venue rejected it permanently.
var ErrRemoteCall = errors.New("remote call failed")

// Policy bounds the number of attempts and shapes the delays between them.
type Policy struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	Multiplier   float64       `yaml:"multiplier"`
}

// DefaultPolicy makes five attempts sleeping 1s, 2s, 4s and 8s in between.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 5, InitialDelay: time.Second, Multiplier: 2}
}

func (p Policy) normalized() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = d.InitialDelay
	}
	if p.Multiplier <= 1 {
		p.Multiplier = d.Multiplier
	}
	return p
}

// Observer is told about every failed attempt that will be retried.
type Observer func(op string, attempt int, err error, delay time.Duration)

// Executor runs operations under a Policy.
type Executor struct {
	policy   Policy
	observer Observer
	log      *logger.Entry
}

// Option customises an Executor.
type Option func(*Executor)

// WithObserver registers fn to be called before each retry sleep.
func WithObserver(fn Observer) Option {
	return func(e *Executor) { e.observer = fn }
}

// New returns an Executor. Zero fields of p fall back to DefaultPolicy.
func New(p Policy, opts ...Option) *Executor {
	e := &Executor{
		policy: p.normalized(),
		log:    logger.GetLogger().WithComponent("retry"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the effective policy.
func (e *Executor) Policy() Policy { return e.policy }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

func (e *Executor) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.policy.InitialDelay
	b.Multiplier = e.policy.Multiplier
	b.RandomizationFactor = 0
	b.MaxInterval = time.Duration(1<<62 - 1)
	return b
}

// Do calls fn until it succeeds or the policy is exhausted. On exhaustion the
// last error is returned wrapped in ErrRemoteCall.
func Do[T any](ctx context.Context, e *Executor, op string, fn func(context.Context) (T, error)) (T, error) {
	if e == nil {
		e = New(DefaultPolicy())
	}
	attempt := 0
	res, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := fn(ctx)
		if err != nil {
			e.log.WithFields(logger.Fields{
				"operation": op,
				"attempt":   attempt,
				"max":       e.policy.MaxAttempts,
			}).WithError(err).Warn("remote call attempt failed")
		}
		return v, err
	},
		backoff.WithBackOff(e.backOff()),
		backoff.WithMaxTries(uint(e.policy.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, delay time.Duration) {
			if e.observer != nil {
				e.observer(op, attempt, err, delay)
			}
		}),
	)
	if err == nil {
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		err = errors.Join(err, ctxErr)
	}
	var zero T
	return zero, fmt.Errorf("%w: %s after %d attempt(s): %w", ErrRemoteCall, op, attempt, err)
}

// DoOrDefault behaves like Do but returns def instead of an error once the
// policy is exhausted.
func DoOrDefault[T any](ctx context.Context, e *Executor, op string, def T, fn func(context.Context) (T, error)) T {
	v, err := Do(ctx, e, op, fn)
	if err != nil {
		logger.GetLogger().WithComponent("retry").WithFields(logger.Fields{"operation": op}).
			WithError(err).Error("remote call exhausted, using default")
		return def
	}
	return v
}
