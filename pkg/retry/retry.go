// Package retry runs infrastructure calls with exponential backoff and jitter.
// It is used for connecting to Postgres, Redis and Kafka at startup and for
// publishing events; domain operations are never retried.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryableError marks an error as safe to retry when no RetryIf predicate
// is configured.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

func isRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// Permanent stops the loop at once, even when RetryIf would accept err.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Config describes one retry policy.
type Config struct {
	MaxAttempts  int // including the first attempt
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64 // 0 = none, 1 = full

	// RetryIf decides whether an error is retried. When nil only
	// RetryableError is retried.
	RetryIf func(error) bool

	// OnRetry is called before each sleep.
	OnRetry func(attempt int, err error, delay time.Duration)
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

type Option func(*Config)

func WithMaxAttempts(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxAttempts = n
		}
	}
}

func WithInitialDelay(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.InitialDelay = d
		}
	}
}

func WithMaxDelay(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.MaxDelay = d
		}
	}
}

// WithJitter sets the randomization factor, 0 to 1.
func WithJitter(j float64) Option {
	return func(c *Config) {
		if j >= 0 && j <= 1 {
			c.JitterFactor = j
		}
	}
}

func WithRetryIf(fn func(error) bool) Option {
	return func(c *Config) { c.RetryIf = fn }
}

func WithOnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(c *Config) { c.OnRetry = fn }
}

// Retrier is a reusable policy.
type Retrier struct {
	config Config
}

func New(opts ...Option) *Retrier {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Retrier{config: cfg}
}

func (r *Retrier) policy(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = r.config.InitialDelay
	exp.MaxInterval = r.config.MaxDelay
	exp.Multiplier = r.config.Multiplier
	exp.RandomizationFactor = r.config.JitterFactor
	exp.MaxElapsedTime = 0
	exp.Reset()

	var b backoff.BackOff = exp
	if r.config.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(r.config.MaxAttempts-1))
	}
	return backoff.WithContext(b, ctx)
}

// Do runs operation until it succeeds, returns an error that is not
// retried, runs out of attempts or ctx is done. The returned error is the
// operation's own, without the Retryable wrapper.
func (r *Retrier) Do(ctx context.Context, operation func(ctx context.Context) error) error {
	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		err := operation(ctx)
		if err == nil {
			return nil
		}
		var perm *backoff.PermanentError
		if errors.As(err, &perm) || r.shouldRetry(err) {
			return err
		}
		return backoff.Permanent(err)
	}, r.policy(ctx), func(err error, delay time.Duration) {
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, err, delay)
		}
	})

	var re *RetryableError
	if errors.As(err, &re) {
		return re.Err
	}
	return err
}

func (r *Retrier) shouldRetry(err error) bool {
	if r.config.RetryIf != nil {
		return r.config.RetryIf(err)
	}
	return isRetryable(err)
}

func Do(ctx context.Context, operation func(ctx context.Context) error, opts ...Option) error {
	return New(opts...).Do(ctx, operation)
}

// DoWithData is Do for operations that return a value.
func DoWithData[T any](ctx context.Context, operation func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	var result T
	err := New(opts...).Do(ctx, func(ctx context.Context) error {
		var opErr error
		result, opErr = operation(ctx)
		return opErr
	})
	return result, err
}

// ConnectPolicy is used while dialing Postgres and Redis at startup. Every
// error is retried: a dependency that is still booting looks the same as a
// transient network failure.
func ConnectPolicy() []Option {
	return []Option{
		WithMaxAttempts(6),
		WithInitialDelay(500 * time.Millisecond),
		WithMaxDelay(8 * time.Second),
		WithJitter(0.2),
		WithRetryIf(func(error) bool { return true }),
	}
}

// PublishRetrier is used by the Kafka forwarder.
func PublishRetrier() *Retrier {
	return New(
		WithMaxAttempts(3),
		WithInitialDelay(100*time.Millisecond),
		WithMaxDelay(2*time.Second),
		WithJitter(0.1),
	)
}
