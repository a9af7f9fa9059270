// Package retrier implements exponential backoff with jitter for transient
// failures such as a locked database file on startup.
package retrier

import (
	"context"
	"math/rand"
	"time"
)

const (
	defaultBaseDelay  = 1 * time.Second
	defaultMaxDelay   = 30 * time.Second
	defaultFactor     = 2.0
	defaultMaxRetries = 5
	defaultJitter     = 0.1
)

// Retrier retries an operation with exponentially growing delays.
type Retrier struct {
	baseDelay  time.Duration
	maxDelay   time.Duration
	factor     float64
	maxRetries int
	jitter     float64
}

// Option configures a Retrier.
type Option func(*Retrier)

// WithBaseDelay sets the delay before the first retry.
func WithBaseDelay(d time.Duration) Option {
	return func(r *Retrier) {
		r.baseDelay = d
	}
}

// WithMaxDelay caps the delay between retries.
func WithMaxDelay(d time.Duration) Option {
	return func(r *Retrier) {
		r.maxDelay = d
	}
}

// WithFactor sets the backoff growth factor.
func WithFactor(f float64) Option {
	return func(r *Retrier) {
		r.factor = f
	}
}

// WithMaxRetries sets how many retries follow the first attempt.
func WithMaxRetries(n int) Option {
	return func(r *Retrier) {
		r.maxRetries = n
	}
}

// WithJitter sets the jitter factor (0.0 to 1.0).
func WithJitter(j float64) Option {
	return func(r *Retrier) {
		r.jitter = j
	}
}

// New creates a Retrier with default values and optional overrides.
func New(opts ...Option) *Retrier {
	r := &Retrier{
		baseDelay:  defaultBaseDelay,
		maxDelay:   defaultMaxDelay,
		factor:     defaultFactor,
		maxRetries: defaultMaxRetries,
		jitter:     defaultJitter,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Do runs fn until it succeeds, the retry budget is spent or ctx is
// cancelled. The last error is returned when all attempts fail.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	delay := r.baseDelay

	var err error
	for attempt := 0; ; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == r.maxRetries {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.withJitter(delay)):
		}

		delay = time.Duration(float64(delay) * r.factor)
		if delay > r.maxDelay {
			delay = r.maxDelay
		}
	}
}

func (r *Retrier) withJitter(delay time.Duration) time.Duration {
	offset := (rand.Float64()*2 - 1) * r.jitter * float64(delay)
	jittered := time.Duration(float64(delay) + offset)
	if jittered < 0 {
		return 0
	}
	return jittered
}

// DoWithData runs fn with retries and returns its value.
func DoWithData[T any](r *Retrier, ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, func(ctx context.Context) error {
		var e error
		result, e = fn(ctx)
		return e
	})
	return result, err
}
