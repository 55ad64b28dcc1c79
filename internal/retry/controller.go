// Package retry runs platform operations with bounded retries, exponential
// backoff and a fixed-window rate limit check before every attempt.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/web3-feed/pkg/logger"
	"github.com/web3-feed/pkg/ratelimit"
)

// Policy bounds the retry loop
type Policy struct {
	// MaxRetries is the total number of attempts, including the first one
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// MaxRateLimitWait caps a single wait for a rate limit window to reset
	MaxRateLimitWait time.Duration
}

// DefaultPolicy returns 3 attempts with 1s..10s backoff
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:       3,
		BaseDelay:        time.Second,
		MaxDelay:         10 * time.Second,
		MaxRateLimitWait: time.Minute,
	}
}

func (p Policy) normalized() Policy {
	d := DefaultPolicy()
	if p.MaxRetries < 1 {
		p.MaxRetries = d.MaxRetries
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	if p.MaxRateLimitWait <= 0 {
		p.MaxRateLimitWait = d.MaxRateLimitWait
	}
	return p
}

// Backoff returns the delay after the failed attempt with the given zero-based
// index: min(BaseDelay * 2^attempt, MaxDelay).
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := p.BaseDelay
	for i := 0; i < attempt; i++ {
		if delay >= p.MaxDelay/2 {
			return p.MaxDelay
		}
		delay *= 2
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// RateLimiter is the part of ratelimit.Limiter the controller consults
type RateLimiter interface {
	TryConsume(key string) bool
	WindowRemaining(key string) time.Duration
}

// Sleeper waits for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// ExhaustedError is returned once every attempt failed. It unwraps to the
// error of the final attempt.
type ExhaustedError struct {
	Key      string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: giving up after %d attempts: %v", e.Key, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Controller executes operations under a Policy
type Controller struct {
	policy      Policy
	limiter     RateLimiter
	sleep       Sleeper
	isRetryable func(error) bool
	log         *logger.Logger
}

// Option configures a Controller
type Option func(*Controller)

// WithSleeper replaces the real timer, mainly for tests
func WithSleeper(s Sleeper) Option {
	return func(c *Controller) {
		c.sleep = s
	}
}

// WithRetryable decides which errors are worth another attempt
func WithRetryable(fn func(error) bool) Option {
	return func(c *Controller) {
		c.isRetryable = fn
	}
}

// NewController creates a controller. A nil limiter disables rate limiting.
func NewController(policy Policy, limiter RateLimiter, log *logger.Logger, opts ...Option) *Controller {
	c := &Controller{
		policy:      policy.normalized(),
		limiter:     limiter,
		sleep:       sleepContext,
		isRetryable: func(error) bool { return true },
		log:         log.WithComponent("retry"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Policy returns the effective policy
func (c *Controller) Policy() Policy {
	return c.policy
}

// Execute runs op until it succeeds or the attempts are used up. Every attempt
// first takes budget from the rate limiter for key. It returns the number of
// attempts made.
func (c *Controller) Execute(ctx context.Context, key string, op func(ctx context.Context) error) (int, error) {
	log := c.log.WithPlatform(key)
	var lastErr error

	for attempt := 0; attempt < c.policy.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt, fmt.Errorf("%s: %w", key, err)
		}

		err := c.acquire(ctx, key, log)
		if err == nil {
			err = op(ctx)
			if err == nil {
				return attempt + 1, nil
			}
		} else if ctx.Err() != nil {
			return attempt, fmt.Errorf("%s: %w", key, ctx.Err())
		}

		lastErr = err
		log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Int("max_attempts", c.policy.MaxRetries).
			Msg("Attempt failed")

		if ctx.Err() != nil {
			return attempt + 1, fmt.Errorf("%s: %w", key, ctx.Err())
		}
		if !c.isRetryable(err) {
			return attempt + 1, err
		}
		if attempt == c.policy.MaxRetries-1 {
			break
		}

		delay := c.policy.Backoff(attempt)
		log.Debug().Dur("delay", delay).Msg("Backing off before retry")
		if err := c.sleep(ctx, delay); err != nil {
			return attempt + 1, fmt.Errorf("%s: %w", key, err)
		}
	}

	return c.policy.MaxRetries, &ExhaustedError{Key: key, Attempts: c.policy.MaxRetries, Err: lastErr}
}

// acquire takes one unit of budget, waiting at most once for the window to reset
func (c *Controller) acquire(ctx context.Context, key string, log *logger.Logger) error {
	if c.limiter == nil || c.limiter.TryConsume(key) {
		return nil
	}

	wait := c.limiter.WindowRemaining(key)
	if wait > c.policy.MaxRateLimitWait {
		wait = c.policy.MaxRateLimitWait
	}
	log.Info().Dur("wait", wait).Msg("Rate limit exceeded, waiting for window reset")

	if err := c.sleep(ctx, wait); err != nil {
		return err
	}
	if !c.limiter.TryConsume(key) {
		return fmt.Errorf("%s: %w", key, ratelimit.ErrRateLimited)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsExhausted reports whether err came from a controller that ran out of attempts
func IsExhausted(err error) bool {
	var ex *ExhaustedError
	return errors.As(err, &ex)
}
