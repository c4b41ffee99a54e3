// Package retrylimit paces outbound REST traffic with a rate limit that
// adapts to how the remote side responds: the limit creeps up while requests
// succeed and collapses when the server pushes back. A small retry helper is
// layered on top for best-effort calls.
package retrylimit

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// AdaptiveLimiter wraps a token bucket whose refill rate moves between a
// floor and a ceiling based on request outcomes. Safe for concurrent use.
type AdaptiveLimiter struct {
	mu        sync.Mutex
	limiter   *rate.Limiter
	minLimit  rate.Limit
	maxLimit  rate.Limit
	stepUp    rate.Limit
	stepDown  float64
	lastError time.Time
}

// NewAdaptiveLimiter creates an AdaptiveLimiter.
//
// Parameters:
//   - initial: starting requests per second
//   - min: floor the limit never drops below
//   - max: ceiling the limit never exceeds
//   - stepUp: increment applied after a quiet stretch of successes
//   - stepDown: multiplier applied on pushback (e.g. 0.5 to halve)
func NewAdaptiveLimiter(initial, min, max rate.Limit, stepUp rate.Limit, stepDown float64) *AdaptiveLimiter {
	if initial < 1 {
		initial = 1
	}
	if min < 1 {
		min = 1
	}
	burst := int(initial)
	if burst < 1 {
		burst = 1
	}
	return &AdaptiveLimiter{
		limiter:  rate.NewLimiter(initial, burst),
		minLimit: min,
		maxLimit: max,
		stepUp:   stepUp,
		stepDown: stepDown,
	}
}

// Wait blocks until a token is available or the context is canceled.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return a.limiter.Wait(ctx)
}

// Success nudges the limit upward, but only once the last error is a while
// behind us.
func (a *AdaptiveLimiter) Success() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if time.Since(a.lastError) > 10*time.Second {
		a.setLimitLocked(a.limiter.Limit() + a.stepUp)
	}
}

// RateLimited collapses the limit after the server signalled overload.
func (a *AdaptiveLimiter) RateLimited() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastError = time.Now()
	a.setLimitLocked(rate.Limit(float64(a.limiter.Limit()) * a.stepDown))
}

// CurrentLimit returns the current requests per second.
func (a *AdaptiveLimiter) CurrentLimit() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return float64(a.limiter.Limit())
}

func (a *AdaptiveLimiter) setLimitLocked(l rate.Limit) {
	if l > a.maxLimit {
		l = a.maxLimit
	} else if l < a.minLimit {
		l = a.minLimit
	}
	if l != a.limiter.Limit() {
		a.limiter.SetLimit(l)
		a.limiter.SetBurst(max(1, int(l)))
	}
}

// HTTPError is implemented by errors that carry an HTTP status code. Errors
// without it are still retried, just never treated as pushback.
type HTTPError interface {
	error
	StatusCode() int
}

// FatalError wraps errors that should stop retries immediately.
type FatalError struct {
	Err error
}

func (f *FatalError) Error() string { return f.Err.Error() }
func (f *FatalError) Unwrap() error { return f.Err }

// WithRetryMax runs fn with jittered exponential backoff up to maxAttempts
// times, pacing attempts through lim when it is non-nil. It stops early on
// success, FatalError, or context cancellation.
func WithRetryMax(ctx context.Context, fn func() error, lim *AdaptiveLimiter, maxAttempts int) error {
	const (
		initialDelay = 500 * time.Millisecond
		maxDelay     = 10 * time.Second
	)
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	delay := initialDelay
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return err
			}
		}

		err := fn()
		if err == nil {
			if lim != nil {
				lim.Success()
			}
			return nil
		}

		if _, fatal := err.(*FatalError); fatal {
			return err
		}

		if isPushback(err) && lim != nil {
			lim.RateLimited()
			log.Printf("[Retry] Pushback (attempt %d). New limit: %.2f rps",
				attempt, lim.CurrentLimit())
		}
		if attempt == maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(addJitter(delay)):
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
	return fmt.Errorf("max attempts (%d) exceeded", maxAttempts)
}

// addJitter adds up to 25% extra delay to spread out concurrent retries.
func addJitter(delay time.Duration) time.Duration {
	if delay <= 0 {
		return delay
	}
	return delay + time.Duration(rand.Int63n(int64(delay/4)))
}

// isPushback reports whether the error is a 429 or a 5xx.
func isPushback(err error) bool {
	httpErr, ok := err.(HTTPError)
	if !ok {
		return false
	}
	code := httpErr.StatusCode()
	return code == http.StatusTooManyRequests || (code >= 500 && code < 600)
}
