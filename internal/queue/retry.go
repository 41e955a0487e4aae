package queue

import (
	"math/rand"
	"time"
)

// MaxAttempts is the fixed per-operation attempt cap. An operation that
// fails this many times is dropped from the queue and the user notified.
const MaxAttempts = 5

// RetryPolicy is an explicit backoff policy applied uniformly by the queue
// manager, independent of call site.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64 // fraction of the delay, 0..1
}

// DefaultRetryPolicy doubles the base delay per attempt, capped at two
// minutes, with 10% jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: MaxAttempts,
		BaseDelay:   2 * time.Second,
		MaxDelay:    2 * time.Minute,
		Jitter:      0.1,
	}
}

// Delay returns the backoff before the given attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay << (attempt - 1)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter > 0 {
		spread := float64(d) * p.Jitter
		d += time.Duration((rand.Float64()*2 - 1) * spread)
	}
	if d < 0 {
		d = 0
	}
	return d
}

// Exhausted reports whether the attempt counter has hit the cap.
func (p RetryPolicy) Exhausted(attempts int) bool {
	max := p.MaxAttempts
	if max == 0 {
		max = MaxAttempts
	}
	return attempts >= max
}
