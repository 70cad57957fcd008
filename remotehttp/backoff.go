package remotehttp

import (
	"math/rand"
	"time"
)

// delay computes the sleep before retry attempt n (zero-based), doubling
// from BaseDelay up to MaxDelay with symmetric jitter.
func (p RetryPolicy) delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultRetryPolicy.BaseDelay
	}
	max := p.MaxDelay
	if max <= 0 {
		max = DefaultRetryPolicy.MaxDelay
	}

	d := base << uint(attempt)
	if d > max || d <= 0 {
		d = max
	}
	return addJitter(d, p.Jitter)
}

func addJitter(d time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return d
	}
	if jitter > 1 {
		jitter = 1
	}
	spread := (rand.Float64()*2 - 1) * jitter * float64(d)
	out := time.Duration(float64(d) + spread)
	if out < 0 {
		return 0
	}
	return out
}
