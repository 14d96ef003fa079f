package chatlink

import (
	"math"
	"time"
)

// backoff computes the delay before successive reconnect attempts:
// min(base * 2^attempt, max), with attempt 0 being the first retry.
// Delays are deterministic; there is no jitter.
type backoff struct {
	base time.Duration
	max  time.Duration
}

func newBackoff(base, max time.Duration) *backoff {
	return &backoff{base: base, max: max}
}

// delayFor returns the wait before retry number attempt (0-based).
func (b *backoff) delayFor(attempt int) time.Duration {
	d := time.Duration(math.Min(
		float64(b.base)*math.Pow(2, float64(attempt)),
		float64(b.max),
	))
	if d < 0 {
		return b.max
	}
	return d
}
