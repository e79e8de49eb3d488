package webhook

import (
	"math/rand/v2"
	"time"
)

// DefaultMaxAttempts is how many times a delivery is tried before it is
// marked exhausted.
const DefaultMaxAttempts = 5

// Backoff schedules redelivery. Delays[i] is the wait after the (i+1)th
// failure; later failures reuse the last entry.
type Backoff struct {
	Delays []time.Duration
	// Jitter spreads each delay by up to ±Jitter of its length.
	Jitter float64
	// Rand returns a value in [0,1). Defaults to math/rand/v2.
	Rand func() float64
}

// DefaultBackoff retries after 1m, 5m, 30m, 2h and 12h with ±20% jitter.
var DefaultBackoff = Backoff{
	Delays: []time.Duration{time.Minute, 5 * time.Minute, 30 * time.Minute, 2 * time.Hour, 12 * time.Hour},
	Jitter: 0.2,
}

// Delay returns the wait after failedAttempts failures (0 is the first).
func (b Backoff) Delay(failedAttempts int) time.Duration {
	if len(b.Delays) == 0 {
		return 0
	}
	base := b.Delays[max(0, min(failedAttempts, len(b.Delays)-1))]
	random := b.Rand
	if random == nil {
		random = rand.Float64
	}
	spread := (random()*2 - 1) * b.Jitter
	return base + time.Duration(float64(base)*spread)
}

// Exhausted reports whether attempts used up the budget.
func Exhausted(attempts, maxAttempts int) bool {
	return attempts >= maxAttempts
}
