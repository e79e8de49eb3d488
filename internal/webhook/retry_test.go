package webhook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_Delay(t *testing.T) {
	fixed := func(v float64) func() float64 { return func() float64 { return v } }

	b := DefaultBackoff
	b.Rand = fixed(0.5) // no spread
	assert.Equal(t, time.Minute, b.Delay(0))
	assert.Equal(t, time.Minute, b.Delay(-3))
	assert.Equal(t, 30*time.Minute, b.Delay(2))
	assert.Equal(t, 12*time.Hour, b.Delay(4))
	assert.Equal(t, 12*time.Hour, b.Delay(40))

	b.Rand = fixed(0)
	assert.Equal(t, 48*time.Second, b.Delay(0))
	b.Rand = fixed(1)
	assert.Equal(t, 72*time.Second, b.Delay(0))

	assert.Zero(t, Backoff{}.Delay(1))
}

func TestBackoff_DefaultJitterStaysInRange(t *testing.T) {
	for attempt, base := range DefaultBackoff.Delays {
		for range 20 {
			d := DefaultBackoff.Delay(attempt)
			assert.GreaterOrEqual(t, d, base*8/10)
			assert.LessOrEqual(t, d, base*12/10)
		}
	}
}

func TestExhausted(t *testing.T) {
	assert.False(t, Exhausted(0, DefaultMaxAttempts))
	assert.False(t, Exhausted(DefaultMaxAttempts-1, DefaultMaxAttempts))
	assert.True(t, Exhausted(DefaultMaxAttempts, DefaultMaxAttempts))
	assert.True(t, Exhausted(DefaultMaxAttempts+1, DefaultMaxAttempts))
}
