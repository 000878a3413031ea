package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultPolicy(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy()

	assert.Equal(t, 5, p.MaxRetries)
	assert.Equal(t, 5*time.Second, p.BaseDelay)
	assert.Equal(t, 300*time.Second, p.MaxDelay)
}

func TestDelayForDoublesUntilCap(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy()

	want := []time.Duration{
		5 * time.Second,
		10 * time.Second,
		20 * time.Second,
		40 * time.Second,
		80 * time.Second,
		160 * time.Second,
		300 * time.Second,
		300 * time.Second,
	}

	for attempt, expected := range want {
		assert.Equal(t, expected, p.DelayFor(attempt), "attempt %d", attempt)
	}
}

func TestDelayForClampsExtremeAttempts(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy()

	assert.Equal(t, p.BaseDelay, p.DelayFor(-3))
	assert.Equal(t, p.MaxDelay, p.DelayFor(10))
	assert.Equal(t, p.MaxDelay, p.DelayFor(100000), "huge attempts must not overflow")
}
