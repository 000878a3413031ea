package sync

import "time"

const (
	defaultMaxRetries = 5
	defaultBaseDelay  = 5 * time.Second
	defaultMaxDelay   = 300 * time.Second

	// maxDelayShift caps the exponent in the backoff computation to
	// prevent integer overflow of time.Duration.
	maxDelayShift = 10
)

// Policy controls the retry backoff applied to failed sync passes.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultPolicy returns the standard policy: 5 retries, 5s base delay
// doubling up to a 300s ceiling.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: defaultMaxRetries,
		BaseDelay:  defaultBaseDelay,
		MaxDelay:   defaultMaxDelay,
	}
}

// DelayFor returns the backoff delay for the given 0-indexed attempt:
// min(base * 2^attempt, max).
func (p Policy) DelayFor(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > maxDelayShift {
		attempt = maxDelayShift
	}

	delay := p.BaseDelay << uint(attempt)
	if delay > p.MaxDelay || delay <= 0 {
		return p.MaxDelay
	}

	return delay
}
