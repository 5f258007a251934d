package retry

import "time"

// ExponentialBackoff returns delay based on attempt number.
// The delay doubles with each attempt: base * 2^attempt
func ExponentialBackoff(attempt int, base time.Duration) time.Duration {
	return base * (1 << attempt)
}

// CappedBackoff is ExponentialBackoff clamped to max, for probe loops that
// must not sleep unbounded.
func CappedBackoff(attempt int, base, max time.Duration) time.Duration {
	d := ExponentialBackoff(attempt, base)
	if d > max {
		return max
	}
	return d
}
