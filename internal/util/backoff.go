// Package util provides shared utility functions.
package util

import (
	"math"
	"math/rand"
	"time"
)

// Backoff computes the exponential delay for a 1-based attempt number,
// capped at max.
func Backoff(base time.Duration, attempt int, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := math.Pow(2, float64(attempt-1))
	// Compare as float so large attempts cannot overflow Duration.
	f := float64(base) * mult
	if f > float64(max) {
		return max
	}
	return time.Duration(f)
}

// Jitter adds up to 25% random jitter so synchronized retries against a
// rate-limited upstream spread out.
func Jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	return d + time.Duration(rand.Int63n(int64(d/4)+1))
}

// ShortID returns a shortened version of an ID for log lines. If n is 0
// or negative, 8 is used.
func ShortID(id string, n int) string {
	if n <= 0 {
		n = 8
	}
	if len(id) <= n {
		return id
	}
	return id[:n]
}

// Truncate returns a truncated string with "..." if it exceeds maxLen.
// Unicode-safe, counting runes instead of bytes.
func Truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
