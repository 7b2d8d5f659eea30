package engine

import (
	"time"
)

// Backoff computes the retry schedule: base delay doubled per failed attempt,
// capped at Max.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the wait before the attempt following failedAttempt
// (1-based). Delay(1) = Base, Delay(2) = 2*Base, and so on up to Max.
func (b Backoff) Delay(failedAttempt int) time.Duration {
	if failedAttempt < 1 {
		failedAttempt = 1
	}

	delay := b.Base
	for i := 1; i < failedAttempt; i++ {
		delay *= 2
		if delay >= b.Max {
			return b.Max
		}
	}
	if delay > b.Max {
		return b.Max
	}
	return delay
}
