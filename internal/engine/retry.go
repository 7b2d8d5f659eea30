package engine

import (
	"time"

	"github.com/workshoplabs/webhook-engine/internal/domain"
)

// RetryScheduler decides what happens to a delivery chain after a failed
// attempt: schedule a future retry or exhaust the chain.
type RetryScheduler struct {
	backoff Backoff
}

func NewRetryScheduler(backoff Backoff) *RetryScheduler {
	return &RetryScheduler{backoff: backoff}
}

// NextState classifies a failed attempt. If the chain has attempts left, the
// row becomes awaiting_retry with a backoff-delayed next_retry_at; otherwise
// it is exhausted and the chain terminates.
func (r *RetryScheduler) NextState(attemptNumber, maxAttempts int, now time.Time) (status string, nextRetryAt *time.Time) {
	if attemptNumber < maxAttempts {
		at := now.Add(r.backoff.Delay(attemptNumber))
		return domain.StatusAwaitingRetry, &at
	}
	return domain.StatusExhausted, nil
}
