package domain

import (
	"time"
)

// Bounds enforced on subscription delivery limits. Values outside the range
// are clamped at create/update time, not rejected.
const (
	MinAttempts = 1
	MaxAttempts = 10

	MinTimeoutSeconds = 5
	MaxTimeoutSeconds = 120
)

// Header is a single static header attached to every delivery for a
// subscription. Order is preserved as configured.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Subscription is a tenant's registered webhook endpoint plus its delivery
// policy: which events it receives, signing secret, retry limits and the
// failure bookkeeping used for auto-disable.
type Subscription struct {
	ID                  string     `json:"id"`
	TenantID            string     `json:"tenant_id"`
	Name                string     `json:"name"`
	URL                 string     `json:"url"`
	Secret              string     `json:"secret,omitempty"`
	Headers             []Header   `json:"headers,omitempty"`
	EventTypes          []string   `json:"event_types"`
	MaxAttempts         int        `json:"max_attempts"`
	TimeoutSeconds      int        `json:"timeout_seconds"`
	RateLimitPerSecond  int        `json:"rate_limit_per_second"`
	Enabled             bool       `json:"enabled"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty"`
	LastFailureAt       *time.Time `json:"last_failure_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Timeout returns the per-attempt HTTP timeout for this subscription.
func (s *Subscription) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// SubscribesTo reports whether the subscription's event-type set contains the
// given event type.
func (s *Subscription) SubscribesTo(eventType string) bool {
	for _, et := range s.EventTypes {
		if et == eventType {
			return true
		}
	}
	return false
}

type CreateSubscriptionRequest struct {
	Name               string   `json:"name"`
	URL                string   `json:"url"`
	Secret             string   `json:"secret,omitempty"`
	Headers            []Header `json:"headers,omitempty"`
	EventTypes         []string `json:"event_types"`
	MaxAttempts        *int     `json:"max_attempts,omitempty"`
	TimeoutSeconds     *int     `json:"timeout_seconds,omitempty"`
	RateLimitPerSecond *int     `json:"rate_limit_per_second,omitempty"`
}

type UpdateSubscriptionRequest struct {
	Name               *string   `json:"name,omitempty"`
	URL                *string   `json:"url,omitempty"`
	Secret             *string   `json:"secret,omitempty"`
	Headers            *[]Header `json:"headers,omitempty"`
	EventTypes         *[]string `json:"event_types,omitempty"`
	MaxAttempts        *int      `json:"max_attempts,omitempty"`
	TimeoutSeconds     *int      `json:"timeout_seconds,omitempty"`
	RateLimitPerSecond *int      `json:"rate_limit_per_second,omitempty"`
	Enabled            *bool     `json:"enabled,omitempty"`
}

// ClampAttempts forces n into the [MinAttempts, MaxAttempts] range.
func ClampAttempts(n int) int {
	if n < MinAttempts {
		return MinAttempts
	}
	if n > MaxAttempts {
		return MaxAttempts
	}
	return n
}

// ClampTimeoutSeconds forces n into the [MinTimeoutSeconds, MaxTimeoutSeconds] range.
func ClampTimeoutSeconds(n int) int {
	if n < MinTimeoutSeconds {
		return MinTimeoutSeconds
	}
	if n > MaxTimeoutSeconds {
		return MaxTimeoutSeconds
	}
	return n
}
