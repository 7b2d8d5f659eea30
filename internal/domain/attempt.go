package domain

import (
	"time"
)

// Delivery attempt states. Each attempt row settles into exactly one of
// success, awaiting_retry or exhausted; pending is the in-flight state.
// A delivery chain terminates in success or exhausted and never leaves it.
const (
	StatusPending       = "pending"
	StatusSuccess       = "success"
	StatusFailure       = "failure"
	StatusAwaitingRetry = "awaiting_retry"
	StatusExhausted     = "exhausted"
)

// DeliveryAttempt is one row of the append-only delivery log: a single HTTP
// call made in pursuit of notifying one subscription of one event occurrence.
// Subscription name and URL are snapshotted at attempt time so deleting a
// subscription never corrupts history.
type DeliveryAttempt struct {
	ID                string     `json:"id"`
	EventID           string     `json:"event_id"`
	SubscriptionID    string     `json:"subscription_id"`
	TenantID          string     `json:"tenant_id"`
	SubscriptionName  string     `json:"subscription_name"`
	TargetURL         string     `json:"target_url"`
	EventType         string     `json:"event_type"`
	SubjectEntityID   string     `json:"subject_entity_id"`
	SubjectEntityType string     `json:"subject_entity_type"`
	Payload           []byte     `json:"payload,omitempty"`
	HTTPStatus        *int       `json:"http_status,omitempty"`
	ResponseBody      *string    `json:"response_body,omitempty"`
	ErrorMessage      *string    `json:"error_message,omitempty"`
	ResponseTimeMs    *int       `json:"response_time_ms,omitempty"`
	AttemptNumber     int        `json:"attempt_number"`
	Status            string     `json:"status"`
	NextRetryAt       *time.Time `json:"next_retry_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// IsTerminal reports whether the status ends a delivery chain.
func IsTerminal(status string) bool {
	return status == StatusSuccess || status == StatusExhausted
}
