package domain

import (
	"encoding/json"
	"time"
)

// Dispatch modes for domain events. Sync handlers run inside the caller's
// transaction and their errors propagate (inventory adjustments). Async
// handlers run fire-and-forget and can never fail the caller (webhooks).
const (
	DispatchSyncTransactional = "sync_transactional"
	DispatchAsyncBestEffort   = "async_best_effort"
)

// Event is a tenant-scoped domain event raised by the business layer.
type Event struct {
	ID          string          `json:"id"`
	TenantID    string          `json:"tenant_id"`
	EventType   string          `json:"event_type"`
	SubjectID   string          `json:"subject_id"`
	SubjectType string          `json:"subject_type"`
	Payload     json.RawMessage `json:"payload"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// EventTypes is the catalog of event types subscriptions may register for.
var EventTypes = []string{
	"order.created",
	"order.approved",
	"order.in_progress",
	"order.finished",
	"order.delivered",
	"order.canceled",
	"customer.created",
	"customer.updated",
	"vehicle.created",
	"vehicle.updated",
	"inventory.adjusted",
	"invoice.issued",
}

// ValidEventType reports whether t is in the supported catalog.
func ValidEventType(t string) bool {
	for _, et := range EventTypes {
		if et == t {
			return true
		}
	}
	return false
}
