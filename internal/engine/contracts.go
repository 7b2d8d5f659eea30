package engine

import (
	"context"
	"time"

	"github.com/workshoplabs/webhook-engine/internal/domain"
	"github.com/workshoplabs/webhook-engine/internal/store"
)

// SubscriptionStore is the subscription access the engine needs. Implemented
// by *store.PostgresStore; tests supply in-memory fakes.
type SubscriptionStore interface {
	FindMatchingSubscriptions(ctx context.Context, tenantID, eventType string) ([]domain.Subscription, error)
	GetSubscription(ctx context.Context, tenantID, id string) (*domain.Subscription, error)
	IncrementFailures(ctx context.Context, subscriptionID string) (int, error)
	RecordDeliverySuccess(ctx context.Context, subscriptionID string) error
	DisableSubscription(ctx context.Context, subscriptionID string) error
}

// AttemptStore is the delivery-log access the engine needs.
type AttemptStore interface {
	InsertAttempt(ctx context.Context, a *domain.DeliveryAttempt) error
	ResolveAttempt(ctx context.Context, attemptID string, outcome store.AttemptOutcome) error
	DueRetries(ctx context.Context, now time.Time, limit int) ([]domain.DeliveryAttempt, error)
}

var (
	_ SubscriptionStore = (*store.PostgresStore)(nil)
	_ AttemptStore      = (*store.PostgresStore)(nil)
)
