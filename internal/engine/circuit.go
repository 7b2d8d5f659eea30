package engine

import (
	"context"
	"log/slog"

	"github.com/workshoplabs/webhook-engine/internal/domain"
)

// FailureCircuit tracks consecutive delivery failures per subscription and
// auto-disables a subscription once the threshold is reached. The counter
// lives on the subscription row; the increment-and-read is a single UPDATE so
// concurrent failures cannot under-count. Only a successful delivery or an
// explicit reactivate resets the counter, and reactivate is the only way back
// in once disabled.
type FailureCircuit struct {
	subs      SubscriptionStore
	threshold int
	logger    *slog.Logger
}

func NewFailureCircuit(subs SubscriptionStore, threshold int, logger *slog.Logger) *FailureCircuit {
	return &FailureCircuit{
		subs:      subs,
		threshold: threshold,
		logger:    logger,
	}
}

// Threshold returns the consecutive-failure count that trips the circuit.
func (c *FailureCircuit) Threshold() int {
	return c.threshold
}

// RecordFailure increments the subscription's consecutive failure count and
// disables the subscription when the threshold is reached.
func (c *FailureCircuit) RecordFailure(ctx context.Context, sub *domain.Subscription) {
	count, err := c.subs.IncrementFailures(ctx, sub.ID)
	if err != nil {
		c.logger.Error("failed to record delivery failure",
			"subscription_id", sub.ID,
			"error", err,
		)
		return
	}

	if count < c.threshold {
		return
	}

	if err := c.subs.DisableSubscription(ctx, sub.ID); err != nil {
		c.logger.Error("failed to auto-disable subscription",
			"subscription_id", sub.ID,
			"error", err,
		)
		return
	}

	c.logger.Warn("subscription auto-disabled",
		"subscription_id", sub.ID,
		"tenant_id", sub.TenantID,
		"consecutive_failures", count,
		"threshold", c.threshold,
	)
}

// RecordSuccess resets the subscription's failure count and stamps the last
// success time.
func (c *FailureCircuit) RecordSuccess(ctx context.Context, sub *domain.Subscription) {
	if err := c.subs.RecordDeliverySuccess(ctx, sub.ID); err != nil {
		c.logger.Error("failed to reset failure count",
			"subscription_id", sub.ID,
			"error", err,
		)
	}
}
