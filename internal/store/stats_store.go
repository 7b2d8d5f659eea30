package store

import (
	"context"
	"fmt"

	"github.com/workshoplabs/webhook-engine/internal/domain"
)

// DeliveryStats holds the tenant-scoped aggregate numbers exposed by the
// observability API.
type DeliveryStats struct {
	ActiveSubscriptions   int     `json:"active_subscriptions"`
	InactiveSubscriptions int     `json:"inactive_subscriptions"`
	SuccessLast24h        int     `json:"success_last_24h"`
	FailureLast24h        int     `json:"failure_last_24h"`
	AvgResponseMs         float64 `json:"avg_response_ms"`
	AwaitingRetry         int     `json:"awaiting_retry"`
}

// GetDeliveryStats returns aggregated delivery statistics for one tenant.
func (s *PostgresStore) GetDeliveryStats(ctx context.Context, tenantID string) (*DeliveryStats, error) {
	var stats DeliveryStats

	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE enabled = true)  AS active,
			COUNT(*) FILTER (WHERE enabled = false) AS inactive
		FROM subscriptions
		WHERE tenant_id = $1
	`, tenantID).Scan(&stats.ActiveSubscriptions, &stats.InactiveSubscriptions)
	if err != nil {
		return nil, fmt.Errorf("querying subscription counts: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = $2 AND created_at > NOW() - INTERVAL '24 hours') AS success_24h,
			COUNT(*) FILTER (WHERE status IN ($3, $4) AND created_at > NOW() - INTERVAL '24 hours') AS failure_24h,
			COALESCE(AVG(response_time_ms) FILTER (WHERE response_time_ms > 0), 0) AS avg_response_ms
		FROM delivery_attempts
		WHERE tenant_id = $1
	`, tenantID, domain.StatusSuccess, domain.StatusAwaitingRetry, domain.StatusExhausted).Scan(
		&stats.SuccessLast24h, &stats.FailureLast24h, &stats.AvgResponseMs,
	)
	if err != nil {
		return nil, fmt.Errorf("querying delivery stats: %w", err)
	}

	// Only chains still waiting on a retry count here, not rows that a later
	// attempt already superseded.
	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM delivery_attempts a
		WHERE a.tenant_id = $1
		  AND a.status = $2
		  AND NOT EXISTS (
			SELECT 1 FROM delivery_attempts b
			WHERE b.event_id = a.event_id
			  AND b.subscription_id = a.subscription_id
			  AND b.attempt_number > a.attempt_number
		  )
	`, tenantID, domain.StatusAwaitingRetry).Scan(&stats.AwaitingRetry)
	if err != nil {
		return nil, fmt.Errorf("querying awaiting retry count: %w", err)
	}

	return &stats, nil
}
