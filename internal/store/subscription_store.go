package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/workshoplabs/webhook-engine/internal/domain"
)

const subscriptionColumns = `id, tenant_id, name, url, secret, headers, event_types,
	max_attempts, timeout_seconds, rate_limit_per_second, enabled,
	consecutive_failures, last_success_at, last_failure_at, created_at, updated_at`

func (s *PostgresStore) CreateSubscription(ctx context.Context, tenantID string, req domain.CreateSubscriptionRequest) (*domain.Subscription, error) {
	secret := req.Secret
	if secret == "" {
		generated, err := generateSecret()
		if err != nil {
			return nil, fmt.Errorf("generating secret: %w", err)
		}
		secret = generated
	}

	maxAttempts := 5
	if req.MaxAttempts != nil {
		maxAttempts = domain.ClampAttempts(*req.MaxAttempts)
	}
	timeoutSeconds := 30
	if req.TimeoutSeconds != nil {
		timeoutSeconds = domain.ClampTimeoutSeconds(*req.TimeoutSeconds)
	}
	rateLimit := 0
	if req.RateLimitPerSecond != nil && *req.RateLimitPerSecond > 0 {
		rateLimit = *req.RateLimitPerSecond
	}

	headersJSON, err := marshalHeaders(req.Headers)
	if err != nil {
		return nil, err
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO subscriptions (id, tenant_id, name, url, secret, headers, event_types,
			max_attempts, timeout_seconds, rate_limit_per_second)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+subscriptionColumns+`
	`, uuid.NewString(), tenantID, req.Name, req.URL, secret, headersJSON,
		req.EventTypes, maxAttempts, timeoutSeconds, rateLimit)

	sub, err := scanSubscription(row)
	if err != nil {
		return nil, fmt.Errorf("inserting subscription: %w", err)
	}
	return sub, nil
}

func (s *PostgresStore) GetSubscription(ctx context.Context, tenantID, id string) (*domain.Subscription, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions WHERE tenant_id = $1 AND id = $2
	`, tenantID, id)

	sub, err := scanSubscription(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying subscription: %w", err)
	}
	return sub, nil
}

func (s *PostgresStore) ListSubscriptions(ctx context.Context, tenantID string) ([]domain.Subscription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE tenant_id = $1
		ORDER BY created_at DESC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("querying subscriptions: %w", err)
	}
	defer rows.Close()

	subs := []domain.Subscription{}
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning subscription: %w", err)
		}
		sub.Secret = "" // never exposed on list
		subs = append(subs, *sub)
	}

	return subs, rows.Err()
}

func (s *PostgresStore) UpdateSubscription(ctx context.Context, tenantID, id string, req domain.UpdateSubscriptionRequest) (*domain.Subscription, error) {
	// Build dynamic update query
	setClauses := []string{}
	args := []interface{}{}
	argIdx := 1

	addClause := func(column string, value interface{}) {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, argIdx))
		args = append(args, value)
		argIdx++
	}

	if req.Name != nil {
		addClause("name", *req.Name)
	}
	if req.URL != nil {
		addClause("url", *req.URL)
	}
	if req.Secret != nil {
		addClause("secret", *req.Secret)
	}
	if req.Headers != nil {
		headersJSON, err := marshalHeaders(*req.Headers)
		if err != nil {
			return nil, err
		}
		addClause("headers", headersJSON)
	}
	if req.EventTypes != nil {
		addClause("event_types", *req.EventTypes)
	}
	if req.MaxAttempts != nil {
		addClause("max_attempts", domain.ClampAttempts(*req.MaxAttempts))
	}
	if req.TimeoutSeconds != nil {
		addClause("timeout_seconds", domain.ClampTimeoutSeconds(*req.TimeoutSeconds))
	}
	if req.RateLimitPerSecond != nil {
		addClause("rate_limit_per_second", *req.RateLimitPerSecond)
	}
	if req.Enabled != nil {
		addClause("enabled", *req.Enabled)
	}

	if len(setClauses) == 0 {
		return s.GetSubscription(ctx, tenantID, id)
	}

	setClauses = append(setClauses, "updated_at = NOW()")

	query := fmt.Sprintf(`
		UPDATE subscriptions SET %s
		WHERE tenant_id = $%d AND id = $%d
		RETURNING `+subscriptionColumns,
		joinStrings(setClauses, ", "), argIdx, argIdx+1)
	args = append(args, tenantID, id)

	sub, err := scanSubscription(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("updating subscription: %w", err)
	}
	return sub, nil
}

// DeleteSubscription removes the subscription row. Delivery logs keep their
// name/URL snapshots, so history survives the delete; only future dispatch stops.
func (s *PostgresStore) DeleteSubscription(ctx context.Context, tenantID, id string) (bool, error) {
	result, err := s.pool.Exec(ctx, `
		DELETE FROM subscriptions WHERE tenant_id = $1 AND id = $2
	`, tenantID, id)
	if err != nil {
		return false, fmt.Errorf("deleting subscription: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// ReactivateSubscription re-enables a subscription and zeroes its consecutive
// failure count. This is the only path that brings an auto-disabled
// subscription back into rotation.
func (s *PostgresStore) ReactivateSubscription(ctx context.Context, tenantID, id string) (*domain.Subscription, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE subscriptions
		SET enabled = true, consecutive_failures = 0, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
		RETURNING `+subscriptionColumns,
		tenantID, id)

	sub, err := scanSubscription(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("reactivating subscription: %w", err)
	}
	return sub, nil
}

// FindMatchingSubscriptions returns all enabled subscriptions of the tenant
// whose event-type set contains eventType.
func (s *PostgresStore) FindMatchingSubscriptions(ctx context.Context, tenantID, eventType string) ([]domain.Subscription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE tenant_id = $1
		  AND enabled = true
		  AND $2 = ANY(event_types)
		ORDER BY created_at
	`, tenantID, eventType)
	if err != nil {
		return nil, fmt.Errorf("finding matching subscriptions: %w", err)
	}
	defer rows.Close()

	subs := []domain.Subscription{}
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning subscription: %w", err)
		}
		subs = append(subs, *sub)
	}

	return subs, rows.Err()
}

// IncrementFailures bumps consecutive_failures by one and stamps
// last_failure_at, returning the new count. The increment happens in a single
// UPDATE so concurrent failures never under-count toward the disable threshold.
func (s *PostgresStore) IncrementFailures(ctx context.Context, subscriptionID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		UPDATE subscriptions
		SET consecutive_failures = consecutive_failures + 1,
		    last_failure_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING consecutive_failures
	`, subscriptionID).Scan(&count)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("incrementing failures: %w", err)
	}
	return count, nil
}

// RecordDeliverySuccess zeroes consecutive_failures and stamps last_success_at.
func (s *PostgresStore) RecordDeliverySuccess(ctx context.Context, subscriptionID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE subscriptions
		SET consecutive_failures = 0, last_success_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`, subscriptionID)
	if err != nil {
		return fmt.Errorf("recording delivery success: %w", err)
	}
	return nil
}

// DisableSubscription flips enabled to false (auto-disable on circuit trip).
func (s *PostgresStore) DisableSubscription(ctx context.Context, subscriptionID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE subscriptions
		SET enabled = false, updated_at = NOW()
		WHERE id = $1 AND enabled = true
	`, subscriptionID)
	if err != nil {
		return fmt.Errorf("disabling subscription: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSubscription(row rowScanner) (*domain.Subscription, error) {
	var sub domain.Subscription
	var headersJSON []byte
	err := row.Scan(
		&sub.ID, &sub.TenantID, &sub.Name, &sub.URL, &sub.Secret, &headersJSON,
		&sub.EventTypes, &sub.MaxAttempts, &sub.TimeoutSeconds,
		&sub.RateLimitPerSecond, &sub.Enabled, &sub.ConsecutiveFailures,
		&sub.LastSuccessAt, &sub.LastFailureAt, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(headersJSON) > 0 {
		if err := json.Unmarshal(headersJSON, &sub.Headers); err != nil {
			return nil, fmt.Errorf("unmarshaling headers: %w", err)
		}
	}
	return &sub, nil
}

func marshalHeaders(headers []domain.Header) ([]byte, error) {
	if headers == nil {
		headers = []domain.Header{}
	}
	data, err := json.Marshal(headers)
	if err != nil {
		return nil, fmt.Errorf("marshaling headers: %w", err)
	}
	return data, nil
}

func generateSecret() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return "whsec_" + hex.EncodeToString(bytes), nil
}

func joinStrings(strs []string, sep string) string {
	result := ""
	for i, s := range strs {
		if i > 0 {
			result += sep
		}
		result += s
	}
	return result
}
