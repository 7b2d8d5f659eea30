package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/workshoplabs/webhook-engine/internal/domain"
)

// InsertAttempt creates one delivery-log row in state pending and fills in the
// generated id and created_at. One row per attempt; rows are never replaced.
func (s *PostgresStore) InsertAttempt(ctx context.Context, a *domain.DeliveryAttempt) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = domain.StatusPending
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO delivery_attempts (id, event_id, subscription_id, tenant_id,
			subscription_name, target_url, event_type, subject_entity_id,
			subject_entity_type, payload, attempt_number, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at
	`, a.ID, a.EventID, a.SubscriptionID, a.TenantID, a.SubscriptionName,
		a.TargetURL, a.EventType, a.SubjectEntityID, a.SubjectEntityType,
		a.Payload, a.AttemptNumber, a.Status).Scan(&a.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting delivery attempt: %w", err)
	}
	return nil
}

// AttemptOutcome carries the result of one HTTP attempt back onto its log row.
type AttemptOutcome struct {
	Status         string
	HTTPStatus     *int
	ResponseBody   string
	ErrorMessage   string
	ResponseTimeMs int
	NextRetryAt    *time.Time
}

// ResolveAttempt transitions a pending row to its final per-attempt state
// (success, awaiting_retry or exhausted) and records the response detail.
func (s *PostgresStore) ResolveAttempt(ctx context.Context, attemptID string, outcome AttemptOutcome) error {
	var respBody *string
	if outcome.ResponseBody != "" {
		respBody = &outcome.ResponseBody
	}
	var errMsg *string
	if outcome.ErrorMessage != "" {
		errMsg = &outcome.ErrorMessage
	}

	result, err := s.pool.Exec(ctx, `
		UPDATE delivery_attempts
		SET status = $2, http_status = $3, response_body = $4, error_message = $5,
		    response_time_ms = $6, next_retry_at = $7
		WHERE id = $1 AND status = $8
	`, attemptID, outcome.Status, outcome.HTTPStatus, respBody, errMsg,
		outcome.ResponseTimeMs, outcome.NextRetryAt, domain.StatusPending)
	if err != nil {
		return fmt.Errorf("resolving delivery attempt: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("delivery attempt %s not pending", attemptID)
	}
	return nil
}

// DueRetries returns awaiting_retry rows whose next_retry_at has passed, whose
// subscription is still enabled, and which are the newest attempt of their
// chain. Rows at or past the subscription's current max_attempts are skipped,
// so lowering the cap mid-chain takes effect before the next attempt is
// created. Ordered by next_retry_at so older retries go first.
func (s *PostgresStore) DueRetries(ctx context.Context, now time.Time, limit int) ([]domain.DeliveryAttempt, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+attemptColumns(`a`)+`
		FROM delivery_attempts a
		JOIN subscriptions s ON s.id = a.subscription_id
		WHERE a.status = $1
		  AND a.next_retry_at <= $2
		  AND s.enabled = true
		  AND a.attempt_number < s.max_attempts
		  AND NOT EXISTS (
			SELECT 1 FROM delivery_attempts b
			WHERE b.event_id = a.event_id
			  AND b.subscription_id = a.subscription_id
			  AND b.attempt_number > a.attempt_number
		  )
		ORDER BY a.next_retry_at
		LIMIT $3
	`, domain.StatusAwaitingRetry, now, limit)
	if err != nil {
		return nil, fmt.Errorf("querying due retries: %w", err)
	}
	defer rows.Close()

	return scanAttempts(rows)
}

// AttemptFilter narrows ListAttempts. Zero values mean "no filter".
type AttemptFilter struct {
	SubscriptionID string
	Status         string
	EventType      string
	Limit          int
	Offset         int
}

// ListAttempts returns the tenant's delivery log, newest first.
func (s *PostgresStore) ListAttempts(ctx context.Context, tenantID string, filter AttemptFilter) ([]domain.DeliveryAttempt, error) {
	query := `SELECT ` + attemptColumns(``) + ` FROM delivery_attempts WHERE tenant_id = $1`
	args := []interface{}{tenantID}
	argIdx := 2

	if filter.SubscriptionID != "" {
		query += fmt.Sprintf(" AND subscription_id = $%d", argIdx)
		args = append(args, filter.SubscriptionID)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}
	if filter.EventType != "" {
		query += fmt.Sprintf(" AND event_type = $%d", argIdx)
		args = append(args, filter.EventType)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying delivery attempts: %w", err)
	}
	defer rows.Close()

	return scanAttempts(rows)
}

// GetAttempt returns a single delivery attempt scoped to the tenant.
func (s *PostgresStore) GetAttempt(ctx context.Context, tenantID, id string) (*domain.DeliveryAttempt, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+attemptColumns(``)+`
		FROM delivery_attempts WHERE tenant_id = $1 AND id = $2
	`, tenantID, id)

	a, err := scanAttempt(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying delivery attempt: %w", err)
	}
	return a, nil
}

func attemptColumns(alias string) string {
	if alias == "" {
		return `id, event_id, subscription_id, tenant_id, subscription_name,
			target_url, event_type, subject_entity_id, subject_entity_type, payload,
			http_status, response_body, error_message, response_time_ms,
			attempt_number, status, next_retry_at, created_at`
	}
	cols := []string{
		"id", "event_id", "subscription_id", "tenant_id", "subscription_name",
		"target_url", "event_type", "subject_entity_id", "subject_entity_type",
		"payload", "http_status", "response_body", "error_message",
		"response_time_ms", "attempt_number", "status", "next_retry_at", "created_at",
	}
	prefixed := make([]string, len(cols))
	for i, c := range cols {
		prefixed[i] = alias + "." + c
	}
	return joinStrings(prefixed, ", ")
}

func scanAttempt(row rowScanner) (*domain.DeliveryAttempt, error) {
	var a domain.DeliveryAttempt
	err := row.Scan(
		&a.ID, &a.EventID, &a.SubscriptionID, &a.TenantID, &a.SubscriptionName,
		&a.TargetURL, &a.EventType, &a.SubjectEntityID, &a.SubjectEntityType,
		&a.Payload, &a.HTTPStatus, &a.ResponseBody, &a.ErrorMessage,
		&a.ResponseTimeMs, &a.AttemptNumber, &a.Status, &a.NextRetryAt, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func scanAttempts(rows pgx.Rows) ([]domain.DeliveryAttempt, error) {
	attempts := []domain.DeliveryAttempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning delivery attempt: %w", err)
		}
		attempts = append(attempts, *a)
	}
	return attempts, rows.Err()
}
