package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/workshoplabs/webhook-engine/internal/domain"
)

// Sweeper periodically promotes due retries back into the delivery pipeline.
// It scans awaiting_retry rows whose next_retry_at has passed, creates the
// next attempt row (attempt_number+1, pending) and queues its job. Disabled
// subscriptions and superseded rows are filtered out by the store query, as
// are rows already at the subscription's attempt cap, and rows are processed
// in next_retry_at order. This is the only place retries re-enter the
// pipeline.
type Sweeper struct {
	attempts    AttemptStore
	redisClient *redis.Client
	logger      *slog.Logger
	interval    time.Duration
	batchSize   int
}

func NewSweeper(attempts AttemptStore, redisClient *redis.Client, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		attempts:    attempts,
		redisClient: redisClient,
		logger:      logger,
		interval:    interval,
		batchSize:   100,
	}
}

// Start begins the sweep loop. It runs until the context is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("retry sweeper started", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("retry sweeper stopping")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs a single pass and returns the number of retries promoted.
func (s *Sweeper) Sweep(ctx context.Context) int {
	due, err := s.attempts.DueRetries(ctx, time.Now(), s.batchSize)
	if err != nil {
		s.logger.Error("failed to scan due retries", "error", err)
		return 0
	}

	promoted := 0
	for _, prev := range due {
		next := &domain.DeliveryAttempt{
			EventID:           prev.EventID,
			SubscriptionID:    prev.SubscriptionID,
			TenantID:          prev.TenantID,
			SubscriptionName:  prev.SubscriptionName,
			TargetURL:         prev.TargetURL,
			EventType:         prev.EventType,
			SubjectEntityID:   prev.SubjectEntityID,
			SubjectEntityType: prev.SubjectEntityType,
			Payload:           prev.Payload,
			AttemptNumber:     prev.AttemptNumber + 1,
			Status:            domain.StatusPending,
		}
		if err := s.attempts.InsertAttempt(ctx, next); err != nil {
			s.logger.Error("failed to create retry attempt",
				"subscription_id", prev.SubscriptionID,
				"event_id", prev.EventID,
				"error", err,
			)
			continue
		}

		job := DeliveryJob{
			AttemptID:         next.ID,
			EventID:           next.EventID,
			SubscriptionID:    next.SubscriptionID,
			TenantID:          next.TenantID,
			EventType:         next.EventType,
			SubjectEntityID:   next.SubjectEntityID,
			SubjectEntityType: next.SubjectEntityType,
			Payload:           next.Payload,
			Attempt:           next.AttemptNumber,
		}
		if err := Enqueue(ctx, s.redisClient, job, time.Now()); err != nil {
			s.logger.Error("failed to queue retry job",
				"subscription_id", prev.SubscriptionID,
				"attempt_id", next.ID,
				"error", err,
			)
			continue
		}

		s.logger.Debug("retry promoted",
			"subscription_id", next.SubscriptionID,
			"event_id", next.EventID,
			"attempt", next.AttemptNumber,
		)
		promoted++
	}

	if promoted > 0 {
		s.logger.Info("sweep complete", "retries_promoted", promoted)
	}
	return promoted
}
