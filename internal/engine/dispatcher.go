package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/workshoplabs/webhook-engine/internal/domain"
)

const DeliveryQueueKey = "webhook_delivery_queue"

// DeliveryJob is one queued delivery task: a single attempt for one
// subscription, waiting in the Redis sorted set until its score (ready time)
// passes.
type DeliveryJob struct {
	AttemptID         string          `json:"attempt_id"`
	EventID           string          `json:"event_id"`
	SubscriptionID    string          `json:"subscription_id"`
	TenantID          string          `json:"tenant_id"`
	EventType         string          `json:"event_type"`
	SubjectEntityID   string          `json:"subject_entity_id"`
	SubjectEntityType string          `json:"subject_entity_type"`
	Payload           json.RawMessage `json:"payload"`
	Attempt           int             `json:"attempt"`
}

// payloadEnvelope is the canonical JSON body sent to subscribers. It is
// marshaled exactly once per delivery chain; every attempt sends the same bytes
// and the log stores them verbatim so signatures can be re-verified later.
type payloadEnvelope struct {
	ID         string          `json:"id"`
	EventType  string          `json:"event_type"`
	TenantID   string          `json:"tenant_id"`
	Subject    envelopeSubject `json:"subject"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

type envelopeSubject struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Dispatcher fans a domain event out to every enabled subscription of the
// tenant that subscribes to the event type. One pending log row and one queued
// job per match. Nothing in here may propagate an error to the caller: webhook
// delivery is best-effort relative to the business operation that raised the
// event.
type Dispatcher struct {
	subs        SubscriptionStore
	attempts    AttemptStore
	redisClient *redis.Client
	logger      *slog.Logger
}

func NewDispatcher(subs SubscriptionStore, attempts AttemptStore, redisClient *redis.Client, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		subs:        subs,
		attempts:    attempts,
		redisClient: redisClient,
		logger:      logger,
	}
}

// Notify dispatches a domain event to all matching subscriptions and returns
// the number of deliveries queued. It never returns an error; failures are
// logged and swallowed.
func (d *Dispatcher) Notify(ctx context.Context, tenantID, eventType, subjectID, subjectType string, payload json.RawMessage) int {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic during webhook dispatch",
				"tenant_id", tenantID,
				"event_type", eventType,
				"panic", r,
			)
		}
	}()

	event := domain.Event{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		EventType:   eventType,
		SubjectID:   subjectID,
		SubjectType: subjectType,
		Payload:     payload,
		OccurredAt:  time.Now().UTC(),
	}

	return d.dispatch(ctx, event)
}

// HandleEvent adapts Notify to the event bus handler signature. Registered
// with DispatchAsyncBestEffort in main.
func (d *Dispatcher) HandleEvent(ctx context.Context, event domain.Event) error {
	d.Notify(ctx, event.TenantID, event.EventType, event.SubjectID, event.SubjectType, event.Payload)
	return nil
}

func (d *Dispatcher) dispatch(ctx context.Context, event domain.Event) int {
	subs, err := d.subs.FindMatchingSubscriptions(ctx, event.TenantID, event.EventType)
	if err != nil {
		d.logger.Error("failed to resolve subscriptions",
			"tenant_id", event.TenantID,
			"event_type", event.EventType,
			"error", err,
		)
		return 0
	}

	if len(subs) == 0 {
		d.logger.Debug("no matching subscriptions",
			"tenant_id", event.TenantID,
			"event_type", event.EventType,
		)
		return 0
	}

	body, err := json.Marshal(payloadEnvelope{
		ID:         event.ID,
		EventType:  event.EventType,
		TenantID:   event.TenantID,
		Subject:    envelopeSubject{ID: event.SubjectID, Type: event.SubjectType},
		OccurredAt: event.OccurredAt,
		Data:       event.Payload,
	})
	if err != nil {
		d.logger.Error("failed to marshal event payload",
			"tenant_id", event.TenantID,
			"event_type", event.EventType,
			"error", err,
		)
		return 0
	}

	queued := 0
	pipe := d.redisClient.Pipeline()

	for _, sub := range subs {
		attempt := &domain.DeliveryAttempt{
			EventID:           event.ID,
			SubscriptionID:    sub.ID,
			TenantID:          event.TenantID,
			SubscriptionName:  sub.Name,
			TargetURL:         sub.URL,
			EventType:         event.EventType,
			SubjectEntityID:   event.SubjectID,
			SubjectEntityType: event.SubjectType,
			Payload:           body,
			AttemptNumber:     1,
			Status:            domain.StatusPending,
		}
		if err := d.attempts.InsertAttempt(ctx, attempt); err != nil {
			d.logger.Error("failed to create delivery log entry",
				"subscription_id", sub.ID,
				"event_type", event.EventType,
				"error", err,
			)
			continue
		}

		job := DeliveryJob{
			AttemptID:         attempt.ID,
			EventID:           event.ID,
			SubscriptionID:    sub.ID,
			TenantID:          event.TenantID,
			EventType:         event.EventType,
			SubjectEntityID:   event.SubjectID,
			SubjectEntityType: event.SubjectType,
			Payload:           body,
			Attempt:           1,
		}
		if err := enqueue(ctx, pipe, job, time.Now()); err != nil {
			d.logger.Error("failed to queue delivery job",
				"subscription_id", sub.ID,
				"error", err,
			)
			continue
		}
		queued++
	}

	if _, err := pipe.Exec(ctx); err != nil {
		d.logger.Error("failed to flush delivery queue pipeline",
			"tenant_id", event.TenantID,
			"event_type", event.EventType,
			"error", err,
		)
		return 0
	}

	d.logger.Info("event dispatched",
		"event_id", event.ID,
		"tenant_id", event.TenantID,
		"event_type", event.EventType,
		"deliveries_queued", queued,
	)

	return queued
}

// QueueDepth returns the number of jobs currently waiting in the delivery queue.
func (d *Dispatcher) QueueDepth(ctx context.Context) (int64, error) {
	return d.redisClient.ZCard(ctx, DeliveryQueueKey).Result()
}

// Enqueue schedules a single job to become ready at readyAt.
func Enqueue(ctx context.Context, rdb redis.Cmdable, job DeliveryJob, readyAt time.Time) error {
	return enqueue(ctx, rdb, job, readyAt)
}

func enqueue(ctx context.Context, rdb redis.Cmdable, job DeliveryJob, readyAt time.Time) error {
	jobBytes, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling job: %w", err)
	}
	rdb.ZAdd(ctx, DeliveryQueueKey, redis.Z{
		Score:  float64(readyAt.UnixMicro()),
		Member: string(jobBytes),
	})
	return nil
}
