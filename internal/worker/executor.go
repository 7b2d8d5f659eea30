package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/workshoplabs/webhook-engine/internal/domain"
	"github.com/workshoplabs/webhook-engine/internal/engine"
	"github.com/workshoplabs/webhook-engine/internal/store"
	ws "github.com/workshoplabs/webhook-engine/internal/websocket"
)

// Response bodies are truncated to this size before logging.
const maxResponseExcerpt = 1024

// How long a rate-limited job waits before re-entering the queue.
const rateLimitRequeueDelay = time.Second

// Executor performs single HTTP delivery attempts: sign, send, time, classify
// the outcome, persist it on the attempt row and update the subscription's
// failure bookkeeping. Errors terminate here; nothing propagates upstream.
type Executor struct {
	httpClient  *http.Client
	subs        engine.SubscriptionStore
	attempts    engine.AttemptStore
	scheduler   *engine.RetryScheduler
	circuit     *engine.FailureCircuit
	limiter     *engine.RateLimiter
	redisClient *redis.Client
	hub         *ws.Hub
	logger      *slog.Logger
}

func NewExecutor(
	subs engine.SubscriptionStore,
	attempts engine.AttemptStore,
	scheduler *engine.RetryScheduler,
	circuit *engine.FailureCircuit,
	limiter *engine.RateLimiter,
	redisClient *redis.Client,
	hub *ws.Hub,
	logger *slog.Logger,
) *Executor {
	return &Executor{
		// Per-attempt timeouts come from the subscription via request
		// contexts, so the client itself carries none.
		httpClient:  &http.Client{},
		subs:        subs,
		attempts:    attempts,
		scheduler:   scheduler,
		circuit:     circuit,
		limiter:     limiter,
		redisClient: redisClient,
		hub:         hub,
		logger:      logger,
	}
}

// sendResult captures everything observable about one HTTP attempt.
type sendResult struct {
	HTTPStatus   *int
	ResponseBody string
	ErrorMessage string
	ElapsedMs    int
}

func (r sendResult) success() bool {
	return r.ErrorMessage == "" && r.HTTPStatus != nil &&
		*r.HTTPStatus >= 200 && *r.HTTPStatus < 300
}

// Deliver executes one queued delivery attempt.
func (e *Executor) Deliver(ctx context.Context, job engine.DeliveryJob) {
	sub, err := e.subs.GetSubscription(ctx, job.TenantID, job.SubscriptionID)
	if err != nil {
		e.logger.Error("failed to load subscription for delivery",
			"subscription_id", job.SubscriptionID,
			"attempt_id", job.AttemptID,
			"error", err,
		)
		return
	}
	if sub == nil || !sub.Enabled {
		// Deleted or disabled since the job was queued. The pending row is
		// left as-is; the sweep will not pick the chain up again.
		e.logger.Info("skipping delivery for inactive subscription",
			"subscription_id", job.SubscriptionID,
			"attempt_id", job.AttemptID,
		)
		return
	}

	if !e.limiter.Allow(ctx, sub.ID, sub.RateLimitPerSecond) {
		// Push the job back without consuming the attempt.
		if err := engine.Enqueue(ctx, e.redisClient, job, time.Now().Add(rateLimitRequeueDelay)); err != nil {
			e.logger.Error("failed to requeue rate-limited job",
				"subscription_id", sub.ID,
				"error", err,
			)
		}
		return
	}

	result := e.send(ctx, sub, job.Payload, job.EventType, job.AttemptID, job.Attempt)

	if result.success() {
		e.resolve(ctx, job, store.AttemptOutcome{
			Status:         domain.StatusSuccess,
			HTTPStatus:     result.HTTPStatus,
			ResponseBody:   result.ResponseBody,
			ResponseTimeMs: result.ElapsedMs,
		})
		e.circuit.RecordSuccess(ctx, sub)

		e.logger.Info("delivery successful",
			"subscription_id", sub.ID,
			"event_id", job.EventID,
			"attempt", job.Attempt,
			"status_code", result.HTTPStatus,
			"response_time_ms", result.ElapsedMs,
		)
		e.broadcast(job, sub, domain.StatusSuccess, result)
		return
	}

	status, nextRetryAt := e.scheduler.NextState(job.Attempt, sub.MaxAttempts, time.Now())
	e.resolve(ctx, job, store.AttemptOutcome{
		Status:         status,
		HTTPStatus:     result.HTTPStatus,
		ResponseBody:   result.ResponseBody,
		ErrorMessage:   result.ErrorMessage,
		ResponseTimeMs: result.ElapsedMs,
		NextRetryAt:    nextRetryAt,
	})
	e.circuit.RecordFailure(ctx, sub)

	e.logger.Warn("delivery failed",
		"subscription_id", sub.ID,
		"event_id", job.EventID,
		"attempt", job.Attempt,
		"max_attempts", sub.MaxAttempts,
		"outcome", status,
		"status_code", result.HTTPStatus,
		"error", result.ErrorMessage,
		"response_time_ms", result.ElapsedMs,
	)
	e.broadcast(job, sub, status, result)
}

// TestResult is the synchronous outcome of a test delivery.
type TestResult struct {
	Success         bool            `json:"success"`
	HTTPStatus      *int            `json:"http_status,omitempty"`
	ResponseExcerpt string          `json:"response_excerpt,omitempty"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	ElapsedMs       int             `json:"elapsed_ms"`
	Payload         json.RawMessage `json:"payload"`
}

// Test performs a single synchronous delivery of a sample event. Nothing is
// persisted and no retry chain is created; the result, including failures,
// goes straight back to the caller.
func (e *Executor) Test(ctx context.Context, sub *domain.Subscription, eventType string) TestResult {
	sample := map[string]interface{}{
		"id":         uuid.NewString(),
		"event_type": eventType,
		"tenant_id":  sub.TenantID,
		"subject": map[string]string{
			"id":   uuid.NewString(),
			"type": subjectTypeFor(eventType),
		},
		"occurred_at": time.Now().UTC(),
		"data":        map[string]bool{"test": true},
	}
	body, err := json.Marshal(sample)
	if err != nil {
		return TestResult{ErrorMessage: fmt.Sprintf("building sample payload: %v", err)}
	}

	result := e.send(ctx, sub, body, eventType, uuid.NewString(), 1)

	return TestResult{
		Success:         result.success(),
		HTTPStatus:      result.HTTPStatus,
		ResponseExcerpt: result.ResponseBody,
		ErrorMessage:    result.ErrorMessage,
		ElapsedMs:       result.ElapsedMs,
		Payload:         body,
	}
}

// send performs the HTTP POST with the subscription's timeout and headers.
func (e *Executor) send(ctx context.Context, sub *domain.Subscription, body []byte, eventType, deliveryID string, attempt int) sendResult {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, sub.Timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		return sendResult{
			ErrorMessage: fmt.Sprintf("failed to create request: %v", err),
			ElapsedMs:    int(time.Since(start).Milliseconds()),
		}
	}

	req.Header.Set("Content-Type", "application/json")
	for _, h := range sub.Headers {
		if reservedHeader(h.Name) {
			continue
		}
		req.Header.Set(h.Name, h.Value)
	}
	if sub.Secret != "" {
		req.Header.Set(engine.SignatureHeader, engine.Sign(sub.Secret, body))
	}
	req.Header.Set(engine.EventHeader, eventType)
	req.Header.Set(engine.DeliveryHeader, deliveryID)
	req.Header.Set(engine.AttemptHeader, fmt.Sprintf("%d", attempt))

	resp, err := e.httpClient.Do(req)
	elapsed := int(time.Since(start).Milliseconds())
	if err != nil {
		return sendResult{
			ErrorMessage: fmt.Sprintf("request failed: %v", err),
			ElapsedMs:    elapsed,
		}
	}
	defer resp.Body.Close()

	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseExcerpt))
	status := resp.StatusCode

	return sendResult{
		HTTPStatus:   &status,
		ResponseBody: string(excerpt),
		ElapsedMs:    elapsed,
	}
}

func (e *Executor) resolve(ctx context.Context, job engine.DeliveryJob, outcome store.AttemptOutcome) {
	if err := e.attempts.ResolveAttempt(ctx, job.AttemptID, outcome); err != nil {
		e.logger.Error("failed to record delivery outcome",
			"attempt_id", job.AttemptID,
			"subscription_id", job.SubscriptionID,
			"error", err,
		)
	}
}

func (e *Executor) broadcast(job engine.DeliveryJob, sub *domain.Subscription, status string, result sendResult) {
	if e.hub == nil {
		return
	}
	e.hub.Broadcast(ws.DeliveryEvent{
		Type:           "delivery." + status,
		TenantID:       job.TenantID,
		EventID:        job.EventID,
		SubscriptionID: sub.ID,
		TargetURL:      sub.URL,
		EventType:      job.EventType,
		Attempt:        job.Attempt,
		StatusCode:     result.HTTPStatus,
		ResponseMs:     int64(result.ElapsedMs),
		Error:          result.ErrorMessage,
		Timestamp:      time.Now().UTC(),
	})
}

func reservedHeader(name string) bool {
	switch {
	case strings.EqualFold(name, "Content-Type"):
		return true
	case strings.EqualFold(name, engine.SignatureHeader),
		strings.EqualFold(name, engine.EventHeader),
		strings.EqualFold(name, engine.DeliveryHeader),
		strings.EqualFold(name, engine.AttemptHeader):
		return true
	}
	return false
}

func subjectTypeFor(eventType string) string {
	if i := strings.IndexByte(eventType, '.'); i > 0 {
		return eventType[:i]
	}
	return eventType
}
