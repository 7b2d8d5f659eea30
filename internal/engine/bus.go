package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/workshoplabs/webhook-engine/internal/domain"
)

// Handler processes a domain event.
type Handler func(ctx context.Context, event domain.Event) error

// Bus routes domain events to handlers under one of two dispatch modes.
// Sync-transactional handlers run inline in Publish and their first error is
// returned to the caller, so a failure can roll back the triggering
// transaction (inventory adjustments work this way). Async-best-effort
// handlers run on their own goroutine, panics are recovered and errors only
// logged; they can never affect the publishing operation. The webhook
// dispatcher registers in async mode.
type Bus struct {
	mu       sync.RWMutex
	handlers []registration
	logger   *slog.Logger
}

type registration struct {
	mode       string
	handler    Handler
	eventTypes map[string]struct{} // nil means all event types
}

func NewBus(logger *slog.Logger) *Bus {
	return &Bus{logger: logger}
}

// Subscribe registers a handler for the given event types under the given
// dispatch mode. With no event types the handler receives every event.
func (b *Bus) Subscribe(mode string, handler Handler, eventTypes ...string) {
	reg := registration{mode: mode, handler: handler}
	if len(eventTypes) > 0 {
		reg.eventTypes = make(map[string]struct{}, len(eventTypes))
		for _, et := range eventTypes {
			reg.eventTypes[et] = struct{}{}
		}
	}

	b.mu.Lock()
	b.handlers = append(b.handlers, reg)
	b.mu.Unlock()
}

// Publish delivers the event to all matching handlers. The returned error
// comes only from sync-transactional handlers; the first failure short-circuits
// the remaining sync handlers, mirroring in-transaction listener semantics.
func (b *Bus) Publish(ctx context.Context, event domain.Event) error {
	b.mu.RLock()
	handlers := make([]registration, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	// Async handlers are started first so a sync failure cannot suppress
	// best-effort work that is independent of the transaction outcome. They
	// get a detached context: the publisher may return (and its request
	// context cancel) while delivery is still in flight.
	asyncCtx := context.WithoutCancel(ctx)
	for _, reg := range handlers {
		if reg.mode != domain.DispatchAsyncBestEffort || !reg.matches(event.EventType) {
			continue
		}
		go b.runAsync(asyncCtx, reg.handler, event)
	}

	for _, reg := range handlers {
		if reg.mode != domain.DispatchSyncTransactional || !reg.matches(event.EventType) {
			continue
		}
		if err := reg.handler(ctx, event); err != nil {
			return err
		}
	}

	return nil
}

func (b *Bus) runAsync(ctx context.Context, handler Handler, event domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("async event handler panicked",
				"event_type", event.EventType,
				"tenant_id", event.TenantID,
				"panic", r,
			)
		}
	}()

	if err := handler(ctx, event); err != nil {
		b.logger.Error("async event handler failed",
			"event_type", event.EventType,
			"tenant_id", event.TenantID,
			"error", err,
		)
	}
}

func (r registration) matches(eventType string) bool {
	if r.eventTypes == nil {
		return true
	}
	_, ok := r.eventTypes[eventType]
	return ok
}
