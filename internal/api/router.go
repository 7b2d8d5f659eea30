package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/workshoplabs/webhook-engine/internal/engine"
	"github.com/workshoplabs/webhook-engine/internal/store"
	ws "github.com/workshoplabs/webhook-engine/internal/websocket"
	"github.com/workshoplabs/webhook-engine/internal/worker"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(pgStore *store.PostgresStore, bus *engine.Bus, dispatcher *engine.Dispatcher, executor *worker.Executor, hub *ws.Hub) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// Handlers
	subHandler := NewSubscriptionHandler(pgStore, executor)
	eventHandler := NewEventHandler(bus)
	deliveryHandler := NewDeliveryHandler(pgStore)
	statsHandler := NewStatsHandler(pgStore, dispatcher, hub)

	// Live delivery feed
	r.Get("/ws", hub.HandleWebSocket)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", HealthHandler())
		r.Get("/event-types", subHandler.EventTypes)

		r.Group(func(r chi.Router) {
			r.Use(requireTenant)

			r.Post("/events", eventHandler.Ingest)

			r.Route("/subscriptions", func(r chi.Router) {
				r.Post("/", subHandler.Create)
				r.Get("/", subHandler.List)
				r.Get("/{id}", subHandler.Get)
				r.Patch("/{id}", subHandler.Update)
				r.Delete("/{id}", subHandler.Delete)
				r.Post("/{id}/reactivate", subHandler.Reactivate)
				r.Post("/{id}/test", subHandler.Test)
			})

			r.Route("/deliveries", func(r chi.Router) {
				r.Get("/", deliveryHandler.List)
				r.Get("/{id}", deliveryHandler.Get)
			})

			r.Get("/stats", statsHandler.Stats)
		})
	})

	return r
}
