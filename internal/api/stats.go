package api

import (
	"net/http"

	"github.com/workshoplabs/webhook-engine/internal/engine"
	"github.com/workshoplabs/webhook-engine/internal/store"
	ws "github.com/workshoplabs/webhook-engine/internal/websocket"
)

type StatsHandler struct {
	store      *store.PostgresStore
	dispatcher *engine.Dispatcher
	hub        *ws.Hub
}

func NewStatsHandler(s *store.PostgresStore, d *engine.Dispatcher, hub *ws.Hub) *StatsHandler {
	return &StatsHandler{store: s, dispatcher: d, hub: hub}
}

// Stats returns aggregated delivery statistics for the tenant plus process-wide
// queue depth and live-feed client count.
func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.GetDeliveryStats(r.Context(), tenantID(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	queueDepth, err := h.dispatcher.QueueDepth(r.Context())
	if err != nil {
		queueDepth = 0
	}

	type statsResponse struct {
		store.DeliveryStats
		QueueDepth       int64 `json:"queue_depth"`
		WebSocketClients int   `json:"websocket_clients"`
	}

	respondJSON(w, http.StatusOK, statsResponse{
		DeliveryStats:    *stats,
		QueueDepth:       queueDepth,
		WebSocketClients: h.hub.ClientCount(),
	})
}
