package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/workshoplabs/webhook-engine/internal/store"
)

type DeliveryHandler struct {
	store *store.PostgresStore
}

func NewDeliveryHandler(s *store.PostgresStore) *DeliveryHandler {
	return &DeliveryHandler{store: s}
}

func (h *DeliveryHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := store.AttemptFilter{
		SubscriptionID: r.URL.Query().Get("subscription_id"),
		Status:         r.URL.Query().Get("status"),
		EventType:      r.URL.Query().Get("event_type"),
		Limit:          queryInt(r, "limit", 50),
		Offset:         queryInt(r, "offset", 0),
	}

	attempts, err := h.store.ListAttempts(r.Context(), tenantID(r), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list delivery attempts")
		return
	}

	respondJSON(w, http.StatusOK, attempts)
}

func (h *DeliveryHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	attempt, err := h.store.GetAttempt(r.Context(), tenantID(r), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get delivery attempt")
		return
	}
	if attempt == nil {
		respondError(w, http.StatusNotFound, "delivery attempt not found")
		return
	}

	respondJSON(w, http.StatusOK, attempt)
}

func queryInt(r *http.Request, key string, fallback int) int {
	if val := r.URL.Query().Get(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n >= 0 {
			return n
		}
	}
	return fallback
}
