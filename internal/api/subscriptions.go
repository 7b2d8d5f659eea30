package api

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/workshoplabs/webhook-engine/internal/domain"
	"github.com/workshoplabs/webhook-engine/internal/store"
	"github.com/workshoplabs/webhook-engine/internal/worker"
)

type SubscriptionHandler struct {
	store    *store.PostgresStore
	executor *worker.Executor
}

func NewSubscriptionHandler(s *store.PostgresStore, executor *worker.Executor) *SubscriptionHandler {
	return &SubscriptionHandler{store: s, executor: executor}
}

type createSubscriptionResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	URL    string `json:"url"`
	Secret string `json:"secret"`
}

func (h *SubscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if msg := validateCreate(req); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	sub, err := h.store.CreateSubscription(r.Context(), tenantID(r), req)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create subscription")
		return
	}

	// The secret is returned exactly once, at creation.
	respondJSON(w, http.StatusCreated, createSubscriptionResponse{
		ID:     sub.ID,
		Name:   sub.Name,
		URL:    sub.URL,
		Secret: sub.Secret,
	})
}

func (h *SubscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	subs, err := h.store.ListSubscriptions(r.Context(), tenantID(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}

	respondJSON(w, http.StatusOK, subs)
}

func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sub, err := h.store.GetSubscription(r.Context(), tenantID(r), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get subscription")
		return
	}
	if sub == nil {
		respondError(w, http.StatusNotFound, "subscription not found")
		return
	}

	sub.Secret = ""
	respondJSON(w, http.StatusOK, sub)
}

func (h *SubscriptionHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req domain.UpdateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if msg := validateUpdate(req); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	sub, err := h.store.UpdateSubscription(r.Context(), tenantID(r), id, req)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update subscription")
		return
	}
	if sub == nil {
		respondError(w, http.StatusNotFound, "subscription not found")
		return
	}

	sub.Secret = ""
	respondJSON(w, http.StatusOK, sub)
}

func (h *SubscriptionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	deleted, err := h.store.DeleteSubscription(r.Context(), tenantID(r), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete subscription")
		return
	}
	if !deleted {
		respondError(w, http.StatusNotFound, "subscription not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Reactivate re-enables a disabled subscription and resets its failure count.
func (h *SubscriptionHandler) Reactivate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sub, err := h.store.ReactivateSubscription(r.Context(), tenantID(r), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to reactivate subscription")
		return
	}
	if sub == nil {
		respondError(w, http.StatusNotFound, "subscription not found")
		return
	}

	sub.Secret = ""
	respondJSON(w, http.StatusOK, sub)
}

type testDeliveryRequest struct {
	EventType string `json:"event_type"`
}

// Test performs one synchronous delivery of a sample event against the
// subscription's endpoint. Diagnostic only: no log row, no retry chain.
func (h *SubscriptionHandler) Test(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req testDeliveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !domain.ValidEventType(req.EventType) {
		respondError(w, http.StatusBadRequest, "unknown event_type")
		return
	}

	sub, err := h.store.GetSubscription(r.Context(), tenantID(r), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get subscription")
		return
	}
	if sub == nil {
		respondError(w, http.StatusNotFound, "subscription not found")
		return
	}

	result := h.executor.Test(r.Context(), sub, req.EventType)
	respondJSON(w, http.StatusOK, result)
}

// EventTypes lists the supported event-type catalog.
func (h *SubscriptionHandler) EventTypes(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string][]string{"event_types": domain.EventTypes})
}

func validateCreate(req domain.CreateSubscriptionRequest) string {
	if req.Name == "" {
		return "name is required"
	}
	if msg := validateURL(req.URL); msg != "" {
		return msg
	}
	return validateEventTypes(req.EventTypes)
}

func validateUpdate(req domain.UpdateSubscriptionRequest) string {
	if req.Name != nil && *req.Name == "" {
		return "name cannot be empty"
	}
	if req.URL != nil {
		if msg := validateURL(*req.URL); msg != "" {
			return msg
		}
	}
	if req.EventTypes != nil {
		return validateEventTypes(*req.EventTypes)
	}
	return ""
}

func validateURL(raw string) string {
	if raw == "" {
		return "url is required"
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "url must be an absolute http(s) URL"
	}
	return ""
}

func validateEventTypes(eventTypes []string) string {
	if len(eventTypes) == 0 {
		return "at least one event_type is required"
	}
	for _, et := range eventTypes {
		if !domain.ValidEventType(et) {
			return "unknown event_type: " + et
		}
	}
	return ""
}
