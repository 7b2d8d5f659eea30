package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/workshoplabs/webhook-engine/internal/domain"
	"github.com/workshoplabs/webhook-engine/internal/engine"
)

// EventHandler ingests domain events over HTTP and publishes them on the
// event bus, the same path in-process business code uses.
type EventHandler struct {
	bus *engine.Bus
}

func NewEventHandler(bus *engine.Bus) *EventHandler {
	return &EventHandler{bus: bus}
}

type ingestEventRequest struct {
	EventType   string          `json:"event_type"`
	SubjectID   string          `json:"subject_id"`
	SubjectType string          `json:"subject_type"`
	Payload     json.RawMessage `json:"payload"`
}

type ingestEventResponse struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Status    string `json:"status"`
}

// Ingest accepts a domain event and publishes it. Responds 202 once the event
// is on the bus: webhook fan-out runs async-best-effort, so delivery outcomes
// surface through the delivery log, never here.
func (h *EventHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !domain.ValidEventType(req.EventType) {
		respondError(w, http.StatusBadRequest, "unknown event_type")
		return
	}
	if len(req.Payload) == 0 {
		respondError(w, http.StatusBadRequest, "payload is required")
		return
	}
	if !json.Valid(req.Payload) {
		respondError(w, http.StatusBadRequest, "payload must be valid JSON")
		return
	}

	event := domain.Event{
		ID:          uuid.NewString(),
		TenantID:    tenantID(r),
		EventType:   req.EventType,
		SubjectID:   req.SubjectID,
		SubjectType: req.SubjectType,
		Payload:     req.Payload,
		OccurredAt:  time.Now().UTC(),
	}

	if err := h.bus.Publish(r.Context(), event); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to publish event")
		return
	}

	respondJSON(w, http.StatusAccepted, ingestEventResponse{
		EventID:   event.ID,
		EventType: event.EventType,
		Status:    "accepted",
	})
}
