package api

import (
	"encoding/json"
	"net/http"
)

type emitEventRequest struct {
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

type emitEventResponse struct {
	Status    string `json:"status"`
	EventType string `json:"event_type"`
}

// emitEvent fans an event out to its subscribers. Validation failures are
// reported; delivery outcomes are not.
func (h *Handler) emitEvent(w http.ResponseWriter, r *http.Request) {
	var req emitEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.EventType == "" {
		writeError(w, http.StatusBadRequest, "event_type is required")
		return
	}

	payload, err := decodePayload(req.Payload)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if err := h.courier.ValidateEvent(req.EventType, payload); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.courier.Emit(r.Context(), req.EventType, payload)

	writeJSON(w, http.StatusAccepted, emitEventResponse{Status: "accepted", EventType: req.EventType})
}

func (h *Handler) listEventTypes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.courier.Catalog().List())
}
