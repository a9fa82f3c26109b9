package api

import (
	"net/http"

	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/id"
)

func (h *Handler) listDeliveries(w http.ResponseWriter, r *http.Request) {
	whID, err := id.ParseWebhookID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid webhook ID")
		return
	}

	opts := delivery.ListOpts{
		Offset: queryInt(r, "offset", 0),
		Limit:  clampLimit(queryInt(r, "limit", defaultLimit)),
	}

	if raw := queryParam(r, "status"); raw != "" {
		status := delivery.State(raw)
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, "unknown delivery status")
			return
		}
		opts.Status = &status
	}

	deliveries, listErr := h.courier.ListDeliveries(r.Context(), whID, opts)
	if listErr != nil {
		h.writeServiceError(w, r, listErr)
		return
	}

	writeJSON(w, http.StatusOK, deliveries)
}

func (h *Handler) getDelivery(w http.ResponseWriter, r *http.Request) {
	delID, err := id.ParseDeliveryID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid delivery ID")
		return
	}

	d, getErr := h.courier.GetDelivery(r.Context(), delID)
	if getErr != nil {
		h.writeServiceError(w, r, getErr)
		return
	}

	writeJSON(w, http.StatusOK, d)
}

// redeliver re-sends a recorded delivery's event as a new delivery.
func (h *Handler) redeliver(w http.ResponseWriter, r *http.Request) {
	delID, err := id.ParseDeliveryID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid delivery ID")
		return
	}

	d, redeliverErr := h.courier.Redeliver(r.Context(), delID)
	if redeliverErr != nil {
		h.writeServiceError(w, r, redeliverErr)
		return
	}

	writeJSON(w, http.StatusCreated, d)
}
