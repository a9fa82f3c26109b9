package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/xraph/courier/catalog"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/webhook"
)

// createdWebhook is the create response. It is the only representation that
// carries the secret.
type createdWebhook struct {
	*webhook.Webhook
	Secret string `json:"secret"`
}

type testWebhookRequest struct {
	Payload json.RawMessage `json:"payload,omitempty"`
}

type secretResponse struct {
	Secret string `json:"secret"`
}

func (h *Handler) createWebhook(w http.ResponseWriter, r *http.Request) {
	var in webhook.Input
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	wh, err := h.courier.Webhooks().Create(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, createdWebhook{Webhook: wh, Secret: wh.Secret})
}

func (h *Handler) listWebhooks(w http.ResponseWriter, r *http.Request) {
	opts := webhook.ListOpts{
		Offset: queryInt(r, "offset", 0),
		Limit:  clampLimit(queryInt(r, "limit", defaultLimit)),
	}

	if raw := queryParam(r, "active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "active must be true or false")
			return
		}
		opts.Active = &active
	}

	whs, err := h.courier.Webhooks().List(r.Context(), opts)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, whs)
}

func (h *Handler) getWebhook(w http.ResponseWriter, r *http.Request) {
	whID, err := id.ParseWebhookID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid webhook ID")
		return
	}

	wh, getErr := h.courier.Webhooks().Get(r.Context(), whID)
	if getErr != nil {
		h.writeServiceError(w, r, getErr)
		return
	}

	writeJSON(w, http.StatusOK, wh)
}

func (h *Handler) updateWebhook(w http.ResponseWriter, r *http.Request) {
	whID, err := id.ParseWebhookID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid webhook ID")
		return
	}

	var upd webhook.Update
	if err := decodeJSON(r, &upd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	wh, updateErr := h.courier.Webhooks().Update(r.Context(), whID, upd)
	if updateErr != nil {
		h.writeServiceError(w, r, updateErr)
		return
	}

	writeJSON(w, http.StatusOK, wh)
}

func (h *Handler) deleteWebhook(w http.ResponseWriter, r *http.Request) {
	whID, err := id.ParseWebhookID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid webhook ID")
		return
	}

	if deleteErr := h.courier.Webhooks().Delete(r.Context(), whID); deleteErr != nil {
		h.writeServiceError(w, r, deleteErr)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) rotateSecret(w http.ResponseWriter, r *http.Request) {
	whID, err := id.ParseWebhookID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid webhook ID")
		return
	}

	secret, rotateErr := h.courier.Webhooks().RotateSecret(r.Context(), whID)
	if rotateErr != nil {
		h.writeServiceError(w, r, rotateErr)
		return
	}

	writeJSON(w, http.StatusOK, secretResponse{Secret: secret})
}

// testWebhook sends a test.ping delivery synchronously and returns its
// record, whatever the outcome of the attempt.
func (h *Handler) testWebhook(w http.ResponseWriter, r *http.Request) {
	whID, err := id.ParseWebhookID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid webhook ID")
		return
	}

	var req testWebhookRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Without a payload the dispatcher sends its default test body.
	var payload map[string]any
	if hasPayload(req.Payload) {
		if payload, err = decodePayload(req.Payload); err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		if err := h.courier.Catalog().ValidatePayload(catalog.TestPing, payload); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	d, fireErr := h.courier.TestFire(r.Context(), whID, payload)
	if fireErr != nil {
		h.writeServiceError(w, r, fireErr)
		return
	}

	writeJSON(w, http.StatusOK, d)
}
