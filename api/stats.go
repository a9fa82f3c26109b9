package api

import (
	"net/http"

	"github.com/xraph/courier/delivery"
)

type statsResponse struct {
	Pending  int64 `json:"pending"`
	Retrying int64 `json:"retrying"`
	Success  int64 `json:"success"`
	Failed   int64 `json:"failed"`
	Total    int64 `json:"total"`
}

func newStatsResponse(counts map[delivery.State]int64) statsResponse {
	resp := statsResponse{
		Pending:  counts[delivery.StatePending],
		Retrying: counts[delivery.StateRetrying],
		Success:  counts[delivery.StateSuccess],
		Failed:   counts[delivery.StateFailed],
	}
	resp.Total = resp.Pending + resp.Retrying + resp.Success + resp.Failed
	return resp
}

func (h *Handler) getStats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.courier.Stats(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newStatsResponse(counts))
}
