package hub

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/mverdier/parley/internal/broker"
)

// RespondRequest carries a remote answer to the pending request.
type RespondRequest struct {
	Value       string   `json:"value"`
	Attachments []string `json:"attachments,omitempty"`
}

// RespondResponse reports whether the answer was the winning one.
type RespondResponse struct {
	Accepted bool `json:"accepted"`
}

// CancelRequest carries an optional cancellation reason.
type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

// QueueAddRequest adds a prompt to the queue.
type QueueAddRequest struct {
	Text        string   `json:"text"`
	Attachments []string `json:"attachments,omitempty"`
}

// QueueEditRequest replaces a queued prompt's text.
type QueueEditRequest struct {
	Text string `json:"text"`
}

// QueueReorderRequest moves a queued prompt.
type QueueReorderRequest struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// QueueFlagRequest sets a queue gate.
type QueueFlagRequest struct {
	Paused  *bool `json:"paused,omitempty"`
	Enabled *bool `json:"enabled,omitempty"`
}

// handleAsk handles POST /requests. The connection blocks until the
// request is settled; an aborted connection cancels the request so no
// orphaned question lingers on remote screens.
func (h *Hub) handleAsk(w http.ResponseWriter, r *http.Request) {
	var spec broker.Spec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		h.jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req, resolution, err := h.broker.Register(spec)
	if err != nil {
		h.jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	select {
	case res := <-resolution:
		h.jsonResponse(w, http.StatusOK, res)
	case <-r.Context().Done():
		h.broker.Cancel(req.ID, "connection closed")
	}
}

// handleCurrentRequest handles GET /requests/current
func (h *Hub) handleCurrentRequest(w http.ResponseWriter, r *http.Request) {
	req := h.broker.Current()
	if req == nil {
		h.jsonError(w, http.StatusNotFound, "no pending request")
		return
	}
	h.jsonResponse(w, http.StatusOK, req)
}

// handleRespond handles POST /requests/{id}/respond. A losing answer is
// not an error: the response simply reports accepted=false and the
// client follows the requestResolved broadcast.
func (h *Hub) handleRespond(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req RespondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	accepted := h.broker.SubmitRemote(id, req.Value, req.Attachments)
	h.jsonResponse(w, http.StatusOK, RespondResponse{Accepted: accepted})
}

// handleCancel handles POST /requests/{id}/cancel
func (h *Hub) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// Allow empty body
		req = CancelRequest{}
	}
	if req.Reason == "" {
		req.Reason = "cancelled"
	}

	h.broker.Cancel(id, req.Reason)
	h.jsonResponse(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// handleState handles GET /state
func (h *Hub) handleState(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, http.StatusOK, h.broker.State())
}

// handleGetQueue handles GET /queue
func (h *Hub) handleGetQueue(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, http.StatusOK, h.broker.State().Queue)
}

// handleQueueAdd handles POST /queue
func (h *Hub) handleQueueAdd(w http.ResponseWriter, r *http.Request) {
	var req QueueAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		h.jsonError(w, http.StatusBadRequest, "text is required")
		return
	}

	item, err := h.broker.EnqueuePrompt(req.Text, req.Attachments)
	if err != nil {
		h.jsonError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	h.jsonResponse(w, http.StatusCreated, item)
}

// handleQueueEdit handles PUT /queue/{id}
func (h *Hub) handleQueueEdit(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req QueueEditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		h.jsonError(w, http.StatusBadRequest, "text is required")
		return
	}

	h.broker.EditPrompt(id, req.Text)
	h.jsonResponse(w, http.StatusOK, map[string]string{"status": "edited"})
}

// handleQueueRemove handles DELETE /queue/{id}
func (h *Hub) handleQueueRemove(w http.ResponseWriter, r *http.Request) {
	h.broker.RemovePrompt(r.PathValue("id"))
	h.jsonResponse(w, http.StatusOK, map[string]string{"status": "removed"})
}

// handleQueueReorder handles POST /queue/reorder
func (h *Hub) handleQueueReorder(w http.ResponseWriter, r *http.Request) {
	var req QueueReorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.broker.ReorderPrompts(req.From, req.To)
	h.jsonResponse(w, http.StatusOK, map[string]string{"status": "reordered"})
}

// handleQueuePaused handles POST /queue/paused
func (h *Hub) handleQueuePaused(w http.ResponseWriter, r *http.Request) {
	var req QueueFlagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Paused == nil {
		h.jsonError(w, http.StatusBadRequest, "paused is required")
		return
	}

	h.broker.SetQueuePaused(*req.Paused)
	h.jsonResponse(w, http.StatusOK, h.broker.State().Queue)
}

// handleQueueEnabled handles POST /queue/enabled
func (h *Hub) handleQueueEnabled(w http.ResponseWriter, r *http.Request) {
	var req QueueFlagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		h.jsonError(w, http.StatusBadRequest, "enabled is required")
		return
	}

	h.broker.SetQueueEnabled(*req.Enabled)
	h.jsonResponse(w, http.StatusOK, h.broker.State().Queue)
}

// handleQueueClear handles DELETE /queue
func (h *Hub) handleQueueClear(w http.ResponseWriter, r *http.Request) {
	h.broker.ClearQueue()
	h.jsonResponse(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// handleHistory handles GET /history
func (h *Hub) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.jsonError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := h.history.Recent(r.Context(), limit)
	if err != nil {
		h.jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.jsonResponse(w, http.StatusOK, entries)
}

// handleHealth handles GET /health
func (h *Hub) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"clients": h.sessions.count(),
	})
}
