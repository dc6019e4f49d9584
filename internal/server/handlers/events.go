package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dwsmith1983/tripwire/internal/dispatch"
	"github.com/dwsmith1983/tripwire/pkg/types"
)

// SubmitEvent archives an event and dispatches every strategy it activates.
func (h *Handlers) SubmitEvent(w http.ResponseWriter, r *http.Request) {
	var ev types.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", err)
		return
	}
	if ev.Kind == "" {
		h.writeError(w, http.StatusBadRequest, "kind is required", nil)
		return
	}

	execs, err := h.dispatcher.DispatchEvent(r.Context(), ev)
	if execs == nil {
		execs = []types.Execution{}
	}
	if err != nil {
		h.logger.Error("dispatch event", "error", err)
		msg := "dispatch failed"
		if errors.Is(err, dispatch.ErrNotRecorded) {
			msg = "transfers ran but an outcome was not recorded; do not resubmit"
		}
		h.writeJSON(w, http.StatusInternalServerError, DispatchResponse{Executions: execs, Error: msg})
		return
	}
	h.writeJSON(w, http.StatusOK, DispatchResponse{Executions: execs})
}

// ListEvents returns recently archived events, newest first.
func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.provider.ListEvents(r.Context(), limitParam(r, 50))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to list events", err)
		return
	}
	if events == nil {
		events = []types.Event{}
	}
	h.writeJSON(w, http.StatusOK, events)
}
