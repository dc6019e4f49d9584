package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/dwsmith1983/tripwire/internal/provider"
	"github.com/dwsmith1983/tripwire/pkg/types"
)

// RegisterRequest is the body of POST /api/strategies. Active defaults to true.
type RegisterRequest struct {
	ID           string          `json:"id,omitempty"`
	OwnerID      string          `json:"ownerId"`
	Name         string          `json:"name"`
	Triggers     []types.Trigger `json:"triggers"`
	Actions      []types.Action  `json:"actions"`
	EncryptedKey string          `json:"encryptedKey,omitempty"`
	Active       *bool           `json:"active,omitempty"`
}

// StrategyView is a strategy as returned by the API; the sealed key is omitted.
type StrategyView struct {
	ID           string          `json:"id"`
	OwnerID      string          `json:"ownerId"`
	Name         string          `json:"name"`
	Triggers     []types.Trigger `json:"triggers"`
	Actions      []types.Action  `json:"actions"`
	OwnerAddress string          `json:"ownerAddress,omitempty"`
	HasKey       bool            `json:"hasKey"`
	Active       bool            `json:"active"`
	CreatedAt    time.Time       `json:"createdAt"`
}

func view(s types.Strategy) StrategyView {
	return StrategyView{
		ID:           s.ID,
		OwnerID:      s.OwnerID,
		Name:         s.Name,
		Triggers:     s.Triggers,
		Actions:      s.Actions,
		OwnerAddress: s.OwnerAddress,
		HasKey:       s.EncryptedKey != "",
		Active:       s.Active,
		CreatedAt:    s.CreatedAt,
	}
}

// RegisterStrategy validates and stores a strategy.
func (h *Handlers) RegisterStrategy(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", err)
		return
	}

	s := types.Strategy{
		ID:           req.ID,
		OwnerID:      req.OwnerID,
		Name:         req.Name,
		Triggers:     req.Triggers,
		Actions:      req.Actions,
		EncryptedKey: req.EncryptedKey,
		Active:       req.Active == nil || *req.Active,
		CreatedAt:    time.Now().UTC(),
	}
	if s.ID == "" {
		s.ID = ulid.Make().String()
	}
	if err := s.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if h.chains != nil {
		if err := h.chains.ValidateStrategy(s); err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
	}

	if _, err := h.provider.GetStrategy(r.Context(), s.ID); err == nil {
		h.writeError(w, http.StatusConflict, "strategy already exists", nil)
		return
	} else if !errors.Is(err, provider.ErrNotFound) {
		h.writeError(w, http.StatusInternalServerError, "failed to check strategy", err)
		return
	}

	if s.EncryptedKey == "" && h.keys != nil {
		sealed, owner, err := h.keys.Generate(s.ID)
		if err != nil {
			h.writeError(w, http.StatusInternalServerError, "failed to generate signing key", err)
			return
		}
		s.EncryptedKey = sealed
		s.OwnerAddress = owner.Hex()
	}

	if err := h.provider.PutStrategy(r.Context(), s); err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to register strategy", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, view(s))
}

// GetStrategy returns a single strategy.
func (h *Handlers) GetStrategy(w http.ResponseWriter, r *http.Request) {
	s, ok := h.loadStrategy(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, view(*s))
}

// DispatchStrategy runs one strategy against the event in the body,
// bypassing trigger matching.
func (h *Handlers) DispatchStrategy(w http.ResponseWriter, r *http.Request) {
	s, ok := h.loadStrategy(w, r)
	if !ok {
		return
	}
	var ev types.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", err)
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	execs, err := h.dispatcher.Dispatch(r.Context(), *s, ev)
	if execs == nil {
		execs = []types.Execution{}
	}
	if err != nil {
		h.logger.Error("dispatch strategy", "strategy", s.ID, "error", err)
		h.writeJSON(w, http.StatusInternalServerError, DispatchResponse{Executions: execs, Error: "dispatch failed"})
		return
	}
	h.writeJSON(w, http.StatusOK, DispatchResponse{Executions: execs})
}

// ListExecutions returns a strategy's executions, newest first.
func (h *Handlers) ListExecutions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "strategyID")
	execs, err := h.provider.ListExecutions(r.Context(), id, limitParam(r, 20))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to list executions", err)
		return
	}
	if execs == nil {
		execs = []types.Execution{}
	}
	h.writeJSON(w, http.StatusOK, execs)
}

func (h *Handlers) loadStrategy(w http.ResponseWriter, r *http.Request) (*types.Strategy, bool) {
	id := chi.URLParam(r, "strategyID")
	s, err := h.provider.GetStrategy(r.Context(), id)
	if errors.Is(err, provider.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "strategy not found", nil)
		return nil, false
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to load strategy", err)
		return nil, false
	}
	return s, true
}
