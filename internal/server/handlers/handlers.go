// Package handlers implements HTTP request handlers for the Tripwire API.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dwsmith1983/tripwire/internal/dispatch"
	"github.com/dwsmith1983/tripwire/internal/provider"
	"github.com/dwsmith1983/tripwire/pkg/types"
)

// Dispatcher runs strategies against events.
type Dispatcher interface {
	Dispatch(ctx context.Context, s types.Strategy, ev types.Event) ([]types.Execution, error)
	DispatchEvent(ctx context.Context, ev types.Event) ([]types.Execution, error)
}

var _ Dispatcher = (*dispatch.Coordinator)(nil)

// KeyGenerator mints a sealed signing key for a new strategy.
type KeyGenerator interface {
	Generate(strategyID string) (sealed string, owner common.Address, err error)
}

// StrategyChecker validates a strategy against the configured chains.
type StrategyChecker interface {
	ValidateStrategy(s types.Strategy) error
}

// Handlers contains all HTTP handler dependencies.
type Handlers struct {
	dispatcher Dispatcher
	provider   provider.Provider
	keys       KeyGenerator
	chains     StrategyChecker
	logger     *slog.Logger
}

// New creates a new Handlers instance.
func New(d Dispatcher, prov provider.Provider) *Handlers {
	return &Handlers{
		dispatcher: d,
		provider:   prov,
		logger:     slog.Default(),
	}
}

// SetLogger overrides the default logger.
func (h *Handlers) SetLogger(l *slog.Logger) {
	if l != nil {
		h.logger = l
	}
}

// SetStrategyChecker rejects registrations that name unusable chains.
func (h *Handlers) SetStrategyChecker(c StrategyChecker) { h.chains = c }

// SetKeyGenerator enables server-side key generation on registration.
func (h *Handlers) SetKeyGenerator(g KeyGenerator) { h.keys = g }

// writeError logs the internal error and returns a sanitized JSON error to the client.
func (h *Handlers) writeError(w http.ResponseWriter, status int, msg string, err error) {
	if err != nil {
		h.logger.Error(msg, "error", err, "status", status)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encoding response", "error", err)
	}
}

// limitParam reads ?limit= bounded to (0, 500].
func limitParam(r *http.Request, def int) int {
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 && n <= 500 {
			return n
		}
	}
	return def
}

// DispatchResponse is the body returned by dispatch endpoints.
type DispatchResponse struct {
	Executions []types.Execution `json:"executions"`
	Error      string            `json:"error,omitempty"`
}
