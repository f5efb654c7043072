package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/flowline-ai/flowline/config"
	"github.com/flowline-ai/flowline/types"
	"github.com/flowline-ai/flowline/workflow"
)

// StrategyHandler manages per-conversation routing overrides. Overrides
// apply to workflows created after the write; a running workflow keeps
// the strategy it started with.
type StrategyHandler struct {
	store  *config.SyncStore
	logger *zap.Logger
}

// NewStrategyHandler creates the handler.
func NewStrategyHandler(store *config.SyncStore, logger *zap.Logger) *StrategyHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StrategyHandler{
		store:  store,
		logger: logger.With(zap.String("component", "strategy_handler")),
	}
}

// Register mounts the routes on mux.
func (h *StrategyHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/conversations/{id}/strategy", h.HandleGet)
	mux.HandleFunc("PUT /api/v1/conversations/{id}/strategy", h.HandlePut)
	mux.HandleFunc("DELETE /api/v1/conversations/{id}/strategy", h.HandleDelete)
}

// HandleGet returns the strategy new workflows of this conversation
// would receive.
func (h *StrategyHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.store.StrategyFor(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, cfg)
}

// HandlePut stores an override for the conversation.
func (h *StrategyHandler) HandlePut(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")

	var cfg workflow.StrategyConfig
	if err := DecodeJSONBody(w, r, &cfg, h.logger); err != nil {
		return
	}
	switch cfg.Kind {
	case workflow.KindOrchestrator, workflow.KindFewShot, workflow.KindHybrid:
	default:
		WriteError(w, types.NewErrorf(types.ErrMalformedStrategy,
			"unknown strategy kind %q", cfg.Kind), h.logger)
		return
	}

	if err := h.store.SetOverride(r.Context(), conversationID, cfg); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, cfg)
}

// HandleDelete removes the override; the default strategy applies again.
func (h *StrategyHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")
	if err := h.store.DeleteOverride(r.Context(), conversationID); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]string{"conversation_id": conversationID, "strategy": "default"})
}
