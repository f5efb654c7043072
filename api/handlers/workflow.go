package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/flowline-ai/flowline/api"
	"github.com/flowline-ai/flowline/approval"
	"github.com/flowline-ai/flowline/types"
	"github.com/flowline-ai/flowline/workflow"
)

// WorkflowHandler exposes the workflow engine over HTTP.
type WorkflowHandler struct {
	manager *workflow.Manager
	logger  *zap.Logger
}

// NewWorkflowHandler creates the handler.
func NewWorkflowHandler(manager *workflow.Manager, logger *zap.Logger) *WorkflowHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowHandler{
		manager: manager,
		logger:  logger.With(zap.String("component", "workflow_handler")),
	}
}

// Register mounts the routes on mux.
func (h *WorkflowHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/conversations/{id}/messages", h.HandleSubmitMessage)
	mux.HandleFunc("GET /api/v1/conversations/{id}/workflow", h.HandleGetWorkflow)
	mux.HandleFunc("POST /api/v1/conversations/{id}/abort", h.HandleAbort)
	mux.HandleFunc("GET /api/v1/conversations/{id}/logs", h.HandleListLogs)
	mux.HandleFunc("DELETE /api/v1/logs/{entryID}", h.HandleDeleteLog)
	mux.HandleFunc("POST /api/v1/tool-runs/{id}/resolve", h.HandleResolveToolRun)
}

// HandleSubmitMessage feeds a user message into the conversation's
// workflow and returns the resulting snapshot, which may be completed,
// suspended, or failed.
func (h *WorkflowHandler) HandleSubmitMessage(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")

	var req api.SubmitMessageRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Text == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "text is required"), h.logger)
		return
	}

	wf, err := h.manager.SubmitMessage(r.Context(), conversationID, req.Text)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, api.NewWorkflowView(wf))
}

// HandleGetWorkflow returns the conversation's current run.
func (h *WorkflowHandler) HandleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := h.manager.Workflow(r.PathValue("id"))
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, api.NewWorkflowView(wf))
}

// HandleAbort administratively terminates the conversation's workflow.
func (h *WorkflowHandler) HandleAbort(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")
	if err := h.manager.Abort(r.Context(), conversationID); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	wf, err := h.manager.Workflow(conversationID)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, api.NewWorkflowView(wf))
}

// HandleListLogs returns the conversation's log entries, oldest first.
func (h *WorkflowHandler) HandleListLogs(w http.ResponseWriter, r *http.Request) {
	entries, err := h.manager.ListLogs(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, api.NewLogEntryViews(entries))
}

// HandleDeleteLog prunes one log entry. Workflow state is untouched.
func (h *WorkflowHandler) HandleDeleteLog(w http.ResponseWriter, r *http.Request) {
	entryID := r.PathValue("entryID")
	if err := h.manager.DeleteLog(r.Context(), entryID); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]string{"deleted": entryID})
}

// HandleResolveToolRun applies a human decision to a pending tool run.
func (h *WorkflowHandler) HandleResolveToolRun(w http.ResponseWriter, r *http.Request) {
	toolRunID := r.PathValue("id")

	var req api.ResolveToolRunRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	var decision approval.Decision
	switch req.Decision {
	case "approve":
		decision = approval.DecisionApprove
	case "reject":
		decision = approval.DecisionReject
	default:
		WriteError(w, types.NewErrorf(types.ErrInvalidRequest,
			"decision must be approve or reject, got %q", req.Decision), h.logger)
		return
	}

	resolver := req.Resolver
	if resolver == "" {
		resolver = types.UserIDFromContext(r.Context())
	}
	if resolver == "" {
		resolver = "anonymous"
	}

	run, err := h.manager.ResolveToolRun(r.Context(), toolRunID, decision, resolver)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, api.NewToolRunView(run))
}
