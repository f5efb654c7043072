package api

import (
	"encoding/json"
	"time"

	"github.com/flowline-ai/flowline/approval"
	"github.com/flowline-ai/flowline/eventlog"
	"github.com/flowline-ai/flowline/workflow"
)

// SubmitMessageRequest triggers or resumes a conversation's workflow.
type SubmitMessageRequest struct {
	Text string `json:"text"`
}

// ResolveToolRunRequest carries a human decision on a pending tool run.
type ResolveToolRunRequest struct {
	// Decision is "approve" or "reject".
	Decision string `json:"decision"`
	// Resolver identifies the actor; defaults to the authenticated user.
	Resolver string `json:"resolver,omitempty"`
}

// StepView is one executed workflow step.
type StepView struct {
	Index       int       `json:"index"`
	AgentID     string    `json:"agent_id"`
	InputDigest string    `json:"input_digest"`
	Output      string    `json:"output"`
	Outcome     string    `json:"outcome"`
	Timestamp   time.Time `json:"timestamp"`
}

// WorkflowView is the external shape of a workflow run.
type WorkflowView struct {
	RunID          string     `json:"run_id"`
	ConversationID string     `json:"conversation_id"`
	Strategy       string     `json:"strategy"`
	Phase          string     `json:"phase"`
	Status         string     `json:"status"`
	Steps          []StepView `json:"steps"`
	PendingToolRun string     `json:"pending_tool_run,omitempty"`
	FailureReason  string     `json:"failure_reason,omitempty"`
	LatestOutput   string     `json:"latest_output,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// ToolRunView is the external shape of a gated tool invocation.
type ToolRunView struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	StepIndex      int             `json:"step_index"`
	ToolName       string          `json:"tool_name"`
	Arguments      json.RawMessage `json:"arguments,omitempty"`
	State          string          `json:"state"`
	ResolvedBy     string          `json:"resolved_by,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	ResolvedAt     *time.Time      `json:"resolved_at,omitempty"`
}

// LogEntryView is one workflow log entry.
type LogEntryView struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	StepIndex      int       `json:"step_index"`
	Kind           string    `json:"kind"`
	AgentID        string    `json:"agent_id,omitempty"`
	Payload        string    `json:"payload"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewWorkflowView converts a workflow snapshot.
func NewWorkflowView(wf *workflow.Workflow) WorkflowView {
	steps := make([]StepView, len(wf.Steps))
	for i, s := range wf.Steps {
		steps[i] = StepView{
			Index:       s.Index,
			AgentID:     s.AgentID,
			InputDigest: s.InputDigest,
			Output:      s.Output,
			Outcome:     string(s.Outcome),
			Timestamp:   s.Timestamp,
		}
	}
	return WorkflowView{
		RunID:          wf.RunID,
		ConversationID: wf.ConversationID,
		Strategy:       string(wf.Strategy),
		Phase:          string(wf.Phase),
		Status:         string(wf.Status),
		Steps:          steps,
		PendingToolRun: wf.PendingToolRun,
		FailureReason:  wf.FailureReason,
		LatestOutput:   wf.LatestOutput(),
		CreatedAt:      wf.CreatedAt,
	}
}

// NewToolRunView converts a tool run snapshot.
func NewToolRunView(run *approval.ToolRun) ToolRunView {
	return ToolRunView{
		ID:             run.ID,
		ConversationID: run.ConversationID,
		StepIndex:      run.StepIndex,
		ToolName:       run.ToolName,
		Arguments:      run.Arguments,
		State:          string(run.State),
		ResolvedBy:     run.ResolvedBy,
		Reason:         run.Reason,
		CreatedAt:      run.CreatedAt,
		ResolvedAt:     run.ResolvedAt,
	}
}

// NewLogEntryView converts a log entry.
func NewLogEntryView(e *eventlog.Entry) LogEntryView {
	return LogEntryView{
		ID:             e.ID,
		ConversationID: e.ConversationID,
		StepIndex:      e.StepIndex,
		Kind:           string(e.Kind),
		AgentID:        e.AgentID,
		Payload:        e.Payload,
		CreatedAt:      e.CreatedAt,
	}
}

// NewLogEntryViews converts a list, oldest first.
func NewLogEntryViews(entries []*eventlog.Entry) []LogEntryView {
	views := make([]LogEntryView, len(entries))
	for i, e := range entries {
		views[i] = NewLogEntryView(e)
	}
	return views
}
