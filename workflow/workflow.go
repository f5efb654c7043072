// Package workflow drives one conversation's turn-by-turn progression
// through a sequence of specialized agents. A routing strategy picks the
// next agent, side-effecting tool calls suspend the workflow at the
// approval gate, and every decision lands in the durable event log.
package workflow

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/flowline-ai/flowline/llm"
)

// Status is the lifecycle state of a workflow.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSuspended Status = "suspended_for_approval"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusAborted   Status = "aborted"
)

// Terminal reports whether the workflow permits no further steps.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusAborted:
		return true
	}
	return false
}

// Phase distinguishes the Hybrid strategy's two stages. It is meaningless
// for the other strategies.
type Phase string

const (
	PhasePlanning  Phase = "planning"
	PhaseExecuting Phase = "executing"
)

// StepOutcome classifies how an agent turn ended.
type StepOutcome string

const (
	OutcomeHandoff       StepOutcome = "handoff"
	OutcomeToolRequested StepOutcome = "tool_requested"
	OutcomeFinal         StepOutcome = "final"
)

// Step is one agent turn. Immutable once recorded, except that a final
// handoff step's outcome becomes OutcomeFinal when the strategy completes
// the workflow. A tool_requested outcome is never rewritten: its tool run
// keeps pointing at a step that says so.
type Step struct {
	Index       int           `json:"index"`
	AgentID     string        `json:"agent_id"`
	InputDigest string        `json:"input_digest"`
	Output      string        `json:"output"`
	ToolCall    *llm.ToolCall `json:"tool_call,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
	Outcome     StepOutcome   `json:"outcome"`
}

// Workflow is one execution run for a conversation. It is mutated only by
// the owning Executor, which serializes all access.
type Workflow struct {
	RunID          string        `json:"run_id"`
	ConversationID string        `json:"conversation_id"`
	Strategy       StrategyKind  `json:"strategy"`
	AgentOrder     []string      `json:"agent_order,omitempty"`
	StepIndex      int           `json:"step_index"`
	Phase          Phase         `json:"phase"`
	Status         Status        `json:"status"`
	Steps          []*Step       `json:"steps"`
	Messages       []llm.Message `json:"messages"`
	PendingToolRun string        `json:"pending_tool_run,omitempty"`
	FailureReason  string        `json:"failure_reason,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// History returns a read-only snapshot of the steps taken so far.
func (w *Workflow) History() []*Step {
	out := make([]*Step, len(w.Steps))
	copy(out, w.Steps)
	return out
}

// LatestOutput returns the most recent step's output text, or empty when
// no step has run.
func (w *Workflow) LatestOutput() string {
	if len(w.Steps) == 0 {
		return ""
	}
	return w.Steps[len(w.Steps)-1].Output
}

// digestMessages fingerprints what an agent saw as its input.
func digestMessages(messages []llm.Message) string {
	h := sha256.New()
	for _, m := range messages {
		h.Write([]byte(m.Role))
		h.Write([]byte{0})
		h.Write([]byte(m.AgentID))
		h.Write([]byte{0})
		h.Write([]byte(m.Content))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
