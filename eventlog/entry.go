// Package eventlog provides the durable, append-only, per-conversation
// record of workflow events. The log is a derived projection of workflow
// state: entries may be pruned individually without touching execution
// state, and they replay in the exact order the originating steps and
// transitions occurred.
package eventlog

import (
	"errors"
	"time"
)

// Common errors
var (
	ErrNotFound     = errors.New("log entry not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrStoreClosed  = errors.New("store is closed")
)

// Kind classifies a log entry.
type Kind string

const (
	KindAgentMessage Kind = "agent_message"
	KindHandoff      Kind = "handoff"
	KindToolPending  Kind = "tool_pending"
	KindToolResolved Kind = "tool_resolved"
	KindPhaseChange  Kind = "phase_change"
	KindAborted      Kind = "workflow_aborted"
	KindError        Kind = "error"
)

// Entry is one persisted workflow event. AgentID is empty for system
// events such as errors and phase changes.
type Entry struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	StepIndex      int       `json:"step_index"`
	Kind           Kind      `json:"kind"`
	AgentID        string    `json:"agent_id,omitempty"`
	Payload        string    `json:"payload"`
	CreatedAt      time.Time `json:"created_at"`
}
