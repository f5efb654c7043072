// Package approval gates side-effecting tool invocations behind explicit
// human approval. Each requested invocation becomes a ToolRun with a
// strict state machine; the owning workflow stays suspended until the run
// reaches a terminal state.
package approval

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flowline-ai/flowline/types"
)

// State is the lifecycle state of a ToolRun.
type State string

const (
	StatePending   State = "pending"
	StateApproved  State = "approved"
	StateRejected  State = "rejected"
	StateExecuting State = "executing"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateAborted   State = "aborted"
)

// allowedTransitions is the closed transition table. Anything absent here
// fails with ErrInvalidTransition.
var allowedTransitions = map[State][]State{
	StatePending:   {StateApproved, StateRejected, StateAborted},
	StateApproved:  {StateExecuting},
	StateExecuting: {StateCompleted, StateFailed},
}

// Terminal reports whether s permits no further transitions.
func (s State) Terminal() bool {
	switch s {
	case StateRejected, StateCompleted, StateFailed, StateAborted:
		return true
	}
	return false
}

func (s State) canTransitionTo(next State) bool {
	for _, t := range allowedTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Decision is a human resolution of a pending ToolRun.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// ReasonExpired marks a rejection produced by the configured approval
// timeout rather than a human actor.
const ReasonExpired = "Expired"

// ToolRun is one gated tool invocation.
type ToolRun struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	StepIndex      int             `json:"step_index"`
	ToolName       string          `json:"tool_name"`
	Arguments      json.RawMessage `json:"arguments,omitempty"`
	State          State           `json:"state"`
	ResolvedBy     string          `json:"resolved_by,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	ResolvedAt     *time.Time      `json:"resolved_at,omitempty"`
}

func (r *ToolRun) clone() *ToolRun {
	copied := *r
	if r.ResolvedAt != nil {
		at := *r.ResolvedAt
		copied.ResolvedAt = &at
	}
	return &copied
}

// TransitionFunc observes every state change of a ToolRun. The gate calls
// it outside its lock, in transition order per run.
type TransitionFunc func(run *ToolRun)

// Config controls gate behavior.
type Config struct {
	// ApprovalTimeout expires pending runs into REJECTED(Expired).
	// Zero disables expiry.
	ApprovalTimeout time.Duration `yaml:"approval_timeout" json:"approval_timeout"`
}

// Gate owns ToolRuns and enforces their state machine.
type Gate struct {
	config Config
	logger *zap.Logger

	mu     sync.Mutex
	runs   map[string]*ToolRun
	timers map[string]*time.Timer

	onTransition TransitionFunc
	onExpire     TransitionFunc
}

// NewGate creates a gate.
func NewGate(config Config, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		config: config,
		logger: logger.With(zap.String("component", "approval_gate")),
		runs:   make(map[string]*ToolRun),
		timers: make(map[string]*time.Timer),
	}
}

// OnTransition registers the transition observer. Must be called before
// the gate is used.
func (g *Gate) OnTransition(fn TransitionFunc) {
	g.onTransition = fn
}

// OnExpire registers the observer for timer-driven expiry, which has no
// human caller to carry the resolution back to the workflow. Must be
// called before the gate is used.
func (g *Gate) OnExpire(fn TransitionFunc) {
	g.onExpire = fn
}

// Create registers a new PENDING ToolRun and arms the expiry timer when
// one is configured.
func (g *Gate) Create(_ context.Context, conversationID string, stepIndex int, toolName string, arguments json.RawMessage) (*ToolRun, error) {
	run := &ToolRun{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		StepIndex:      stepIndex,
		ToolName:       toolName,
		Arguments:      arguments,
		State:          StatePending,
		CreatedAt:      time.Now(),
	}

	g.mu.Lock()
	g.runs[run.ID] = run
	if g.config.ApprovalTimeout > 0 {
		id := run.ID
		g.timers[id] = time.AfterFunc(g.config.ApprovalTimeout, func() { g.expire(id) })
	}
	snapshot := run.clone()
	g.mu.Unlock()

	g.logger.Info("tool run pending",
		zap.String("tool_run_id", run.ID),
		zap.String("conversation_id", conversationID),
		zap.String("tool", run.ToolName),
	)
	return snapshot, nil
}

// Get returns a snapshot of the run.
func (g *Gate) Get(toolRunID string) (*ToolRun, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	run, ok := g.runs[toolRunID]
	if !ok {
		return nil, types.NewErrorf(types.ErrToolRunNotFound, "tool run %q not found", toolRunID)
	}
	return run.clone(), nil
}

// Resolve applies a human decision to a PENDING run. Resolving a run in
// any other state fails with ErrInvalidTransition and leaves workflow
// state untouched.
func (g *Gate) Resolve(_ context.Context, toolRunID string, decision Decision, resolver string) (*ToolRun, error) {
	next := StateApproved
	if decision == DecisionReject {
		next = StateRejected
	} else if decision != DecisionApprove {
		return nil, types.NewErrorf(types.ErrInvalidTransition, "unknown decision %q", decision)
	}

	run, err := g.transition(toolRunID, next, func(r *ToolRun) {
		r.ResolvedBy = resolver
		now := time.Now()
		r.ResolvedAt = &now
	})
	if err != nil {
		return nil, err
	}

	g.logger.Info("tool run resolved",
		zap.String("tool_run_id", toolRunID),
		zap.String("decision", string(decision)),
		zap.String("resolver", resolver),
	)
	return run, nil
}

// MarkExecuting moves an APPROVED run into EXECUTING.
func (g *Gate) MarkExecuting(toolRunID string) (*ToolRun, error) {
	return g.transition(toolRunID, StateExecuting, nil)
}

// MarkCompleted finishes an EXECUTING run successfully.
func (g *Gate) MarkCompleted(toolRunID string) (*ToolRun, error) {
	return g.transition(toolRunID, StateCompleted, nil)
}

// MarkFailed finishes an EXECUTING run with a failure reason.
func (g *Gate) MarkFailed(toolRunID, reason string) (*ToolRun, error) {
	return g.transition(toolRunID, StateFailed, func(r *ToolRun) {
		r.Reason = reason
	})
}

// AbortConversation makes every pending run of the conversation
// non-resolvable. Later resolution attempts fail with
// ErrInvalidTransition.
func (g *Gate) AbortConversation(conversationID string) []*ToolRun {
	g.mu.Lock()
	var aborted []*ToolRun
	now := time.Now()
	for id, run := range g.runs {
		if run.ConversationID != conversationID || run.State != StatePending {
			continue
		}
		run.State = StateAborted
		run.Reason = "workflow aborted"
		run.ResolvedAt = &now
		g.stopTimerLocked(id)
		aborted = append(aborted, run.clone())
	}
	g.mu.Unlock()

	for _, run := range aborted {
		g.notify(run)
	}
	return aborted
}

// expire is the timer path: PENDING -> REJECTED(Expired).
func (g *Gate) expire(toolRunID string) {
	run, err := g.transition(toolRunID, StateRejected, func(r *ToolRun) {
		r.Reason = ReasonExpired
		now := time.Now()
		r.ResolvedAt = &now
	})
	if err != nil {
		// Resolved before the timer fired.
		return
	}
	g.logger.Warn("tool run expired",
		zap.String("tool_run_id", run.ID),
		zap.String("conversation_id", run.ConversationID),
	)
	if g.onExpire != nil {
		g.onExpire(run)
	}
}

func (g *Gate) transition(toolRunID string, next State, mutate func(*ToolRun)) (*ToolRun, error) {
	g.mu.Lock()
	run, ok := g.runs[toolRunID]
	if !ok {
		g.mu.Unlock()
		return nil, types.NewErrorf(types.ErrToolRunNotFound, "tool run %q not found", toolRunID)
	}
	if !run.State.canTransitionTo(next) {
		from := run.State
		g.mu.Unlock()
		return nil, types.NewErrorf(types.ErrInvalidTransition,
			"tool run %s: cannot transition %s -> %s", toolRunID, from, next)
	}
	run.State = next
	if mutate != nil {
		mutate(run)
	}
	if next.Terminal() || next == StateApproved {
		g.stopTimerLocked(toolRunID)
	}
	snapshot := run.clone()
	g.mu.Unlock()

	g.notify(snapshot)
	return snapshot, nil
}

func (g *Gate) stopTimerLocked(toolRunID string) {
	if timer, ok := g.timers[toolRunID]; ok {
		timer.Stop()
		delete(g.timers, toolRunID)
	}
}

func (g *Gate) notify(run *ToolRun) {
	if g.onTransition != nil {
		g.onTransition(run)
	}
}
