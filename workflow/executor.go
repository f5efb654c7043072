package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flowline-ai/flowline/approval"
	"github.com/flowline-ai/flowline/eventlog"
	"github.com/flowline-ai/flowline/internal/metrics"
	"github.com/flowline-ai/flowline/llm"
	"github.com/flowline-ai/flowline/types"
)

// ToolExecutor performs an approved tool invocation. The engine never
// executes tools before the gate reaches APPROVED.
type ToolExecutor interface {
	ExecuteTool(ctx context.Context, run *approval.ToolRun) (string, error)
}

// ToolExecutorFunc adapts a function to the ToolExecutor interface.
type ToolExecutorFunc func(ctx context.Context, run *approval.ToolRun) (string, error)

func (f ToolExecutorFunc) ExecuteTool(ctx context.Context, run *approval.ToolRun) (string, error) {
	return f(ctx, run)
}

// Deps bundles the collaborators an executor needs. Log, state, and
// metrics are optional; a nil tool executor completes approved runs with
// empty output.
type Deps struct {
	Registry     agentResolver
	Generator    llm.Generator
	Gate         *approval.Gate
	LogStore     eventlog.Store
	Broadcaster  *eventlog.Broadcaster
	State        StateStore
	Metrics      *metrics.Collector
	ToolExecutor ToolExecutor
	Logger       *zap.Logger
}

// agentResolver is the slice of the registry the executor needs.
type agentResolver interface {
	Contains(agentID string) bool
}

// Executor drives one conversation's workflow. All state mutation happens
// under mu, which serializes steps within the conversation; different
// conversations' executors run fully concurrently.
type Executor struct {
	mu   sync.Mutex
	wf   *Workflow
	deps Deps

	strategy Strategy
	config   StrategyConfig
	logger   *zap.Logger
}

// NewExecutor creates a fresh workflow run for the conversation.
func NewExecutor(conversationID string, strategy Strategy, config StrategyConfig, deps Deps) *Executor {
	config.Defaults()
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.State == nil {
		deps.State = NopStore{}
	}

	wf := &Workflow{
		RunID:          uuid.New().String(),
		ConversationID: conversationID,
		Strategy:       strategy.Kind(),
		AgentOrder:     config.AgentOrder,
		Phase:          PhaseExecuting,
		Status:         StatusRunning,
		CreatedAt:      time.Now(),
	}
	if strategy.Kind() == KindHybrid {
		wf.Phase = PhasePlanning
	}

	return &Executor{
		wf:       wf,
		deps:     deps,
		strategy: strategy,
		config:   config,
		logger: logger.With(
			zap.String("component", "workflow_executor"),
			zap.String("conversation_id", conversationID),
		),
	}
}

// Snapshot returns a copy of the workflow for read-only callers.
func (e *Executor) Snapshot() *Workflow {
	e.mu.Lock()
	defer e.mu.Unlock()
	copied := *e.wf
	copied.Steps = e.wf.History()
	copied.Messages = append([]llm.Message(nil), e.wf.Messages...)
	return &copied
}

// Status returns the current workflow status.
func (e *Executor) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.wf.Status
}

// Submit feeds a new inbound message into the workflow and runs it until
// completion, suspension, or failure. A suspended or terminal workflow
// rejects the message.
func (e *Executor) Submit(ctx context.Context, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case e.wf.Status.Terminal():
		return types.NewErrorf(types.ErrWorkflowTerminal,
			"workflow for conversation %s is %s", e.wf.ConversationID, e.wf.Status)
	case e.wf.Status == StatusSuspended:
		return types.NewErrorf(types.ErrConversationSuspended,
			"conversation %s is awaiting tool approval", e.wf.ConversationID)
	}

	e.wf.Messages = append(e.wf.Messages, llm.Message{Role: llm.RoleUser, Content: text})
	e.runLoopLocked(ctx)
	return nil
}

// HandleResolution reacts to a ToolRun leaving PENDING: it appends the
// tool_resolved log entry, drives approved runs through execution, and
// resumes routing. Resolutions for a run the workflow is not waiting on
// are ignored.
func (e *Executor) HandleResolution(ctx context.Context, run *approval.ToolRun) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.wf.Status != StatusSuspended || e.wf.PendingToolRun != run.ID {
		return
	}

	final := run
	output := ""
	if run.State == approval.StateApproved {
		final, output = e.executeApprovedLocked(ctx, run)
	}

	payload, _ := json.Marshal(map[string]string{
		"tool_run_id": final.ID,
		"tool":        final.ToolName,
		"state":       string(final.State),
		"resolved_by": final.ResolvedBy,
		"reason":      final.Reason,
		"output":      output,
	})
	e.appendEntryLocked(ctx, &eventlog.Entry{
		ConversationID: e.wf.ConversationID,
		StepIndex:      final.StepIndex,
		Kind:           eventlog.KindToolResolved,
		AgentID:        e.agentAtStep(final.StepIndex),
		Payload:        string(payload),
	})

	// The next agent sees the tool outcome as part of its input.
	summary := fmt.Sprintf("tool %s %s", final.ToolName, final.State)
	if output != "" {
		summary += ": " + output
	} else if final.Reason != "" {
		summary += ": " + final.Reason
	}
	e.wf.Messages = append(e.wf.Messages, llm.Message{Role: llm.RoleSystem, Content: summary})

	e.wf.PendingToolRun = ""
	e.wf.Status = StatusRunning
	e.deps.Metrics.SetSuspended(-1)
	e.persistWorkflowLocked(ctx)

	e.runLoopLocked(ctx)
}

// executeApprovedLocked walks an approved run through
// EXECUTING -> COMPLETED|FAILED and returns the terminal snapshot.
func (e *Executor) executeApprovedLocked(ctx context.Context, run *approval.ToolRun) (*approval.ToolRun, string) {
	if _, err := e.deps.Gate.MarkExecuting(run.ID); err != nil {
		e.logger.Error("tool run cannot enter executing", zap.Error(err))
		return run, ""
	}

	var (
		output string
		err    error
	)
	if e.deps.ToolExecutor != nil {
		output, err = e.deps.ToolExecutor.ExecuteTool(ctx, run)
	}

	var final *approval.ToolRun
	if err != nil {
		final, _ = e.deps.Gate.MarkFailed(run.ID, err.Error())
	} else {
		final, _ = e.deps.Gate.MarkCompleted(run.ID)
	}
	if final == nil {
		return run, output
	}
	return final, output
}

// Abort terminates the workflow from outside, at any point including
// while suspended. Pending tool runs become non-resolvable.
func (e *Executor) Abort(ctx context.Context) error {
	e.mu.Lock()
	if e.wf.Status.Terminal() {
		status := e.wf.Status
		e.mu.Unlock()
		return types.NewErrorf(types.ErrWorkflowTerminal,
			"workflow for conversation %s already %s", e.wf.ConversationID, status)
	}

	wasSuspended := e.wf.Status == StatusSuspended
	e.wf.Status = StatusAborted
	e.wf.PendingToolRun = ""
	if wasSuspended {
		e.deps.Metrics.SetSuspended(-1)
	}
	e.appendEntryLocked(ctx, &eventlog.Entry{
		ConversationID: e.wf.ConversationID,
		StepIndex:      e.wf.StepIndex,
		Kind:           eventlog.KindAborted,
		Payload:        "workflow aborted",
	})
	e.persistWorkflowLocked(ctx)
	e.deps.Metrics.RecordWorkflow(string(StatusAborted))
	e.logger.Info("workflow aborted")
	e.mu.Unlock()

	// Outside the lock: the gate notifies observers synchronously.
	e.deps.Gate.AbortConversation(e.wf.ConversationID)
	return nil
}

// runLoopLocked advances the workflow until it suspends or terminates.
func (e *Executor) runLoopLocked(ctx context.Context) {
	for e.wf.Status == StatusRunning {
		prevPhase := e.wf.Phase
		decision := e.strategy.DecideNext(ctx, e.wf, e.wf.History(), e.wf.LatestOutput())
		e.deps.Metrics.RecordDecision(string(e.strategy.Kind()), string(decision.Kind))

		if e.wf.Phase != prevPhase {
			e.appendEntryLocked(ctx, &eventlog.Entry{
				ConversationID: e.wf.ConversationID,
				StepIndex:      e.wf.StepIndex,
				Kind:           eventlog.KindPhaseChange,
				Payload:        fmt.Sprintf("%s -> %s", prevPhase, e.wf.Phase),
			})
			e.persistWorkflowLocked(ctx)
		}

		switch decision.Kind {
		case DecisionComplete:
			e.completeLocked(ctx)
		case DecisionFail:
			err := decision.Err
			if err == nil {
				err = types.NewError(types.ErrRoutingError, "strategy failed without reason")
			}
			e.failLocked(ctx, err)
		case DecisionContinue:
			// The budget vetoes further steps, never a completion the
			// strategy already decided on.
			if e.wf.StepIndex >= e.config.MaxSteps {
				e.failLocked(ctx, types.NewErrorf(types.ErrBudgetExceeded,
					"step budget of %d exhausted", e.config.MaxSteps))
				return
			}
			if !e.deps.Registry.Contains(decision.AgentID) {
				e.failLocked(ctx, types.NewErrorf(types.ErrAgentNotFound,
					"agent %q not registered", decision.AgentID))
				return
			}
			e.executeStepLocked(ctx, decision.AgentID)
		default:
			e.failLocked(ctx, types.NewErrorf(types.ErrRoutingError,
				"unknown decision kind %q", decision.Kind))
		}
	}
}

// executeStepLocked runs one agent turn.
func (e *Executor) executeStepLocked(ctx context.Context, agentID string) {
	start := time.Now()
	input := append([]llm.Message(nil), e.wf.Messages...)

	result, err := e.deps.Generator.Generate(ctx, &llm.Request{
		ConversationID: e.wf.ConversationID,
		AgentID:        agentID,
		History:        input,
		Context: map[string]string{
			"strategy": string(e.wf.Strategy),
			"phase":    string(e.wf.Phase),
		},
	})
	if err != nil {
		// Retries and per-attempt timeouts already happened inside the
		// generator; an error here means the policy is exhausted.
		e.failLocked(ctx, types.NewError(types.ErrGenerationExhausted,
			"agent generation failed").WithCause(err))
		return
	}

	prevAgent := ""
	if n := len(e.wf.Steps); n > 0 {
		prevAgent = e.wf.Steps[n-1].AgentID
	}

	outcome := OutcomeHandoff
	if result.ToolCall != nil {
		outcome = OutcomeToolRequested
	}
	step := &Step{
		Index:       e.wf.StepIndex,
		AgentID:     agentID,
		InputDigest: digestMessages(input),
		Output:      result.Text,
		ToolCall:    result.ToolCall,
		Timestamp:   time.Now(),
		Outcome:     outcome,
	}
	e.wf.Steps = append(e.wf.Steps, step)
	e.wf.StepIndex++
	e.wf.Messages = append(e.wf.Messages, llm.Message{
		Role:    llm.RoleAssistant,
		AgentID: agentID,
		Content: result.Text,
	})
	e.persistStepLocked(ctx, step)

	e.appendEntryLocked(ctx, &eventlog.Entry{
		ConversationID: e.wf.ConversationID,
		StepIndex:      step.Index,
		Kind:           eventlog.KindAgentMessage,
		AgentID:        agentID,
		Payload:        result.Text,
	})
	if prevAgent != "" && prevAgent != agentID {
		e.appendEntryLocked(ctx, &eventlog.Entry{
			ConversationID: e.wf.ConversationID,
			StepIndex:      step.Index,
			Kind:           eventlog.KindHandoff,
			AgentID:        agentID,
			Payload:        fmt.Sprintf("%s -> %s", prevAgent, agentID),
		})
	}
	e.deps.Metrics.RecordStep(agentID, string(outcome), time.Since(start))

	if result.ToolCall != nil {
		e.suspendForApprovalLocked(ctx, step, result.ToolCall)
	}
	e.persistWorkflowLocked(ctx)
}

// suspendForApprovalLocked creates the PENDING ToolRun and parks the
// workflow at the gate.
func (e *Executor) suspendForApprovalLocked(ctx context.Context, step *Step, call *llm.ToolCall) {
	run, err := e.deps.Gate.Create(ctx, e.wf.ConversationID, step.Index, call.Name, call.Arguments)
	if err != nil {
		e.failLocked(ctx, types.NewError(types.ErrInternalError,
			"tool run creation failed").WithCause(err))
		return
	}

	payload, _ := json.Marshal(map[string]any{
		"tool_run_id": run.ID,
		"tool":        run.ToolName,
		"arguments":   json.RawMessage(run.Arguments),
	})
	e.appendEntryLocked(ctx, &eventlog.Entry{
		ConversationID: e.wf.ConversationID,
		StepIndex:      step.Index,
		Kind:           eventlog.KindToolPending,
		AgentID:        step.AgentID,
		Payload:        string(payload),
	})

	e.wf.PendingToolRun = run.ID
	e.wf.Status = StatusSuspended
	e.deps.Metrics.SetSuspended(1)
	e.logger.Info("workflow suspended for approval",
		zap.String("tool_run_id", run.ID),
		zap.String("tool", run.ToolName),
	)
}

// completeLocked finishes the workflow and marks the last step final.
// A step that spawned a tool run keeps its tool_requested outcome: the
// outcome records what the step did, not how the workflow ended.
func (e *Executor) completeLocked(ctx context.Context) {
	if n := len(e.wf.Steps); n > 0 {
		if last := e.wf.Steps[n-1]; last.Outcome == OutcomeHandoff {
			last.Outcome = OutcomeFinal
			e.persistStepLocked(ctx, last)
		}
	}
	e.wf.Status = StatusCompleted
	e.persistWorkflowLocked(ctx)
	e.deps.Metrics.RecordWorkflow(string(StatusCompleted))
	e.logger.Info("workflow completed", zap.Int("steps", len(e.wf.Steps)))
}

// failLocked terminates the workflow and surfaces the reason as an error
// log entry. A failed workflow stays queryable but cannot be resumed.
func (e *Executor) failLocked(ctx context.Context, failure *types.Error) {
	e.wf.Status = StatusFailed
	e.wf.FailureReason = failure.Error()

	payload, _ := json.Marshal(map[string]string{
		"code":    string(failure.Code),
		"message": failure.Message,
	})
	e.appendEntryLocked(ctx, &eventlog.Entry{
		ConversationID: e.wf.ConversationID,
		StepIndex:      e.wf.StepIndex,
		Kind:           eventlog.KindError,
		Payload:        string(payload),
	})
	e.persistWorkflowLocked(ctx)
	e.deps.Metrics.RecordWorkflow(string(StatusFailed))
	e.logger.Warn("workflow failed", zap.Error(failure))
}

// appendEntryLocked writes one log entry and streams it to subscribers.
// Durability loss of a single entry must not corrupt execution state, so
// append failures are diagnostics only.
func (e *Executor) appendEntryLocked(ctx context.Context, entry *eventlog.Entry) {
	if e.deps.LogStore != nil {
		if _, err := e.deps.LogStore.Append(ctx, entry); err != nil {
			e.deps.Metrics.RecordLogAppend(false)
			e.logger.Error("event log append failed",
				zap.String("kind", string(entry.Kind)),
				zap.Error(err),
			)
		} else {
			e.deps.Metrics.RecordLogAppend(true)
		}
	}
	if e.deps.Broadcaster != nil {
		e.deps.Broadcaster.Publish(entry)
	}
}

func (e *Executor) persistWorkflowLocked(ctx context.Context) {
	if err := e.deps.State.SaveWorkflow(ctx, e.wf); err != nil {
		e.logger.Error("workflow state persist failed", zap.Error(err))
	}
}

func (e *Executor) persistStepLocked(ctx context.Context, step *Step) {
	if err := e.deps.State.SaveStep(ctx, e.wf.RunID, step); err != nil {
		e.logger.Error("step persist failed", zap.Int("step", step.Index), zap.Error(err))
	}
}

func (e *Executor) agentAtStep(index int) string {
	for _, s := range e.wf.Steps {
		if s.Index == index {
			return s.AgentID
		}
	}
	return ""
}
