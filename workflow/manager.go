package workflow

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/flowline-ai/flowline/agent/registry"
	"github.com/flowline-ai/flowline/approval"
	"github.com/flowline-ai/flowline/eventlog"
	"github.com/flowline-ai/flowline/internal/metrics"
	"github.com/flowline-ai/flowline/llm"
	"github.com/flowline-ai/flowline/types"
)

// ConfigSource supplies the routing configuration for a conversation.
// It is consulted once per workflow creation and never mid-workflow.
type ConfigSource interface {
	StrategyFor(ctx context.Context, conversationID string) (StrategyConfig, error)
}

// ConfigSourceFunc adapts a function to the ConfigSource interface.
type ConfigSourceFunc func(ctx context.Context, conversationID string) (StrategyConfig, error)

func (f ConfigSourceFunc) StrategyFor(ctx context.Context, conversationID string) (StrategyConfig, error) {
	return f(ctx, conversationID)
}

// ManagerDeps bundles the manager's collaborators.
type ManagerDeps struct {
	Registry     *registry.Registry
	Generator    llm.Generator
	Completer    llm.Completer
	Gate         *approval.Gate
	LogStore     eventlog.Store
	Broadcaster  *eventlog.Broadcaster
	State        StateStore
	Metrics      *metrics.Collector
	ToolExecutor ToolExecutor
	Configs      ConfigSource
	Logger       *zap.Logger
}

// Manager owns one executor per conversation and exposes the engine's
// operations: submit, resolve, abort, and log access. Within a
// conversation steps are strictly serialized by the executor; across
// conversations everything runs concurrently.
type Manager struct {
	deps   ManagerDeps
	logger *zap.Logger

	mu    sync.Mutex
	execs map[string]*Executor
}

// NewManager wires the gate observers and returns a ready manager.
func NewManager(deps ManagerDeps) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.State == nil {
		deps.State = NopStore{}
	}

	m := &Manager{
		deps:   deps,
		logger: logger.With(zap.String("component", "workflow_manager")),
		execs:  make(map[string]*Executor),
	}

	deps.Gate.OnTransition(func(run *approval.ToolRun) {
		m.deps.Metrics.RecordToolRun(string(run.State))
		if err := m.deps.State.SaveToolRun(context.Background(), run); err != nil {
			m.logger.Error("tool run persist failed",
				zap.String("tool_run_id", run.ID),
				zap.Error(err),
			)
		}
	})
	deps.Gate.OnExpire(func(run *approval.ToolRun) {
		// Timer-driven rejection has no resolving caller, so the gate
		// routes it back to the owning workflow here.
		if exec := m.executor(run.ConversationID); exec != nil {
			exec.HandleResolution(context.Background(), run)
		}
	})
	return m
}

// SubmitMessage triggers or resumes a workflow for the conversation. A
// terminal previous run starts a fresh one; a suspended run rejects the
// message.
func (m *Manager) SubmitMessage(ctx context.Context, conversationID, text string) (*Workflow, error) {
	exec, err := m.executorForSubmit(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if err := exec.Submit(ctx, text); err != nil {
		return nil, err
	}
	return exec.Snapshot(), nil
}

// executorForSubmit returns the live executor for the conversation,
// creating a new workflow run when none exists or the previous run is
// terminal.
func (m *Manager) executorForSubmit(ctx context.Context, conversationID string) (*Executor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if exec, ok := m.execs[conversationID]; ok && !exec.Status().Terminal() {
		return exec, nil
	}

	cfg, err := m.deps.Configs.StrategyFor(ctx, conversationID)
	if err != nil {
		return nil, types.NewError(types.ErrMalformedStrategy,
			"strategy configuration unavailable").WithCause(err)
	}
	cfg.Defaults()

	strategy, err := m.buildStrategy(cfg)
	if err != nil {
		return nil, err
	}

	exec := NewExecutor(conversationID, strategy, cfg, Deps{
		Registry:     m.deps.Registry,
		Generator:    m.deps.Generator,
		Gate:         m.deps.Gate,
		LogStore:     m.deps.LogStore,
		Broadcaster:  m.deps.Broadcaster,
		State:        m.deps.State,
		Metrics:      m.deps.Metrics,
		ToolExecutor: m.deps.ToolExecutor,
		Logger:       m.logger,
	})
	m.execs[conversationID] = exec
	m.logger.Info("workflow created",
		zap.String("conversation_id", conversationID),
		zap.String("strategy", string(cfg.Kind)),
	)
	return exec, nil
}

// buildStrategy assembles the closed set of strategies. Malformed agent
// lists are fatal here, at workflow creation, never at runtime.
func (m *Manager) buildStrategy(cfg StrategyConfig) (Strategy, error) {
	switch cfg.Kind {
	case KindOrchestrator:
		orch := NewOrchestrator(m.deps.Registry)
		if err := orch.ValidateOrder(cfg.AgentOrder); err != nil {
			return nil, err
		}
		return orch, nil
	case KindFewShot:
		return NewFewShotRouter(m.deps.Completer, m.deps.Registry, cfg, m.logger), nil
	case KindHybrid:
		orch := NewOrchestrator(m.deps.Registry)
		if err := orch.ValidateOrder(cfg.PlanningOrder); err != nil {
			return nil, err
		}
		router := NewFewShotRouter(m.deps.Completer, m.deps.Registry, cfg, m.logger)
		return NewHybrid(orch, router, cfg, m.logger), nil
	default:
		return nil, types.NewErrorf(types.ErrMalformedStrategy, "unknown strategy kind %q", cfg.Kind)
	}
}

// ResolveToolRun applies a human decision. Approval errors are local to
// this call and never touch workflow state.
func (m *Manager) ResolveToolRun(ctx context.Context, toolRunID string, decision approval.Decision, resolver string) (*approval.ToolRun, error) {
	run, err := m.deps.Gate.Resolve(ctx, toolRunID, decision, resolver)
	if err != nil {
		return nil, err
	}
	if exec := m.executor(run.ConversationID); exec != nil {
		exec.HandleResolution(ctx, run)
	}
	// Return the final state, which may have advanced past APPROVED.
	return m.deps.Gate.Get(toolRunID)
}

// Abort administratively terminates the conversation's workflow.
func (m *Manager) Abort(ctx context.Context, conversationID string) error {
	exec := m.executor(conversationID)
	if exec == nil {
		return types.NewErrorf(types.ErrWorkflowTerminal,
			"no workflow for conversation %s", conversationID)
	}
	return exec.Abort(ctx)
}

// ListLogs returns the conversation's log entries, oldest first.
func (m *Manager) ListLogs(ctx context.Context, conversationID string) ([]*eventlog.Entry, error) {
	return m.deps.LogStore.ListForConversation(ctx, conversationID)
}

// DeleteLog removes one entry by id. Audit trim only: workflow state is
// untouched.
func (m *Manager) DeleteLog(ctx context.Context, entryID string) error {
	return m.deps.LogStore.Delete(ctx, entryID)
}

// Workflow returns a snapshot of the conversation's current run.
func (m *Manager) Workflow(conversationID string) (*Workflow, error) {
	exec := m.executor(conversationID)
	if exec == nil {
		return nil, types.NewErrorf(types.ErrWorkflowTerminal,
			"no workflow for conversation %s", conversationID)
	}
	return exec.Snapshot(), nil
}

func (m *Manager) executor(conversationID string) *Executor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.execs[conversationID]
}
