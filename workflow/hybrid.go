package workflow

import (
	"context"

	"go.uber.org/zap"
)

// Hybrid composes Orchestrator and FewShotRouter: a fixed planning pass
// over the configured planning list, then a one-way flip into the
// executing phase where the few-shot router takes over for the rest of
// the workflow.
type Hybrid struct {
	planner *Orchestrator
	router  *FewShotRouter
	config  StrategyConfig
	logger  *zap.Logger
}

// NewHybrid creates the phased strategy.
func NewHybrid(planner *Orchestrator, router *FewShotRouter, config StrategyConfig, logger *zap.Logger) *Hybrid {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.Defaults()
	return &Hybrid{
		planner: planner,
		router:  router,
		config:  config,
		logger:  logger.With(zap.String("component", "hybrid_strategy")),
	}
}

// Kind implements Strategy.
func (h *Hybrid) Kind() StrategyKind { return KindHybrid }

// DecideNext implements Strategy. The phase flip mutates the workflow;
// the executor observes it and records a phase-change log event.
func (h *Hybrid) DecideNext(ctx context.Context, wf *Workflow, history []*Step, latestOutput string) Decision {
	if wf.Phase == PhasePlanning {
		if len(history) < len(h.config.PlanningOrder) {
			return h.planner.decideOver(h.config.PlanningOrder, len(history))
		}
		// Planning list exhausted: flip once, never back.
		wf.Phase = PhaseExecuting
		h.logger.Info("planning phase complete",
			zap.String("conversation_id", wf.ConversationID),
			zap.Int("planning_steps", len(h.config.PlanningOrder)),
		)
	}
	return h.router.DecideNext(ctx, wf, history, latestOutput)
}
