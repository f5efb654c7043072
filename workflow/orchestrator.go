package workflow

import (
	"context"

	"github.com/flowline-ai/flowline/agent/registry"
	"github.com/flowline-ai/flowline/types"
)

// Orchestrator routes through the workflow's pre-declared agent order and
// completes once the order is exhausted. It is deterministic and makes no
// external calls; a malformed agent list is rejected at workflow creation,
// not at runtime.
type Orchestrator struct {
	registry *registry.Registry
}

// NewOrchestrator creates the fixed-order strategy.
func NewOrchestrator(reg *registry.Registry) *Orchestrator {
	return &Orchestrator{registry: reg}
}

// Kind implements Strategy.
func (o *Orchestrator) Kind() StrategyKind { return KindOrchestrator }

// ValidateOrder rejects empty orders and unknown agent ids. Called at
// workflow creation so configuration mistakes surface before any step
// runs.
func (o *Orchestrator) ValidateOrder(order []string) error {
	if len(order) == 0 {
		return types.NewError(types.ErrMalformedStrategy, "agent order is empty")
	}
	for _, id := range order {
		if !o.registry.Contains(id) {
			return types.NewErrorf(types.ErrMalformedStrategy, "agent order references unknown agent %q", id)
		}
	}
	return nil
}

// DecideNext implements Strategy by advancing the step pointer through
// the workflow's agent order.
func (o *Orchestrator) DecideNext(_ context.Context, wf *Workflow, history []*Step, _ string) Decision {
	return o.decideOver(wf.AgentOrder, len(history))
}

// decideOver is shared with the Hybrid planning phase, which routes over
// its own list.
func (o *Orchestrator) decideOver(order []string, position int) Decision {
	if position >= len(order) {
		return Complete()
	}
	agentID := order[position]
	if !o.registry.Contains(agentID) {
		return Fail(types.NewErrorf(types.ErrAgentNotFound, "agent %q not registered", agentID))
	}
	return ContinueWith(agentID)
}
