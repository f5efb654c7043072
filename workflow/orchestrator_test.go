package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowline-ai/flowline/agent/registry"
	"github.com/flowline-ai/flowline/types"
)

func testRegistry() *registry.Registry {
	return registry.New([]registry.Agent{
		{ID: "planner", Name: "Planner", Role: "planning", Keywords: []string{"plan", "design"}},
		{ID: "coder", Name: "Coder", Role: "execution", Keywords: []string{"code", "implement"}},
		{ID: "reviewer", Name: "Reviewer", Role: "review", Keywords: []string{"review", "check"}},
	})
}

func stepsFor(agents ...string) []*Step {
	steps := make([]*Step, len(agents))
	for i, id := range agents {
		steps[i] = &Step{Index: i, AgentID: id, Outcome: OutcomeHandoff}
	}
	return steps
}

func TestOrchestrator_AdvancesThroughOrder(t *testing.T) {
	orch := NewOrchestrator(testRegistry())
	wf := &Workflow{ConversationID: "conv-1", AgentOrder: []string{"planner", "coder", "reviewer"}}

	ctx := context.Background()
	var history []*Step

	for _, want := range wf.AgentOrder {
		d := orch.DecideNext(ctx, wf, history, "")
		require.Equal(t, DecisionContinue, d.Kind)
		assert.Equal(t, want, d.AgentID)
		history = append(history, &Step{Index: len(history), AgentID: want})
	}

	d := orch.DecideNext(ctx, wf, history, "")
	assert.Equal(t, DecisionComplete, d.Kind)
}

func TestOrchestrator_ValidateOrder(t *testing.T) {
	orch := NewOrchestrator(testRegistry())

	assert.NoError(t, orch.ValidateOrder([]string{"planner", "coder"}))

	err := orch.ValidateOrder(nil)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrMalformedStrategy))

	err = orch.ValidateOrder([]string{"planner", "ghost"})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrMalformedStrategy))
}

func TestOrchestrator_UnknownAgentFailsAtRuntime(t *testing.T) {
	orch := NewOrchestrator(testRegistry())
	wf := &Workflow{ConversationID: "conv-1", AgentOrder: []string{"ghost"}}

	d := orch.DecideNext(context.Background(), wf, nil, "")
	require.Equal(t, DecisionFail, d.Kind)
	assert.Equal(t, types.ErrAgentNotFound, d.Err.Code)
}
