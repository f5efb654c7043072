package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/flowline-ai/flowline/llm"
	"github.com/flowline-ai/flowline/types"
)

func fixedCompleter(response string) llm.Completer {
	return llm.CompleterFunc(func(_ context.Context, _ string) (string, error) {
		return response, nil
	})
}

func failingCompleter(err error) llm.Completer {
	return llm.CompleterFunc(func(_ context.Context, _ string) (string, error) {
		return "", err
	})
}

func newRouter(t *testing.T, completer llm.Completer, cfg StrategyConfig) *FewShotRouter {
	t.Helper()
	if cfg.DefaultAgentID == "" {
		cfg.DefaultAgentID = "planner"
	}
	return NewFewShotRouter(completer, testRegistry(), cfg, zap.NewNop())
}

func decide(r *FewShotRouter) Decision {
	wf := &Workflow{ConversationID: "conv-1", Phase: PhaseExecuting}
	return r.DecideNext(context.Background(), wf, nil, "")
}

func TestFewShotRouter_DirectJSON(t *testing.T) {
	r := newRouter(t, fixedCompleter(`{"agent": "coder", "confidence": 0.9}`), StrategyConfig{})

	d := decide(r)
	require.Equal(t, DecisionContinue, d.Kind)
	assert.Equal(t, "coder", d.AgentID)
}

func TestFewShotRouter_JSONWrappedInProse(t *testing.T) {
	r := newRouter(t, fixedCompleter(`Sure! {"agent": "coder", "confidence": 0.9}`), StrategyConfig{})

	d := decide(r)
	require.Equal(t, DecisionContinue, d.Kind)
	assert.Equal(t, "coder", d.AgentID)
}

func TestFewShotRouter_KeywordFallback(t *testing.T) {
	// No JSON at all: "plan" keyword-matches the planner agent.
	r := newRouter(t, fixedCompleter("I think the plan should go to the planning specialist"), StrategyConfig{DefaultAgentID: "reviewer"})

	d := decide(r)
	require.Equal(t, DecisionContinue, d.Kind)
	assert.Equal(t, "planner", d.AgentID)
}

func TestFewShotRouter_GarbageFallsBackToDefault(t *testing.T) {
	for _, response := range []string{"", "   ", "zxqwv gibberish 42"} {
		r := newRouter(t, fixedCompleter(response), StrategyConfig{DefaultAgentID: "reviewer"})

		d := decide(r)
		require.Equal(t, DecisionContinue, d.Kind, "response %q", response)
		assert.Equal(t, "reviewer", d.AgentID)
	}
}

func TestFewShotRouter_ConfidenceThreshold(t *testing.T) {
	cfg := StrategyConfig{DefaultAgentID: "reviewer", ConfidenceThreshold: 0.5}

	// Below the threshold: default agent.
	r := newRouter(t, fixedCompleter(`{"agent": "coder", "confidence": 0.3}`), cfg)
	d := decide(r)
	require.Equal(t, DecisionContinue, d.Kind)
	assert.Equal(t, "reviewer", d.AgentID)

	// The threshold is an inclusive lower bound: equal confidence passes.
	r = newRouter(t, fixedCompleter(`{"agent": "coder", "confidence": 0.5}`), cfg)
	d = decide(r)
	require.Equal(t, DecisionContinue, d.Kind)
	assert.Equal(t, "coder", d.AgentID)

	// Absent confidence is accepted.
	r = newRouter(t, fixedCompleter(`{"agent": "coder"}`), cfg)
	d = decide(r)
	require.Equal(t, DecisionContinue, d.Kind)
	assert.Equal(t, "coder", d.AgentID)
}

func TestFewShotRouter_Sentinel(t *testing.T) {
	r := newRouter(t, fixedCompleter(`{"agent": "done", "confidence": 1}`), StrategyConfig{})

	d := decide(r)
	assert.Equal(t, DecisionComplete, d.Kind)
}

func TestFewShotRouter_TransportErrorFallsBack(t *testing.T) {
	r := newRouter(t, failingCompleter(errors.New("connection refused")), StrategyConfig{DefaultAgentID: "planner"})

	d := decide(r)
	require.Equal(t, DecisionContinue, d.Kind)
	assert.Equal(t, "planner", d.AgentID)
}

func TestFewShotRouter_UnknownAgentFallsBackToDefault(t *testing.T) {
	r := newRouter(t, fixedCompleter(`{"agent": "ghost", "confidence": 0.99}`), StrategyConfig{DefaultAgentID: "planner"})

	d := decide(r)
	require.Equal(t, DecisionContinue, d.Kind)
	assert.Equal(t, "planner", d.AgentID)
}

func TestFewShotRouter_UnresolvableDefaultFails(t *testing.T) {
	r := NewFewShotRouter(fixedCompleter("garbage"), testRegistry(),
		StrategyConfig{DefaultAgentID: "ghost"}, zap.NewNop())

	d := decide(r)
	require.Equal(t, DecisionFail, d.Kind)
	assert.Equal(t, types.ErrAgentNotFound, d.Err.Code)
}

func TestFewShotRouter_PromptContainsExamplesAndCatalog(t *testing.T) {
	var captured string
	completer := llm.CompleterFunc(func(_ context.Context, prompt string) (string, error) {
		captured = prompt
		return `{"agent": "coder"}`, nil
	})
	r := newRouter(t, completer, StrategyConfig{
		Examples: []Example{{Input: "fix the build", AgentID: "coder"}},
	})

	wf := &Workflow{
		ConversationID: "conv-1",
		Messages:       []llm.Message{{Role: llm.RoleUser, Content: "hello there"}},
	}
	d := r.DecideNext(context.Background(), wf, nil, "")
	require.Equal(t, DecisionContinue, d.Kind)

	assert.Contains(t, captured, "fix the build")
	assert.Contains(t, captured, "coder")
	assert.Contains(t, captured, "hello there")
	assert.Contains(t, captured, `"done"`)
}
