package workflow

import (
	"context"
	"time"

	"github.com/flowline-ai/flowline/types"
)

// StrategyKind is the closed set of routing strategies.
type StrategyKind string

const (
	KindOrchestrator StrategyKind = "orchestrator"
	KindFewShot      StrategyKind = "fewshot"
	KindHybrid       StrategyKind = "hybrid"
)

// DecisionKind tags a strategy decision.
type DecisionKind string

const (
	DecisionContinue DecisionKind = "continue"
	DecisionComplete DecisionKind = "complete"
	DecisionFail     DecisionKind = "fail"
)

// Decision is a strategy's verdict for the next turn.
type Decision struct {
	Kind    DecisionKind
	AgentID string
	Err     *types.Error
}

// ContinueWith routes the next turn to the given agent.
func ContinueWith(agentID string) Decision {
	return Decision{Kind: DecisionContinue, AgentID: agentID}
}

// Complete signals the workflow is done.
func Complete() Decision {
	return Decision{Kind: DecisionComplete}
}

// Fail terminates the workflow with a routing error.
func Fail(err *types.Error) Decision {
	return Decision{Kind: DecisionFail, Err: err}
}

// Strategy decides which agent acts next. History is a read-only snapshot
// of the steps taken so far; latestOutput is the previous step's text.
type Strategy interface {
	Kind() StrategyKind
	DecideNext(ctx context.Context, wf *Workflow, history []*Step, latestOutput string) Decision
}

// Example is one labeled routing example shown to the few-shot router.
type Example struct {
	Input   string `yaml:"input" json:"input"`
	AgentID string `yaml:"agent_id" json:"agent_id"`
}

// StrategyConfig is the per-domain routing configuration, loaded once at
// workflow creation and never re-read mid-workflow.
type StrategyConfig struct {
	Kind StrategyKind `yaml:"kind" json:"kind"`

	// AgentOrder drives the Orchestrator strategy.
	AgentOrder []string `yaml:"agent_order" json:"agent_order"`
	// PlanningOrder drives the Hybrid strategy's planning phase.
	PlanningOrder []string `yaml:"planning_order" json:"planning_order"`

	// Few-shot router settings.
	DefaultAgentID      string        `yaml:"default_agent_id" json:"default_agent_id"`
	SentinelAgentID     string        `yaml:"sentinel_agent_id" json:"sentinel_agent_id"`
	ConfidenceThreshold float64       `yaml:"confidence_threshold" json:"confidence_threshold"`
	Examples            []Example     `yaml:"examples" json:"examples"`
	RouteTimeout        time.Duration `yaml:"route_timeout" json:"route_timeout"`

	// MaxSteps bounds runaway loops across all strategies.
	MaxSteps int `yaml:"max_steps" json:"max_steps"`
	// ApprovalTimeout expires pending tool runs; zero waits forever.
	ApprovalTimeout time.Duration `yaml:"approval_timeout" json:"approval_timeout"`
	// GenerationAttempts bounds retries of the generation collaborator.
	GenerationAttempts int `yaml:"generation_attempts" json:"generation_attempts"`
}

// Defaults fills unset fields.
func (c *StrategyConfig) Defaults() {
	if c.Kind == "" {
		c.Kind = KindOrchestrator
	}
	if c.SentinelAgentID == "" {
		c.SentinelAgentID = "done"
	}
	if c.MaxSteps <= 0 {
		c.MaxSteps = 32
	}
	if c.RouteTimeout <= 0 {
		c.RouteTimeout = 15 * time.Second
	}
	if c.GenerationAttempts <= 0 {
		c.GenerationAttempts = 3
	}
}
