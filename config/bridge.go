package config

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/flowline-ai/flowline/agent/registry"
	"github.com/flowline-ai/flowline/llm"
	"github.com/flowline-ai/flowline/workflow"
)

// StrategyConfig maps the workflow section onto the engine's routing
// configuration.
func (w WorkflowConfig) StrategyConfig() workflow.StrategyConfig {
	examples := make([]workflow.Example, len(w.Examples))
	for i, ex := range w.Examples {
		examples[i] = workflow.Example{Input: ex.UserMessage, AgentID: ex.Agent}
	}
	cfg := workflow.StrategyConfig{
		Kind:                workflow.StrategyKind(w.Strategy),
		AgentOrder:          w.AgentOrder,
		PlanningOrder:       w.PlanningOrder,
		DefaultAgentID:      w.DefaultAgent,
		SentinelAgentID:     w.SentinelAgent,
		ConfidenceThreshold: w.ConfidenceThreshold,
		Examples:            examples,
		RouteTimeout:        w.RouteTimeout,
		MaxSteps:            w.MaxSteps,
		ApprovalTimeout:     w.ApprovalTimeout,
	}
	cfg.Defaults()
	return cfg
}

// AgentList converts the declared agents into registry entries.
func (c *Config) AgentList() []registry.Agent {
	agents := make([]registry.Agent, len(c.Agents))
	for i, a := range c.Agents {
		agents[i] = registry.Agent{ID: a.ID, Name: a.Name, Role: a.Role, Keywords: a.Keywords}
	}
	return agents
}

// ClientConfig maps the generation section onto the HTTP collaborator
// client settings.
func (g GenerationConfig) ClientConfig() llm.ClientConfig {
	return llm.ClientConfig{
		BaseURL:        g.BaseURL,
		APIKey:         g.APIKey,
		RequestTimeout: g.Timeout,
	}
}

// ResilientConfig maps the generation section onto the model call policy.
func (g GenerationConfig) ResilientConfig() llm.ResilientConfig {
	return llm.ResilientConfig{
		Timeout:           g.Timeout,
		MaxAttempts:       g.MaxAttempts,
		Backoff:           g.Backoff,
		RequestsPerSecond: g.RequestsPerSecond,
		Burst:             g.Burst,
	}
}

// BuildLogger constructs the zap logger described by the log section.
func (l LogConfig) BuildLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", l.Level, err)
	}

	zcfg := zap.NewProductionConfig()
	if l.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	if len(l.OutputPaths) > 0 {
		zcfg.OutputPaths = l.OutputPaths
	}
	zcfg.DisableCaller = !l.EnableCaller
	zcfg.DisableStacktrace = !l.EnableStacktrace
	return zcfg.Build()
}
