package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowline-ai/flowline/workflow"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flowline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoader_Defaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, "fewshot", cfg.Workflow.Strategy)
	assert.Equal(t, "done", cfg.Workflow.SentinelAgent)
	assert.Equal(t, 32, cfg.Workflow.MaxSteps)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 3, cfg.Generation.MaxAttempts)
}

func TestLoader_YAMLOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
server:
  http_port: 9000
workflow:
  strategy: hybrid
  planning_order: [planner, architect]
  default_agent: coder
  max_steps: 10
  examples:
    - user_message: "write some code"
      agent: coder
agents:
  - id: planner
    name: Planner
    role: planning
    keywords: [plan]
  - id: coder
    name: Coder
    role: execution
    keywords: [code, implement]
`)
	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.HTTPPort)
	assert.Equal(t, "hybrid", cfg.Workflow.Strategy)
	assert.Equal(t, []string{"planner", "architect"}, cfg.Workflow.PlanningOrder)
	assert.Equal(t, 10, cfg.Workflow.MaxSteps)
	require.Len(t, cfg.Workflow.Examples, 1)
	assert.Equal(t, "coder", cfg.Workflow.Examples[0].Agent)
	require.Len(t, cfg.Agents, 2)
	assert.Equal(t, []string{"code", "implement"}, cfg.Agents[1].Keywords)

	// Untouched sections keep their defaults.
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	path := writeConfigFile(t, `
server:
  http_port: 9000
workflow:
  strategy: orchestrator
  agent_order: [planner]
`)
	t.Setenv("FLOWLINE_SERVER_HTTP_PORT", "7070")
	t.Setenv("FLOWLINE_WORKFLOW_AGENT_ORDER", "planner, coder")
	t.Setenv("FLOWLINE_WORKFLOW_ROUTE_TIMEOUT", "5s")
	t.Setenv("FLOWLINE_REDIS_ENABLED", "true")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.HTTPPort)
	assert.Equal(t, []string{"planner", "coder"}, cfg.Workflow.AgentOrder)
	assert.Equal(t, 5*time.Second, cfg.Workflow.RouteTimeout)
	assert.True(t, cfg.Redis.Enabled)
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/does/not/exist.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid defaults", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.HTTPPort = 0 }, "invalid HTTP port"},
		{"bad strategy", func(c *Config) { c.Workflow.Strategy = "chaos" }, "unknown strategy"},
		{"bad threshold", func(c *Config) { c.Workflow.ConfidenceThreshold = 1.5 }, "confidence_threshold"},
		{"zero steps", func(c *Config) { c.Workflow.MaxSteps = 0 }, "max_steps"},
		{"auth without secret", func(c *Config) { c.Auth.Enabled = true }, "auth enabled without a secret"},
		{"duplicate agents", func(c *Config) {
			c.Agents = []AgentDef{{ID: "a"}, {ID: "a"}}
		}, "duplicate agent id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestWorkflowConfig_StrategyConfig(t *testing.T) {
	wcfg := WorkflowConfig{
		Strategy:            "fewshot",
		DefaultAgent:        "coder",
		ConfidenceThreshold: 0.6,
		MaxSteps:            5,
		Examples:            []ExampleDef{{UserMessage: "fix it", Agent: "coder"}},
	}
	cfg := wcfg.StrategyConfig()

	assert.Equal(t, workflow.KindFewShot, cfg.Kind)
	assert.Equal(t, "coder", cfg.DefaultAgentID)
	assert.Equal(t, 0.6, cfg.ConfidenceThreshold)
	assert.Equal(t, 5, cfg.MaxSteps)
	require.Len(t, cfg.Examples, 1)
	assert.Equal(t, "fix it", cfg.Examples[0].Input)
	// Defaults fill what the section left empty.
	assert.Equal(t, "done", cfg.SentinelAgentID)
}
