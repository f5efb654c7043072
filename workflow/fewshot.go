package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/flowline-ai/flowline/agent/registry"
	"github.com/flowline-ai/flowline/llm"
	"github.com/flowline-ai/flowline/types"
)

// jsonObjectPattern extracts the first JSON-object-looking substring from
// a response wrapped in prose.
var jsonObjectPattern = regexp.MustCompile(`\{[^{}]*\}`)

// routeChoice is the shape the router asks the model to emit.
type routeChoice struct {
	Agent      string   `json:"agent"`
	Confidence *float64 `json:"confidence"`
}

// FewShotRouter asks a language-model collaborator to pick the next agent
// from a handful of labeled examples. Real models wrap the requested JSON
// in prose, so parsing degrades gracefully: direct JSON, then a regex
// scan for an embedded object, then keyword matching against the
// registry, and finally the configured default agent. Routing never fails
// the workflow on model misbehavior; only an unresolvable default does.
type FewShotRouter struct {
	completer llm.Completer
	registry  *registry.Registry
	config    StrategyConfig
	logger    *zap.Logger
}

// NewFewShotRouter creates the LLM-decided strategy.
func NewFewShotRouter(completer llm.Completer, reg *registry.Registry, config StrategyConfig, logger *zap.Logger) *FewShotRouter {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.Defaults()
	return &FewShotRouter{
		completer: completer,
		registry:  reg,
		config:    config,
		logger:    logger.With(zap.String("component", "fewshot_router")),
	}
}

// Kind implements Strategy.
func (r *FewShotRouter) Kind() StrategyKind { return KindFewShot }

// DecideNext implements Strategy.
func (r *FewShotRouter) DecideNext(ctx context.Context, wf *Workflow, history []*Step, latestOutput string) Decision {
	prompt := r.buildPrompt(wf, history, latestOutput)

	callCtx, cancel := context.WithTimeout(ctx, r.config.RouteTimeout)
	defer cancel()

	response, err := r.completer.Complete(callCtx, prompt)
	if err != nil {
		// Timeout and transport errors fall back to the default agent
		// rather than dropping the turn.
		r.logger.Warn("router call failed, using default agent",
			zap.String("conversation_id", wf.ConversationID),
			zap.Error(err),
		)
		return r.fallback("router call failed")
	}

	agentID, confidence := r.parseResponse(response)

	if agentID == "" {
		return r.fallback("no agent resolvable from response")
	}
	if confidence != nil && *confidence < r.config.ConfidenceThreshold {
		// Threshold is an inclusive lower bound: a confidence equal to
		// it is accepted.
		r.logger.Debug("confidence below threshold, using default agent",
			zap.String("agent_id", agentID),
			zap.Float64("confidence", *confidence),
			zap.Float64("threshold", r.config.ConfidenceThreshold),
		)
		return r.fallback("confidence below threshold")
	}

	if agentID == r.config.SentinelAgentID {
		return Complete()
	}
	if !r.registry.Contains(agentID) {
		// The model named an agent that does not exist. Per the fallback
		// policy this routes to the default agent, never a silent
		// substitution of some other match.
		return r.fallback(fmt.Sprintf("agent %q not registered", agentID))
	}
	return ContinueWith(agentID)
}

// parseResponse applies the three-stage parsing policy and returns the
// chosen agent id (possibly empty) and confidence when present.
func (r *FewShotRouter) parseResponse(response string) (string, *float64) {
	trimmed := strings.TrimSpace(response)
	if trimmed == "" {
		return "", nil
	}

	// (1) Direct JSON parse of the full response.
	var choice routeChoice
	if err := json.Unmarshal([]byte(trimmed), &choice); err == nil && choice.Agent != "" {
		return choice.Agent, choice.Confidence
	}

	// (2) Regex-extract the first JSON object substring.
	if match := jsonObjectPattern.FindString(trimmed); match != "" {
		choice = routeChoice{}
		if err := json.Unmarshal([]byte(match), &choice); err == nil && choice.Agent != "" {
			return choice.Agent, choice.Confidence
		}
	}

	// (3) Keyword-match the whole response against agent capabilities.
	if matches := r.registry.MatchByKeyword(trimmed); len(matches) > 0 {
		return matches[0].ID, nil
	}
	return "", nil
}

// fallback routes to the configured default agent; completing when the
// default is the sentinel, failing only when no default can serve.
func (r *FewShotRouter) fallback(reason string) Decision {
	def := r.config.DefaultAgentID
	if def == r.config.SentinelAgentID && def != "" {
		return Complete()
	}
	if def == "" || !r.registry.Contains(def) {
		return Fail(types.NewErrorf(types.ErrAgentNotFound,
			"default agent %q unresolvable (%s)", def, reason))
	}
	return ContinueWith(def)
}

// buildPrompt renders the routing request: agent catalog, labeled
// examples, and recent conversation context.
func (r *FewShotRouter) buildPrompt(wf *Workflow, history []*Step, latestOutput string) string {
	var b strings.Builder
	b.WriteString("Choose the next agent for this conversation.\n")
	b.WriteString("Respond with JSON: {\"agent\": \"<id>\", \"confidence\": <0..1>}.\n")
	fmt.Fprintf(&b, "Respond with agent %q when the task is finished.\n\n", r.config.SentinelAgentID)

	b.WriteString("Agents:\n")
	for _, a := range r.registry.All() {
		fmt.Fprintf(&b, "- %s (%s): %s\n", a.ID, a.Role, strings.Join(a.Keywords, ", "))
	}

	if len(r.config.Examples) > 0 {
		b.WriteString("\nExamples:\n")
		for _, ex := range r.config.Examples {
			fmt.Fprintf(&b, "Input: %s\nAgent: {\"agent\": %q}\n", ex.Input, ex.AgentID)
		}
	}

	b.WriteString("\nConversation so far:\n")
	for _, m := range wf.Messages {
		who := string(m.Role)
		if m.AgentID != "" {
			who = m.AgentID
		}
		fmt.Fprintf(&b, "%s: %s\n", who, m.Content)
	}
	if latestOutput != "" && len(history) > 0 {
		fmt.Fprintf(&b, "\nLatest agent output (%s): %s\n", history[len(history)-1].AgentID, latestOutput)
	}
	return b.String()
}
