// Package registry provides the agent catalog consulted by routing
// strategies. Agents are loaded once at startup and are read-only at
// workflow-execution time, so lookups need no locking.
package registry

import (
	"sort"
	"strings"

	"github.com/flowline-ai/flowline/types"
)

// Agent describes one routable agent identity.
type Agent struct {
	ID       string   `json:"id" yaml:"id"`
	Name     string   `json:"name" yaml:"name"`
	Role     string   `json:"role" yaml:"role"`
	Keywords []string `json:"keywords" yaml:"keywords"`
}

// Registry is a static catalog of agents keyed by id. Insertion order is
// preserved because keyword matches break ties by registration order.
type Registry struct {
	agents  map[string]*Agent
	ordered []*Agent
}

// New creates a registry from the given agents. Later duplicates of the
// same id are ignored.
func New(agents []Agent) *Registry {
	r := &Registry{agents: make(map[string]*Agent, len(agents))}
	for i := range agents {
		a := agents[i]
		if a.ID == "" {
			continue
		}
		if _, exists := r.agents[a.ID]; exists {
			continue
		}
		r.agents[a.ID] = &a
		r.ordered = append(r.ordered, &a)
	}
	return r
}

// Resolve returns the agent with the given id.
func (r *Registry) Resolve(agentID string) (*Agent, error) {
	a, ok := r.agents[agentID]
	if !ok {
		return nil, types.NewErrorf(types.ErrAgentNotFound, "agent %q not registered", agentID)
	}
	return a, nil
}

// Contains reports whether the id is registered.
func (r *Registry) Contains(agentID string) bool {
	_, ok := r.agents[agentID]
	return ok
}

// All returns the agents in registration order.
func (r *Registry) All() []*Agent {
	out := make([]*Agent, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// MatchByKeyword scores every agent by how many of its capability keywords
// occur in text (case-insensitive) and returns agents with a positive
// score, best first. Ties keep registration order.
func (r *Registry) MatchByKeyword(text string) []*Agent {
	lowered := strings.ToLower(text)

	type scored struct {
		agent *Agent
		score int
		order int
	}
	var matches []scored
	for i, a := range r.ordered {
		score := 0
		for _, kw := range a.Keywords {
			if kw == "" {
				continue
			}
			if strings.Contains(lowered, strings.ToLower(kw)) {
				score++
			}
		}
		if score > 0 {
			matches = append(matches, scored{agent: a, score: score, order: i})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].order < matches[j].order
	})

	out := make([]*Agent, len(matches))
	for i, m := range matches {
		out[i] = m.agent
	}
	return out
}
