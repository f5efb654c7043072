// Package llm defines the contracts for the external language-model
// collaborators. The engine never inspects prompts or completions; it only
// sequences, gates, and audits them.
package llm

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/flowline-ai/flowline/types"
)

// Role identifies who produced a history message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one entry of the conversation history handed to an agent.
type Message struct {
	Role    Role   `json:"role"`
	AgentID string `json:"agent_id,omitempty"`
	Content string `json:"content"`
}

// ToolCall describes a side-effecting capability an agent wants invoked.
// Execution is gated behind human approval; the engine only carries the
// descriptor.
type ToolCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Request is the input to one agent generation turn.
type Request struct {
	ConversationID string            `json:"conversation_id"`
	AgentID        string            `json:"agent_id"`
	History        []Message         `json:"history"`
	Context        map[string]string `json:"context,omitempty"`
}

// Result is the output of one agent generation turn.
type Result struct {
	Text     string    `json:"text"`
	ToolCall *ToolCall `json:"tool_call,omitempty"`
}

// Generator produces one agent turn. Implementations wrap a concrete
// model provider; failures must be classifiable via IsTimeout/IsTransport.
type Generator interface {
	Generate(ctx context.Context, req *Request) (*Result, error)
}

// Completer answers a single routing prompt with raw model text. The
// few-shot router parses the answer itself, so no structure is imposed
// here.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req *Request) (*Result, error)

func (f GeneratorFunc) Generate(ctx context.Context, req *Request) (*Result, error) {
	return f(ctx, req)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, prompt string) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// ClassifyError maps a collaborator failure onto the generation error
// taxonomy. Deadline expiry becomes a timeout, everything else a transport
// error; both are retryable.
func ClassifyError(err error) *types.Error {
	if err == nil {
		return nil
	}
	var te *types.Error
	if errors.As(err, &te) {
		return te
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewError(types.ErrGenerationTimeout, "generation timed out").
			WithRetryable(true).WithCause(err)
	}
	return types.NewError(types.ErrGenerationTransport, "generation transport failure").
		WithRetryable(true).WithCause(err)
}
