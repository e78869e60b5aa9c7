// Package llm talks to the model providers behind the agent: Ollama,
// Anthropic and any OpenAI-compatible endpoint.
package llm

import (
	"log/slog"
	"time"
)

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat message.
type Message struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// FunctionCall names an operation and its decoded arguments.
type FunctionCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolCall is one operation requested by the model.
type ToolCall struct {
	ID       string       `json:"id,omitempty"` // provider-assigned, may be empty
	Function FunctionCall `json:"function"`
}

// Options are sampling parameters applied to a single call.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// ChatResponse is the provider-neutral model reply. Wire format
// conversion happens at the provider boundary.
type ChatResponse struct {
	Model     string
	CreatedAt time.Time
	Message   Message
	Done      bool

	InputTokens  int
	OutputTokens int

	TotalDuration time.Duration
	LoadDuration  time.Duration
	EvalDuration  time.Duration
}

// HasToolCalls reports whether the model asked for operations.
func (r *ChatResponse) HasToolCalls() bool {
	return r != nil && len(r.Message.ToolCalls) > 0
}
