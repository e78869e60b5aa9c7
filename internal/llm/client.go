package llm

import (
	"context"
	"strings"
)

// DefaultMaxTokens caps a reply when Options.MaxTokens is zero.
const DefaultMaxTokens = 4096

// Client is implemented by every provider.
type Client interface {
	// Chat sends one non-streaming request. tools are OpenAI-style
	// function definitions.
	Chat(ctx context.Context, model string, messages []Message, tools []map[string]any, opts Options) (*ChatResponse, error)

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}

// extractToolNames returns the function names in OpenAI-style tool
// definitions. Malformed entries are skipped.
func extractToolNames(tools []map[string]any) []string {
	if len(tools) == 0 {
		return nil
	}
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		fn, ok := t["function"].(map[string]any)
		if !ok {
			continue
		}
		if name, ok := fn["name"].(string); ok && name != "" {
			names = append(names, name)
		}
	}
	return names
}

// splitSystem separates system messages from the conversation.
func splitSystem(messages []Message) (system string, rest []Message) {
	var parts []string
	for _, m := range messages {
		if m.Role == RoleSystem {
			parts = append(parts, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(parts, "\n\n"), rest
}

func maxTokens(opts Options) int {
	if opts.MaxTokens > 0 {
		return opts.MaxTokens
	}
	return DefaultMaxTokens
}
