package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/chalatsithapelo-ops/square15management-sub006/internal/httpkit"
)

// AnthropicClient talks to the Anthropic Messages API.
type AnthropicClient struct {
	client anthropic.Client
	logger *slog.Logger
}

// NewAnthropicClient creates a client. Extra options (base URL, HTTP
// client) are appended after the defaults.
func NewAnthropicClient(apiKey string, logger *slog.Logger, opts ...option.RequestOption) *AnthropicClient {
	if logger == nil {
		logger = slog.Default()
	}
	// Replies can take a long time before headers arrive; the caller's
	// context bounds the request.
	t := httpkit.NewTransport()
	t.ResponseHeaderTimeout = 120 * time.Second

	base := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpkit.NewClient(httpkit.WithTimeout(0), httpkit.WithTransport(t))),
		option.WithMaxRetries(2),
	}
	return &AnthropicClient{
		client: anthropic.NewClient(append(base, opts...)...),
		logger: logger.With("provider", "anthropic"),
	}
}

// Chat sends a non-streaming Messages request.
func (c *AnthropicClient) Chat(ctx context.Context, model string, messages []Message, tools []map[string]any, opts Options) (*ChatResponse, error) {
	system, rest := splitSystem(messages)
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   int64(maxTokens(opts)),
		Messages:    convertToAnthropic(rest),
		Tools:       convertToolsToAnthropic(tools),
		Temperature: anthropic.Float(opts.Temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	c.logger.Debug("preparing request",
		"model", model,
		"messages", len(params.Messages),
		"tools", len(params.Tools),
		"system_len", len(system),
	)

	start := time.Now()
	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return nil, &httpkit.StatusError{Provider: "anthropic", StatusCode: apiErr.StatusCode, Body: apiErr.Error()}
		}
		return nil, fmt.Errorf("anthropic request: %w", err)
	}

	out := convertFromAnthropic(msg)
	out.TotalDuration = time.Since(start)
	c.logger.Debug("response received",
		"model", out.Model,
		"input_tokens", out.InputTokens,
		"output_tokens", out.OutputTokens,
		"tool_calls", len(out.Message.ToolCalls),
		"stop_reason", msg.StopReason,
	)
	c.logger.Log(ctx, LevelTrace, "response content", "content", out.Message.Content)
	return out, nil
}

// Ping lists models, which checks the API key without spending tokens.
func (c *AnthropicClient) Ping(ctx context.Context) error {
	_, err := c.client.Models.List(ctx, anthropic.ModelListParams{})
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
		return errors.New("anthropic: invalid API key")
	}
	return err
}

// convertToAnthropic maps the conversation onto Anthropic's strict
// user/assistant alternation: consecutive messages with the same role
// are merged, and a leading assistant message is dropped.
func convertToAnthropic(messages []Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	var lastRole string

	for _, m := range messages {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			continue
		}
		if len(out) == 0 && m.Role == RoleAssistant {
			continue
		}

		var blocks []anthropic.ContentBlockParamUnion
		if m.Content != "" {
			blocks = append(blocks, anthropic.NewTextBlock(m.Content))
		}
		for i, tc := range m.ToolCalls {
			args := tc.Function.Arguments
			if args == nil {
				args = map[string]any{}
			}
			id := tc.ID
			if id == "" {
				id = fmt.Sprintf("toolu_%s_%d", tc.Function.Name, i)
			}
			blocks = append(blocks, anthropic.NewToolUseBlock(id, args, tc.Function.Name))
		}
		if len(blocks) == 0 {
			continue
		}

		if m.Role == lastRole {
			out[len(out)-1].Content = append(out[len(out)-1].Content, blocks...)
			continue
		}
		if m.Role == RoleUser {
			out = append(out, anthropic.NewUserMessage(blocks...))
		} else {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		}
		lastRole = m.Role
	}
	return out
}

// convertToolsToAnthropic converts OpenAI-style definitions.
func convertToolsToAnthropic(tools []map[string]any) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		fn, ok := t["function"].(map[string]any)
		if !ok {
			continue
		}
		name, _ := fn["name"].(string)
		desc, _ := fn["description"].(string)
		params, _ := fn["parameters"].(map[string]any)

		schema := anthropic.ToolInputSchemaParam{Properties: map[string]any{}}
		if props, ok := params["properties"]; ok {
			schema.Properties = props
		}
		switch req := params["required"].(type) {
		case []string:
			schema.Required = req
		case []any:
			for _, r := range req {
				if s, ok := r.(string); ok {
					schema.Required = append(schema.Required, s)
				}
			}
		}

		tool := anthropic.ToolParam{
			Name:        name,
			Description: anthropic.String(desc),
			InputSchema: schema,
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &tool})
	}
	return out
}

// convertFromAnthropic converts a Messages reply.
func convertFromAnthropic(msg *anthropic.Message) *ChatResponse {
	var content string
	var calls []ToolCall
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			content += block.Text
		case "tool_use":
			args := map[string]any{}
			if len(block.Input) > 0 {
				if err := json.Unmarshal(block.Input, &args); err != nil {
					args = map[string]any{}
				}
			}
			calls = append(calls, ToolCall{ID: block.ID, Function: FunctionCall{Name: block.Name, Arguments: args}})
		}
	}
	return &ChatResponse{
		Model: string(msg.Model),
		Message: Message{
			Role:      RoleAssistant,
			Content:   content,
			ToolCalls: calls,
		},
		Done:         true,
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}
}
