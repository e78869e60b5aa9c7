package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/chalatsithapelo-ops/square15management-sub006/internal/httpkit"
)

// OpenAIClient talks to an OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	client openai.Client
	logger *slog.Logger
}

// NewOpenAIClient creates a client. An empty baseURL means api.openai.com.
func NewOpenAIClient(apiKey, baseURL string, logger *slog.Logger, opts ...option.RequestOption) *OpenAIClient {
	if logger == nil {
		logger = slog.Default()
	}
	t := httpkit.NewTransport()
	t.ResponseHeaderTimeout = 120 * time.Second

	base := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpkit.NewClient(httpkit.WithTimeout(0), httpkit.WithTransport(t))),
		option.WithMaxRetries(2),
	}
	if baseURL != "" {
		base = append(base, option.WithBaseURL(baseURL))
	}
	return &OpenAIClient{
		client: openai.NewClient(append(base, opts...)...),
		logger: logger.With("provider", "openai"),
	}
}

// Chat sends a non-streaming chat completion.
func (c *OpenAIClient) Chat(ctx context.Context, model string, messages []Message, tools []map[string]any, opts Options) (*ChatResponse, error) {
	params := openai.ChatCompletionNewParams{
		Model:               shared.ChatModel(model),
		Messages:            convertToOpenAI(messages),
		Tools:               convertToolsToOpenAI(tools),
		Temperature:         openai.Float(opts.Temperature),
		MaxCompletionTokens: openai.Int(int64(maxTokens(opts))),
	}
	c.logger.Debug("preparing request", "model", model, "messages", len(params.Messages), "tools", len(params.Tools))

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, &httpkit.StatusError{Provider: "openai", StatusCode: apiErr.StatusCode, Body: apiErr.Error()}
		}
		return nil, fmt.Errorf("openai request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai: response has no choices")
	}

	out := convertFromOpenAI(resp)
	out.TotalDuration = time.Since(start)
	c.logger.Debug("response received",
		"model", out.Model,
		"input_tokens", out.InputTokens,
		"output_tokens", out.OutputTokens,
		"tool_calls", len(out.Message.ToolCalls),
		"finish_reason", resp.Choices[0].FinishReason,
	)
	c.logger.Log(ctx, LevelTrace, "response content", "content", out.Message.Content)
	return out, nil
}

// Ping lists models, which any valid key may do.
func (c *OpenAIClient) Ping(ctx context.Context) error {
	_, err := c.client.Models.List(ctx)
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
		return errors.New("openai: invalid API key")
	}
	return err
}

// convertToOpenAI maps the conversation. Assistant tool calls are
// replayed as text because no tool role messages follow them here.
func convertToOpenAI(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		content := m.Content
		if m.Role == RoleAssistant && len(m.ToolCalls) > 0 {
			for _, tc := range m.ToolCalls {
				args, _ := json.Marshal(tc.Function.Arguments)
				if content != "" {
					content += "\n"
				}
				content += fmt.Sprintf("[called %s %s]", tc.Function.Name, args)
			}
		}
		if content == "" {
			continue
		}
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(content))
		default:
			out = append(out, openai.UserMessage(content))
		}
	}
	return out
}

func convertToolsToOpenAI(tools []map[string]any) []openai.ChatCompletionToolParam {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.ChatCompletionToolParam, 0, len(tools))
	for _, t := range tools {
		fn, ok := t["function"].(map[string]any)
		if !ok {
			continue
		}
		name, _ := fn["name"].(string)
		desc, _ := fn["description"].(string)
		params, _ := fn["parameters"].(map[string]any)
		def := shared.FunctionDefinitionParam{
			Name:       name,
			Parameters: shared.FunctionParameters(params),
		}
		if desc != "" {
			def.Description = openai.String(desc)
		}
		out = append(out, openai.ChatCompletionToolParam{Function: def})
	}
	return out
}

func convertFromOpenAI(resp *openai.ChatCompletion) *ChatResponse {
	msg := resp.Choices[0].Message
	var calls []ToolCall
	for _, tc := range msg.ToolCalls {
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				args = map[string]any{}
			}
		}
		calls = append(calls, ToolCall{ID: tc.ID, Function: FunctionCall{Name: tc.Function.Name, Arguments: args}})
	}
	return &ChatResponse{
		Model:     resp.Model,
		CreatedAt: time.Unix(resp.Created, 0).UTC(),
		Message: Message{
			Role:      RoleAssistant,
			Content:   msg.Content,
			ToolCalls: calls,
		},
		Done:         true,
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}
}
