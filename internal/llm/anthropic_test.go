package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	openaiopt "github.com/openai/openai-go/option"

	"github.com/chalatsithapelo-ops/square15management-sub006/internal/httpkit"
)

var (
	_ Client = (*AnthropicClient)(nil)
	_ Client = (*OllamaClient)(nil)
	_ Client = (*OpenAIClient)(nil)
	_ Client = (*MultiClient)(nil)
)

func TestConvertToAnthropic(t *testing.T) {
	messages := []Message{
		{Role: RoleAssistant, Content: "Hello, how can I help?"},
		{Role: RoleUser, Content: "Create a lead for Sipho."},
		{Role: RoleUser, Content: "His number is 082 555 0101."},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{
			ID:       "toolu_abc123",
			Function: FunctionCall{Name: "create_lead", Arguments: map[string]any{"customer_name": "Sipho"}},
		}}},
		{Role: RoleAssistant, Content: ""},
		{Role: RoleUser, Content: "[TOOL EXECUTION RESULTS]\nok"},
	}

	result := convertToAnthropic(messages)

	if len(result) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(result))
	}
	if result[0].Role != anthropic.MessageParamRoleUser {
		t.Errorf("leading assistant message should be dropped, first role = %s", result[0].Role)
	}
	if len(result[0].Content) != 2 {
		t.Errorf("consecutive user messages should merge, got %d blocks", len(result[0].Content))
	}
	use := result[1].Content[0].OfToolUse
	if use == nil {
		t.Fatal("expected tool_use block in assistant message")
	}
	if use.ID != "toolu_abc123" || use.Name != "create_lead" {
		t.Errorf("tool_use = %s/%s", use.ID, use.Name)
	}
	if result[2].Role != anthropic.MessageParamRoleUser {
		t.Errorf("last role = %s, want user", result[2].Role)
	}
}

func TestConvertToolsToAnthropic(t *testing.T) {
	tools := []map[string]any{
		{
			"type": "function",
			"function": map[string]any{
				"name":        "update_invoice_status",
				"description": "Change an invoice's status",
				"parameters": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"number": map[string]any{"type": "string"},
						"status": map[string]any{"type": "string"},
					},
					"required": []any{"number", "status"},
				},
			},
		},
		{"type": "function"},
	}

	result := convertToolsToAnthropic(tools)
	if len(result) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(result))
	}
	tool := result[0].OfTool
	if tool == nil || tool.Name != "update_invoice_status" {
		t.Fatalf("tool = %+v", tool)
	}
	if tool.Description.Value != "Change an invoice's status" {
		t.Errorf("description = %q", tool.Description.Value)
	}
	if strings.Join(tool.InputSchema.Required, ",") != "number,status" {
		t.Errorf("required = %v", tool.InputSchema.Required)
	}
}

func TestAnthropicClient_Chat(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s, want /v1/messages", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1", "type": "message", "role": "assistant",
			"model": "claude-sonnet-4-20250514",
			"content": [{"type": "tool_use", "id": "toolu_1", "name": "list_orders", "input": {"status": "PENDING"}}],
			"stop_reason": "tool_use",
			"usage": {"input_tokens": 321, "output_tokens": 12}
		}`))
	}))
	defer srv.Close()

	c := NewAnthropicClient("test-key", nil, option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	resp, err := c.Chat(context.Background(), "claude-sonnet-4-20250514", []Message{
		{Role: RoleSystem, Content: "You are the Square 15 assistant."},
		{Role: RoleUser, Content: "Which orders are pending?"},
	}, nil, Options{Temperature: 0.3})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	system, _ := body["system"].([]any)
	if len(system) != 1 {
		t.Errorf("system = %v, want one text block", body["system"])
	}
	if body["temperature"] != 0.3 {
		t.Errorf("temperature = %v, want 0.3", body["temperature"])
	}
	if body["max_tokens"] != float64(DefaultMaxTokens) {
		t.Errorf("max_tokens = %v", body["max_tokens"])
	}
	if !resp.HasToolCalls() || resp.Message.ToolCalls[0].Function.Arguments["status"] != "PENDING" {
		t.Errorf("tool calls = %+v", resp.Message.ToolCalls)
	}
	if resp.InputTokens != 321 {
		t.Errorf("InputTokens = %d, want 321", resp.InputTokens)
	}
}

func TestAnthropicClient_ChatStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`))
	}))
	defer srv.Close()

	c := NewAnthropicClient("test-key", nil, option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	_, err := c.Chat(context.Background(), "claude-sonnet-4-20250514", []Message{{Role: RoleUser, Content: "hi"}}, nil, Options{})

	var statusErr *httpkit.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("err = %v, want 400 StatusError", err)
	}
}

func TestOpenAIClient_Chat(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1", "object": "chat.completion", "created": 1773133200,
			"model": "gpt-4o-mini",
			"choices": [{
				"index": 0, "finish_reason": "tool_calls",
				"message": {"role": "assistant", "content": "",
					"tool_calls": [{"id": "call_1", "type": "function",
						"function": {"name": "record_expense", "arguments": "{\"category\":\"fuel\",\"amount\":420.5}"}}]}
			}],
			"usage": {"prompt_tokens": 90, "completion_tokens": 18, "total_tokens": 108}
		}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("test-key", srv.URL, nil, openaiopt.WithMaxRetries(0))
	tools := []map[string]any{{
		"type": "function",
		"function": map[string]any{
			"name":       "record_expense",
			"parameters": map[string]any{"type": "object", "properties": map[string]any{}},
		},
	}}
	resp, err := c.Chat(context.Background(), "gpt-4o-mini", []Message{
		{Role: RoleSystem, Content: "You are the Square 15 assistant."},
		{Role: RoleUser, Content: "Log R420.50 fuel."},
	}, tools, Options{Temperature: 0.3, MaxTokens: 512})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if msgs, _ := body["messages"].([]any); len(msgs) != 2 {
		t.Errorf("messages = %v", body["messages"])
	}
	if body["max_completion_tokens"] != float64(512) {
		t.Errorf("max_completion_tokens = %v", body["max_completion_tokens"])
	}
	if len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(resp.Message.ToolCalls))
	}
	call := resp.Message.ToolCalls[0]
	if call.ID != "call_1" || call.Function.Name != "record_expense" || call.Function.Arguments["amount"] != 420.5 {
		t.Errorf("call = %+v", call)
	}
	if resp.InputTokens != 90 || resp.OutputTokens != 18 {
		t.Errorf("tokens = %d/%d", resp.InputTokens, resp.OutputTokens)
	}
}

type stubClient struct {
	name    string
	calls   []string
	pingErr error
}

func (s *stubClient) Chat(_ context.Context, model string, _ []Message, _ []map[string]any, _ Options) (*ChatResponse, error) {
	s.calls = append(s.calls, model)
	return &ChatResponse{Model: model, Message: Message{Role: RoleAssistant, Content: s.name}}, nil
}

func (s *stubClient) Ping(context.Context) error { return s.pingErr }

func TestMultiClient_Routing(t *testing.T) {
	local := &stubClient{name: "ollama"}
	remote := &stubClient{name: "anthropic"}

	m := NewMultiClient(local)
	m.AddProvider("anthropic", remote)
	m.AddModel("claude-sonnet-4-20250514", "anthropic")
	m.AddModel("orphan", "openai")

	for model, want := range map[string]string{
		"claude-sonnet-4-20250514": "anthropic",
		"qwen3:8b":                 "ollama",
		"orphan":                   "ollama",
	} {
		resp, err := m.Chat(context.Background(), model, nil, nil, Options{})
		if err != nil {
			t.Fatalf("Chat(%s): %v", model, err)
		}
		if resp.Message.Content != want {
			t.Errorf("Chat(%s) routed to %s, want %s", model, resp.Message.Content, want)
		}
	}
	if got := m.ProviderFor("orphan"); got != "" {
		t.Errorf("ProviderFor(orphan) = %q, want fallback", got)
	}
}

func TestMultiClient_NoFallback(t *testing.T) {
	m := NewMultiClient(nil)
	if _, err := m.Chat(context.Background(), "qwen3:8b", nil, nil, Options{}); err == nil {
		t.Error("expected error without a provider")
	}
	if err := m.Ping(context.Background()); err == nil {
		t.Error("expected Ping error without a fallback")
	}
}

func TestMultiClient_Ping(t *testing.T) {
	local := &stubClient{name: "ollama"}
	remote := &stubClient{name: "anthropic", pingErr: errors.New("401 invalid x-api-key")}
	unused := &stubClient{name: "openai", pingErr: errors.New("unreachable")}

	m := NewMultiClient(local)
	m.AddProvider("anthropic", remote)
	m.AddProvider("openai", unused)
	if err := m.Ping(context.Background()); err != nil {
		t.Errorf("Ping with no routed remote models = %v, want nil", err)
	}

	m.AddModel("claude-sonnet-4-20250514", "anthropic")
	err := m.Ping(context.Background())
	if err == nil || !strings.Contains(err.Error(), "anthropic: 401") {
		t.Errorf("Ping = %v, want anthropic failure", err)
	}
	if strings.Contains(err.Error(), "openai") {
		t.Errorf("Ping reported an unrouted provider: %v", err)
	}
}
