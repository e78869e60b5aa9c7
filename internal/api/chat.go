package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/chalatsithapelo-ops/square15management-sub006/internal/agent"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/auth"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/prompts"
)

// maxBodyBytes bounds request bodies, attachments included.
const maxBodyBytes = 8 << 20

// AgentChatRequest is the native chat request.
type AgentChatRequest struct {
	Messages    []agent.Message    `json:"messages"`
	Attachments []agent.Attachment `json:"attachments,omitempty"`
	Model       string             `json:"model,omitempty"`
}

// ChatCompletionRequest is the OpenAI-compatible request format.
type ChatCompletionRequest struct {
	Model    string          `json:"model"`
	Messages []agent.Message `json:"messages"`
	Stream   bool            `json:"stream,omitempty"`
}

// ChatCompletionResponse is the OpenAI-compatible response format.
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Choice represents a completion choice.
type Choice struct {
	Index        int           `json:"index"`
	Message      agent.Message `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

// Usage represents token usage.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// chat runs one agent request for the authenticated caller and counts it.
func (s *Server) chat(ctx context.Context, p auth.Principal, conv []agent.Message, attachments []agent.Attachment, model string) (*agent.Result, error) {
	res, err := s.svc.Chat(ctx, p, conv, attachments, model)
	if err != nil {
		var modelErr *agent.ModelError
		if errors.As(err, &modelErr) {
			s.stats.RecordFailure(model)
		}
		return nil, err
	}
	s.stats.Record(res.Model, string(res.State), res.InputTokens, res.OutputTokens, res.ToolCalls)
	return res, nil
}

// agentError maps an agent failure to a status code and a message safe
// to show the caller.
func agentError(err error) (int, string, string) {
	var modelErr *agent.ModelError
	switch {
	case errors.As(err, &modelErr):
		return http.StatusBadGateway, prompts.FailureMessage, modelErr.RequestID
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized, "invalid credential", ""
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden, "not permitted", ""
	case errors.Is(err, agent.ErrEmptyConversation):
		return http.StatusBadRequest, err.Error(), ""
	}
	return http.StatusInternalServerError, prompts.FailureMessage, ""
}

func (s *Server) writeAgentError(w http.ResponseWriter, err error) {
	code, msg, requestID := agentError(err)
	if requestID != "" {
		w.Header().Set("X-Request-ID", requestID)
	}
	if code >= 500 {
		s.logger.Error("agent request failed", "request_id", requestID, "error", err)
	}
	s.errorResponse(w, code, msg)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *Server) handleAgentChat(w http.ResponseWriter, r *http.Request) {
	var req AgentChatRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Messages) == 0 {
		s.errorResponse(w, http.StatusBadRequest, "messages is required")
		return
	}

	res, err := s.chat(r.Context(), principalFrom(r.Context()), req.Messages, req.Attachments, req.Model)
	if err != nil {
		s.writeAgentError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", res.RequestID)
	writeJSON(w, res, s.logger)
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req ChatCompletionRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Stream {
		s.errorResponse(w, http.StatusBadRequest, "streaming is not supported")
		return
	}
	if len(req.Messages) == 0 {
		s.errorResponse(w, http.StatusBadRequest, "messages is required")
		return
	}

	res, err := s.chat(r.Context(), principalFrom(r.Context()), req.Messages, nil, req.Model)
	if err != nil {
		s.writeAgentError(w, err)
		return
	}

	finish := "stop"
	if res.State == agent.StateExhausted {
		finish = "length"
	}
	completion := ChatCompletionResponse{
		ID:      fmt.Sprintf("chatcmpl-%s", res.RequestID),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   res.Model,
		Choices: []Choice{
			{
				Index: 0,
				Message: agent.Message{
					Role:    "assistant",
					Content: res.Content,
				},
				FinishReason: finish,
			},
		},
		Usage: Usage{
			PromptTokens:     res.InputTokens,
			CompletionTokens: res.OutputTokens,
			TotalTokens:      res.InputTokens + res.OutputTokens,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", res.RequestID)
	writeJSON(w, completion, s.logger)
}
