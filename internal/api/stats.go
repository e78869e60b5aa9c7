package api

import (
	"maps"
	"sync"

	"github.com/chalatsithapelo-ops/square15management-sub006/internal/buildinfo"
)

// SessionStats counts agent requests and token usage since the process
// started.
type SessionStats struct {
	mu           sync.Mutex
	requests     int64
	failures     int64
	inputTokens  int64
	outputTokens int64
	toolCalls    int64
	byModel      map[string]int64
	byState      map[string]int64
}

// NewSessionStats returns empty counters.
func NewSessionStats() *SessionStats {
	return &SessionStats{
		byModel: make(map[string]int64),
		byState: make(map[string]int64),
	}
}

// Record counts one finished request.
func (s *SessionStats) Record(model, state string, inputTokens, outputTokens, toolCalls int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++
	s.inputTokens += int64(inputTokens)
	s.outputTokens += int64(outputTokens)
	s.toolCalls += int64(toolCalls)
	if model != "" {
		s.byModel[model]++
	}
	s.byState[state]++
}

// RecordFailure counts a request that ended with a model error.
func (s *SessionStats) RecordFailure(model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++
	s.failures++
	if model != "" {
		s.byModel[model]++
	}
	s.byState["FAILED"]++
}

// SessionStatsSnapshot is a copy-safe snapshot of session stats.
type SessionStatsSnapshot struct {
	TotalRequests     int64             `json:"total_requests"`
	Failures          int64             `json:"failures"`
	TotalInputTokens  int64             `json:"total_input_tokens"`
	TotalOutputTokens int64             `json:"total_output_tokens"`
	ToolCalls         int64             `json:"tool_calls"`
	ByModel           map[string]int64  `json:"by_model"`
	ByState           map[string]int64  `json:"by_state"`
	Uptime            string            `json:"uptime"`
	Build             map[string]string `json:"build,omitempty"`
}

// Snapshot copies the counters.
func (s *SessionStats) Snapshot() SessionStatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionStatsSnapshot{
		TotalRequests:     s.requests,
		Failures:          s.failures,
		TotalInputTokens:  s.inputTokens,
		TotalOutputTokens: s.outputTokens,
		ToolCalls:         s.toolCalls,
		ByModel:           maps.Clone(s.byModel),
		ByState:           maps.Clone(s.byState),
		Uptime:            buildinfo.Uptime().String(),
		Build:             buildinfo.Info(),
	}
}
