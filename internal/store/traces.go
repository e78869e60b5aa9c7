package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Trace is one persisted orchestration round.
type Trace struct {
	ID           string        `json:"id"`
	RequestID    string        `json:"request_id"`
	Round        int           `json:"round"`
	State        string        `json:"state"`
	Model        string        `json:"model"`
	ActorID      string        `json:"actor_id,omitempty"`
	ToolCalls    []string      `json:"tool_calls,omitempty"`
	Failures     int           `json:"failures"`
	InputTokens  int           `json:"input_tokens"`
	OutputTokens int           `json:"output_tokens"`
	Duration     time.Duration `json:"duration"`
	CreatedAt    time.Time     `json:"created_at"`
}

// RecordTrace appends a trace row. Traces are append-only.
func (s *Store) RecordTrace(ctx context.Context, tr Trace) error {
	if tr.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}
		tr.ID = id
	}
	created := s.timestamp()
	if !tr.CreatedAt.IsZero() {
		created = tr.CreatedAt.UTC().Format(time.RFC3339)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_traces
			(id, request_id, round, state, model, actor_id, tool_calls, failures,
			 input_tokens, output_tokens, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tr.ID, tr.RequestID, tr.Round, tr.State, tr.Model, tr.ActorID, strings.Join(tr.ToolCalls, ","),
		tr.Failures, tr.InputTokens, tr.OutputTokens, tr.Duration.Milliseconds(), created,
	)
	if err != nil {
		return fmt.Errorf("insert agent trace: %w", err)
	}
	return nil
}

// Traces returns the rounds recorded for a request in order.
func (s *Store) Traces(ctx context.Context, requestID string) ([]Trace, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, request_id, round, state, model, actor_id, tool_calls, failures,
			input_tokens, output_tokens, duration_ms, created_at
		 FROM agent_traces WHERE request_id = ? ORDER BY round, created_at`,
		requestID,
	)
	if err != nil {
		return nil, fmt.Errorf("query agent traces: %w", err)
	}
	defer rows.Close()

	var out []Trace
	for rows.Next() {
		var tr Trace
		var calls, created string
		var ms int64
		if err := rows.Scan(&tr.ID, &tr.RequestID, &tr.Round, &tr.State, &tr.Model, &tr.ActorID, &calls,
			&tr.Failures, &tr.InputTokens, &tr.OutputTokens, &ms, &created); err != nil {
			return nil, fmt.Errorf("scan agent trace: %w", err)
		}
		if calls != "" {
			tr.ToolCalls = strings.Split(calls, ",")
		}
		tr.Duration = time.Duration(ms) * time.Millisecond
		tr.CreatedAt = parseTime(created)
		out = append(out, tr)
	}
	return out, rows.Err()
}
