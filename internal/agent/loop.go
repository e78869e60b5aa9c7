// Package agent runs the orchestration loop: it alternates model calls
// and operation executions until the model produces a final answer or
// the round limit is reached.
package agent

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chalatsithapelo-ops/square15management-sub006/internal/llm"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/prompts"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/store"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/tools"
)

// State is the loop's position in one request.
type State string

// Loop states.
const (
	StateAwaitingModel           State = "AWAITING_MODEL"
	StateModelRequestsOperations State = "MODEL_REQUESTS_OPERATIONS"
	StateExecuting               State = "EXECUTING"
	StateModelReturnsText        State = "MODEL_RETURNS_TEXT"
	StateDone                    State = "DONE"
	StateExhausted               State = "EXHAUSTED"
	StateFailed                  State = "FAILED"
)

// Loop defaults.
const (
	DefaultMaxRounds     = 5
	DefaultToolTimeout   = 30 * time.Second
	DefaultModelTimeout  = 120 * time.Second
	DefaultParallelTools = 4
)

// Message is one conversation turn.
type Message struct {
	Role    string `json:"role"` // user, assistant
	Content string `json:"content"`
}

// Request is one orchestration run.
type Request struct {
	Registry     *tools.Registry
	Conversation []Message
	// ActorID is recorded on traces.
	ActorID string
	// Model overrides Config.Model when set.
	Model string
}

// Result is the outcome of a run that did not fail.
type Result struct {
	RequestID    string `json:"request_id"`
	Content      string `json:"content"`
	State        State  `json:"state"`
	Model        string `json:"model"`
	Rounds       int    `json:"rounds"`
	ToolCalls    int    `json:"tool_calls"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// ModelError is returned when the model call fails. It is the only
// failure that ends a run.
type ModelError struct {
	RequestID string
	Round     int
	Err       error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("model call failed (request %s, round %d): %v", e.RequestID, e.Round, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

// Tracer persists one record per round. *store.Store implements it.
type Tracer interface {
	RecordTrace(ctx context.Context, tr store.Trace) error
}

// Config tunes the loop.
type Config struct {
	Model         string
	MaxRounds     int
	Temperature   float64
	MaxTokens     int
	ToolTimeout   time.Duration
	ModelTimeout  time.Duration
	ParallelTools int
	Sanitize      SanitizeOptions

	// SystemPrompt replaces the built-in prompt when set.
	SystemPrompt string
	Business     string
	Currency     string
}

func (c Config) withDefaults() Config {
	if c.MaxRounds <= 0 {
		c.MaxRounds = DefaultMaxRounds
	}
	if c.ToolTimeout <= 0 {
		c.ToolTimeout = DefaultToolTimeout
	}
	if c.ModelTimeout <= 0 {
		c.ModelTimeout = DefaultModelTimeout
	}
	if c.ParallelTools <= 0 {
		c.ParallelTools = DefaultParallelTools
	}
	c.Sanitize = c.Sanitize.withDefaults()
	return c
}

// Loop runs requests. It holds no per-request state and is safe for
// concurrent use.
type Loop struct {
	logger *slog.Logger
	llm    llm.Client
	tracer Tracer
	cfg    Config
	now    func() time.Time
}

// NewLoop creates a loop. tracer may be nil.
func NewLoop(logger *slog.Logger, client llm.Client, tracer Tracer, cfg Config) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		logger: logger,
		llm:    client,
		tracer: tracer,
		cfg:    cfg.withDefaults(),
		now:    time.Now,
	}
}

// round is the bookkeeping for one model call.
type round struct {
	n        int
	state    State
	started  time.Time
	calls    []string
	failures int
	resp     *llm.ChatResponse
}

// Run drives one request to DONE or EXHAUSTED. A model failure returns
// *ModelError; operation failures never end the run.
func (l *Loop) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Registry == nil {
		return nil, errors.New("agent: request has no registry")
	}

	requestID := tools.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = generateRequestID()
		ctx = tools.WithRequestID(ctx, requestID)
	}
	model := req.Model
	if model == "" {
		model = l.cfg.Model
	}
	log := l.logger.With("request_id", requestID, "model", model)

	res := &Result{RequestID: requestID, Model: model}
	conv := append([]Message(nil), req.Conversation...)
	system := prompts.SystemPrompt(l.cfg.SystemPrompt, l.cfg.Business, l.cfg.Currency, l.now())
	defs := req.Registry.Definitions()

	log.Info("agent run started", "messages", len(conv), "tools", len(defs))

	for n := 1; n <= l.cfg.MaxRounds; n++ {
		r := &round{n: n, state: StateAwaitingModel, started: time.Now()}
		res.Rounds = n

		resp, err := l.callModel(ctx, model, system, conv, defs)
		if err != nil {
			r.state = StateFailed
			l.finishRound(ctx, log, req, res, r)
			log.Error("model call failed", "round", n, "error", err)
			return nil, &ModelError{RequestID: requestID, Round: n, Err: err}
		}
		r.resp = resp
		res.InputTokens += resp.InputTokens
		res.OutputTokens += resp.OutputTokens
		if resp.Model != "" {
			res.Model = resp.Model
		}

		if resp.HasToolCalls() {
			r.state = StateModelRequestsOperations
			calls := resp.Message.ToolCalls
			for _, c := range calls {
				r.calls = append(r.calls, c.Function.Name)
			}
			r.state = StateExecuting
			results := l.execute(ctx, log, req.Registry, calls)

			lines := make([]string, len(results))
			for i, cr := range results {
				if !cr.outcome.OK() {
					r.failures++
				}
				lines[i] = formatResult(i+1, cr)
			}
			res.ToolCalls += len(calls)
			// Only the folded results go back; the model's own text from
			// this round is not part of the conversation.
			conv = append(conv, Message{Role: llm.RoleUser, Content: prompts.ToolResultsMessage(lines)})
			l.finishRound(ctx, log, req, res, r)
			continue
		}

		r.state = StateModelReturnsText
		if text := strings.TrimSpace(resp.Message.Content); text != "" {
			r.state = StateDone
			l.finishRound(ctx, log, req, res, r)
			res.Content = text
			res.State = StateDone
			log.Info("agent run finished", "state", res.State, "rounds", n, "tool_calls", res.ToolCalls)
			return res, nil
		}

		log.Debug("empty model response, nudging", "round", n)
		conv = append(conv, Message{Role: llm.RoleUser, Content: prompts.EmptyResponseNudge})
		l.finishRound(ctx, log, req, res, r)
	}

	res.State = StateExhausted
	res.Content = prompts.ExhaustedMessage
	if l.tracer != nil {
		l.record(ctx, log, req, res, &round{n: res.Rounds, state: StateExhausted, started: time.Now()})
	}
	log.Warn("agent run exhausted", "rounds", res.Rounds, "tool_calls", res.ToolCalls)
	return res, nil
}

func (l *Loop) callModel(ctx context.Context, model, system string, conv []Message, defs []map[string]any) (*llm.ChatResponse, error) {
	history := Sanitize(conv, l.cfg.Sanitize)
	msgs := make([]llm.Message, 0, len(history)+1)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: system})
	for _, m := range history {
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
	}

	mctx, cancel := context.WithTimeout(ctx, l.cfg.ModelTimeout)
	defer cancel()
	resp, err := l.llm.Chat(mctx, model, msgs, defs, llm.Options{
		Temperature: l.cfg.Temperature,
		MaxTokens:   l.cfg.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, errors.New("model returned no response")
	}
	return resp, nil
}

type callResult struct {
	call    llm.ToolCall
	outcome tools.Outcome
	elapsed time.Duration
}

// execute runs one round's calls concurrently, at most ParallelTools at
// a time. Results keep the order the model requested them in.
func (l *Loop) execute(ctx context.Context, log *slog.Logger, reg *tools.Registry, calls []llm.ToolCall) []callResult {
	results := make([]callResult, len(calls))

	var g errgroup.Group
	g.SetLimit(l.cfg.ParallelTools)
	for i, call := range calls {
		g.Go(func() error {
			start := time.Now()
			out := l.executeOne(ctx, reg, call)
			results[i] = callResult{call: call, outcome: out, elapsed: time.Since(start)}

			attrs := []any{"tool", call.Function.Name, "elapsed", results[i].elapsed}
			if out.OK() {
				log.Debug("tool succeeded", attrs...)
			} else {
				log.Info("tool failed", append(attrs, "kind", out.Kind(), "error", firstLine(out.Err()))...)
				if out.Kind() == tools.KindInternal {
					log.Debug("tool failure detail", "tool", call.Function.Name, "error", out.Err())
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// executeOne runs a call under its own timeout. An executor that ignores
// its context is abandoned when the timeout fires.
func (l *Loop) executeOne(ctx context.Context, reg *tools.Registry, call llm.ToolCall) tools.Outcome {
	name := call.Function.Name
	if _, ok := reg.Get(name); !ok {
		return reg.Execute(ctx, name, call.Function.Arguments)
	}

	tctx, cancel := context.WithTimeout(ctx, l.cfg.ToolTimeout)
	defer cancel()

	done := make(chan tools.Outcome, 1)
	go func() { done <- reg.Execute(tctx, name, call.Function.Arguments) }()

	select {
	case out := <-done:
		return out
	case <-tctx.Done():
		return tools.Failure(tools.KindTimeout,
			fmt.Sprintf("%s: %v", name, tctx.Err()),
			fmt.Sprintf("The %s operation did not finish in time.", name))
	}
}

func (l *Loop) finishRound(ctx context.Context, log *slog.Logger, req Request, res *Result, r *round) {
	attrs := []any{
		"round", r.n,
		"state", r.state,
		"tool_calls", r.calls,
		"failures", r.failures,
		"elapsed", time.Since(r.started),
	}
	if r.resp != nil {
		attrs = append(attrs, "input_tokens", r.resp.InputTokens, "output_tokens", r.resp.OutputTokens)
	}
	log.Info("agent round", attrs...)

	if l.tracer != nil {
		l.record(ctx, log, req, res, r)
	}
}

func (l *Loop) record(ctx context.Context, log *slog.Logger, req Request, res *Result, r *round) {
	tr := store.Trace{
		RequestID: res.RequestID,
		Round:     r.n,
		State:     string(r.state),
		Model:     res.Model,
		ActorID:   req.ActorID,
		ToolCalls: r.calls,
		Failures:  r.failures,
		Duration:  time.Since(r.started),
	}
	if r.resp != nil {
		tr.InputTokens = r.resp.InputTokens
		tr.OutputTokens = r.resp.OutputTokens
	}
	// Traces outlive a cancelled request.
	if err := l.tracer.RecordTrace(context.WithoutCancel(ctx), tr); err != nil {
		log.Warn("failed to record trace", "round", r.n, "error", err)
	}
}

// formatResult renders one call for the results message. Failures carry
// only the first line of their error text.
func formatResult(n int, cr callResult) string {
	o := cr.outcome
	status := "SUCCESS"
	view := map[string]any{"success": o.OK(), "message": o.Message()}
	if o.OK() {
		if p := o.Payload(); p != nil {
			view["payload"] = p
		}
	} else {
		status = "FAILED"
		view["kind"] = o.Kind()
		view["error"] = firstLine(o.Err())
	}
	body, err := json.Marshal(view)
	if err != nil {
		body = []byte(fmt.Sprintf(`{"success":false,"error":%q}`, err.Error()))
	}
	return fmt.Sprintf("%d. %s: %s\n%s", n, cr.call.Function.Name, status, body)
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

// generateRequestID returns "r_" followed by 8 hex characters.
func generateRequestID() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("r_%08x", time.Now().UnixNano()&0xffffffff)
	}
	return "r_" + hex.EncodeToString(b)
}
