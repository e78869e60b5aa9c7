// Package ops builds the business operations the agent may call. Every
// registry is bound to one authenticated principal: executors close over
// it, check its permissions, and attribute their writes to it.
package ops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/chalatsithapelo-ops/square15management-sub006/internal/auth"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/config"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/notify"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/refnum"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/store"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/tools"
)

// Reference number prefixes.
const (
	PrefixQuote   = "QUO"
	PrefixInvoice = "INV"
	PrefixOrder   = "ORD"
	PrefixProject = "PRJ"
)

// Deps are the collaborators shared by every registry. Mailer, Publisher,
// Tasks, Logger and Now have usable defaults.
type Deps struct {
	Store     *store.Store
	Business  config.BusinessConfig
	Mailer    notify.Mailer
	Publisher notify.Publisher
	Tasks     *SideTasks
	Logger    *slog.Logger
	Now       func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Mailer == nil {
		d.Mailer = notify.Discard{}
	}
	if d.Publisher == nil {
		d.Publisher = notify.Discard{}
	}
	if d.Tasks == nil {
		d.Tasks = NewSideTasks(d.Logger, 0)
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// operations is the per-request executor set.
type operations struct {
	Deps
	principal auth.Principal
	actor     store.Actor
}

// NewRegistry returns a fresh registry whose executors act as p. Build
// one per request and never share it between principals.
func NewRegistry(deps Deps, p auth.Principal) (*tools.Registry, error) {
	if p.IsZero() {
		return nil, fmt.Errorf("build registry: %w", auth.ErrUnauthenticated)
	}
	if deps.Store == nil {
		return nil, errors.New("build registry: no store")
	}

	o := &operations{
		Deps:      deps.withDefaults(),
		principal: p,
		actor:     store.Actor{ID: p.ID, Name: p.Name},
	}

	return tools.NewRegistry(
		o.createLead(),
		o.listLeads(),
		o.updateLeadStatus(),
		o.createQuote(),
		o.createInvoice(),
		o.createPMInvoice(),
		o.listInvoices(),
		o.updateInvoiceStatus(),
		o.sendInvoice(),
		o.createOrder(),
		o.listOrders(),
		o.updateOrderStatus(),
		o.createProject(),
		o.listProjects(),
		o.updateProjectStatus(),
		o.recordExpense(),
		o.financialSummary(),
	)
}

// guard wraps fn with a permission check that runs before any work.
func guard[P tools.Params](o *operations, perm auth.Permission, fn func(context.Context, P) tools.Outcome) func(context.Context, P) tools.Outcome {
	return func(ctx context.Context, p P) tools.Outcome {
		if !o.principal.Can(perm) {
			return tools.Failure(tools.KindUnauthorized,
				fmt.Sprintf("%v: %s lacks %s", auth.ErrForbidden, o.principal.ID, perm),
				fmt.Sprintf("%s is not allowed to perform this action (requires %s).", o.principal.Name, perm))
		}
		return fn(ctx, p)
	}
}

// storeFailure maps a store or allocator error to a failure Outcome.
func (o *operations) storeFailure(ctx context.Context, op string, err error) tools.Outcome {
	var exhausted *refnum.ExhaustedError
	switch {
	case errors.Is(err, store.ErrNotFound):
		return tools.Failure(tools.KindNotFound, err.Error(), fmt.Sprintf("Not found: %v.", err))
	case errors.As(err, &exhausted):
		o.Logger.Warn("reference number allocation exhausted",
			"request_id", tools.RequestIDFromContext(ctx),
			"op", op,
			"prefix", exhausted.Prefix,
		)
		return tools.Failure(tools.KindConflict, err.Error(),
			fmt.Sprintf("Could not assign a %s number right now. Please try again.", exhausted.Prefix))
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return tools.Failure(tools.KindTimeout, err.Error(), fmt.Sprintf("The %s operation timed out.", op))
	default:
		o.Logger.Error("operation failed",
			"request_id", tools.RequestIDFromContext(ctx),
			"op", op,
			"actor", o.actor.ID,
			"error", err,
		)
		return tools.Failure(tools.KindInternal, err.Error(), fmt.Sprintf("The %s operation failed.", op))
	}
}

// allocate mints a reference number under prefix and commits a record
// with it.
func (o *operations) allocate(ctx context.Context, prefix string, count func(context.Context) (int, error), commit func(context.Context, string) error) (string, error) {
	return refnum.Allocate(ctx, refnum.Spec{
		Prefix:      prefix,
		Count:       count,
		IsCollision: store.IsUniqueViolation,
		Logger:      o.Logger,
	}, commit)
}

// event publishes ev as a side task.
func (o *operations) event(ctx context.Context, ev notify.Event) {
	ev.ActorID = o.actor.ID
	ev.At = o.Now().UTC()
	o.Tasks.Go(ctx, "publish "+ev.Type, func(ctx context.Context) error {
		return o.Publisher.Publish(ctx, ev)
	})
}

// mail sends msg as a side task.
func (o *operations) mail(ctx context.Context, name string, msg notify.Message) {
	o.Tasks.Go(ctx, name, func(ctx context.Context) error {
		return o.Mailer.Send(ctx, msg)
	})
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// totals sums items and applies the business tax rate.
func (o *operations) totals(items []store.LineItem) (subtotal, tax, total float64) {
	for _, it := range items {
		subtotal += it.Amount()
	}
	subtotal = round2(subtotal)
	tax = round2(subtotal * o.Business.TaxRate)
	return subtotal, tax, round2(subtotal + tax)
}

func normStatus(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// lineItem is the model-facing shape of a billable line.
type lineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
}

func validateItems(items []lineItem) error {
	if len(items) == 0 {
		return errors.New("missing items")
	}
	for i, it := range items {
		field := fmt.Sprintf("items[%d]", i)
		if err := tools.Check(
			tools.Required(field+".description", it.Description),
			tools.Positive(field+".quantity", it.Quantity),
			tools.NonNegative(field+".unit_price", it.UnitPrice),
		); err != nil {
			return err
		}
	}
	return nil
}

func storeItems(items []lineItem) []store.LineItem {
	out := make([]store.LineItem, len(items))
	for i, it := range items {
		out[i] = store.LineItem{
			Description: strings.TrimSpace(it.Description),
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
		}
	}
	return out
}

// Schema helpers.

func object(required []string, props map[string]any) map[string]any {
	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func str(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func num(desc string) map[string]any {
	return map[string]any{"type": "number", "description": desc}
}

func integer(desc string) map[string]any {
	return map[string]any{"type": "integer", "description": desc}
}

func enum(desc string, values []string) map[string]any {
	return map[string]any{"type": "string", "enum": values, "description": desc}
}

func itemsSchema() map[string]any {
	return map[string]any{
		"type":        "array",
		"description": "Billable lines",
		"items": object([]string{"description", "quantity", "unit_price"}, map[string]any{
			"description": str("What was supplied"),
			"quantity":    num("Quantity, greater than zero"),
			"unit_price":  num("Price per unit excluding tax"),
		}),
	}
}

func listSchema(statuses []string) map[string]any {
	return object(nil, map[string]any{
		"status": enum("Only return records with this status", statuses),
		"limit":  integer("Maximum records to return (default 20, max 100)"),
	})
}

// listParams filters a list operation.
type listParams struct {
	Status string `json:"status"`
	Limit  int    `json:"limit"`
}

func (p listParams) check(statuses []string) error {
	return tools.Check(
		tools.OptionalOneOf("status", normStatus(p.Status), statuses),
		tools.NonNegative("limit", float64(p.Limit)),
	)
}

// statusParams change the status of a numbered record.
type statusParams struct {
	Number string `json:"number"`
	Status string `json:"status"`
}

func (p statusParams) check(statuses []string) error {
	return tools.Check(
		tools.Required("number", p.Number),
		tools.Required("status", p.Status),
		tools.OneOf("status", normStatus(p.Status), statuses),
	)
}

func statusSchema(what string, statuses []string) map[string]any {
	return object([]string{"number", "status"}, map[string]any{
		"number": str(what + " reference number, e.g. " + examples[what]),
		"status": enum("New status", statuses),
	})
}

var examples = map[string]string{
	"Invoice": "INV-00042",
	"Order":   "ORD-00007",
	"Project": "PRJ-00003",
}

// parseDay parses an optional YYYY-MM-DD value. Validation has already
// rejected malformed input.
func parseDay(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.DateOnly, s)
	return t
}
