package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chalatsithapelo-ops/square15management-sub006/internal/auth"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/config"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/notify"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/store"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/tools"
)

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

// recorder captures mail and events.
type recorder struct {
	mu     sync.Mutex
	mails  []notify.Message
	events []notify.Event
}

func (r *recorder) Send(_ context.Context, m notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mails = append(r.mails, m)
	return nil
}

func (r *recorder) Publish(_ context.Context, ev notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) eventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var types []string
	for _, ev := range r.events {
		types = append(types, ev.Type)
	}
	return types
}

type fixture struct {
	store *store.Store
	deps  Deps
	rec   *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := store.Open(context.Background(), store.DriverModernc, filepath.Join(t.TempDir(), "ops.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	s.SetClock(func() time.Time { return testNow })

	rec := &recorder{}
	return &fixture{
		store: s,
		rec:   rec,
		deps: Deps{
			Store: s,
			Business: config.BusinessConfig{
				Name:             "Square 15",
				Currency:         "ZAR",
				TaxRate:          0.15,
				PaymentTermsDays: 30,
				SalesInbox:       "sales@square15.example.com",
			},
			Mailer:    rec,
			Publisher: rec,
			Tasks:     NewSideTasks(logger, time.Second),
			Logger:    logger,
			Now:       func() time.Time { return testNow },
		},
	}
}

func principal(t *testing.T, id, role string) auth.Principal {
	t.Helper()
	p, err := auth.NewPrincipal(id, id, id+"@square15.example.com", role)
	require.NoError(t, err)
	return p
}

func (f *fixture) registry(t *testing.T, p auth.Principal) *tools.Registry {
	t.Helper()
	reg, err := NewRegistry(f.deps, p)
	require.NoError(t, err)
	return reg
}

func payload(t *testing.T, out tools.Outcome) map[string]any {
	t.Helper()
	require.True(t, out.OK(), "outcome failed: %s (%s)", out.Err(), out.Kind())
	m, ok := out.Payload().(map[string]any)
	require.True(t, ok, "payload is %T", out.Payload())
	return m
}

func items(lines ...[3]any) []any {
	out := make([]any, len(lines))
	for i, l := range lines {
		out[i] = map[string]any{"description": l[0], "quantity": l[1], "unit_price": l[2]}
	}
	return out
}

func TestNewRegistry(t *testing.T) {
	f := newFixture(t)
	reg := f.registry(t, principal(t, "u-alice", auth.RoleAdmin))

	assert.Equal(t, []string{
		"create_lead", "list_leads", "update_lead_status",
		"create_quote",
		"create_invoice", "create_pm_invoice", "list_invoices", "update_invoice_status", "send_invoice",
		"create_order", "list_orders", "update_order_status",
		"create_project", "list_projects", "update_project_status",
		"record_expense", "financial_summary",
	}, reg.Names())
	assert.Len(t, reg.Definitions(), reg.Len())

	_, err := NewRegistry(f.deps, auth.Principal{})
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestCreateLead_MissingPhone(t *testing.T) {
	f := newFixture(t)
	reg := f.registry(t, principal(t, "u-alice", auth.RoleSales))
	ctx := context.Background()

	out := reg.Execute(ctx, "create_lead", map[string]any{
		"customer_name": "Jane Dlamini",
		"email":         "jane@example.com",
		"service_type":  "plumbing",
	})
	require.False(t, out.OK())
	assert.Equal(t, tools.KindValidation, out.Kind())
	assert.Equal(t, "missing phone", out.Err())

	leads, err := f.store.ListLeads(ctx, "", 0)
	require.NoError(t, err)
	assert.Empty(t, leads, "validation failure must not write")
}

func TestCreateLead_SideEffects(t *testing.T) {
	f := newFixture(t)
	reg := f.registry(t, principal(t, "u-alice", auth.RoleSales))

	out := reg.Execute(context.Background(), "create_lead", map[string]any{
		"customer_name": "Jane Dlamini",
		"email":         "jane@example.com",
		"phone":         "+27 82 555 0101",
		"service_type":  "plumbing",
		"notes":         "Burst geyser",
	})
	p := payload(t, out)
	assert.Equal(t, store.LeadNew, p["status"])

	f.deps.Tasks.Wait()
	require.Len(t, f.rec.mails, 1)
	mail := f.rec.mails[0]
	assert.Equal(t, []string{"sales@square15.example.com"}, mail.To)
	require.Len(t, mail.Attachments, 1)
	assert.Equal(t, "text/vcard", mail.Attachments[0].ContentType)
	assert.Contains(t, string(mail.Attachments[0].Data), "Jane Dlamini")
	assert.Equal(t, []string{"lead.created"}, f.rec.eventTypes())
	assert.Equal(t, "u-alice", f.rec.events[0].ActorID)
}

func TestPermissionDenied(t *testing.T) {
	f := newFixture(t)
	reg := f.registry(t, principal(t, "u-vic", auth.RoleViewer))
	ctx := context.Background()

	out := reg.Execute(ctx, "create_order", map[string]any{
		"customer_name": "Jane Dlamini",
		"address":       "15 Long St",
		"service_type":  "electrical",
	})
	require.False(t, out.OK())
	assert.Equal(t, tools.KindUnauthorized, out.Kind())
	assert.Contains(t, out.Err(), "orders:write")

	n, err := f.store.CountOrders(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// Reads are still allowed.
	assert.True(t, reg.Execute(ctx, "list_orders", nil).OK())
}

func TestRegistries_AttributeToTheirOwnPrincipal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.registry(t, principal(t, "u-alice", auth.RoleSales))
	bob := f.registry(t, principal(t, "u-bob", auth.RoleSales))

	args := map[string]any{
		"customer_name": "Same Customer",
		"address":       "1 Same Rd",
		"service_type":  "painting",
	}

	const perPrincipal = 6
	var mu sync.Mutex
	created := map[string]string{} // order number -> principal id

	var wg sync.WaitGroup
	for i := 0; i < perPrincipal; i++ {
		for id, reg := range map[string]*tools.Registry{"u-alice": alice, "u-bob": bob} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				out := reg.Execute(ctx, "create_order", args)
				if !out.OK() {
					t.Errorf("%s create_order failed: %s", id, out.Err())
					return
				}
				number := out.Payload().(map[string]any)["order_number"].(string)
				mu.Lock()
				defer mu.Unlock()
				if prev, dup := created[number]; dup {
					t.Errorf("order number %s issued to %s and %s", number, prev, id)
				}
				created[number] = id
			}()
		}
	}
	wg.Wait()

	require.Len(t, created, 2*perPrincipal)
	for number, id := range created {
		order, err := f.store.OrderByNumber(ctx, number)
		require.NoError(t, err)
		assert.Equal(t, id, order.CreatedBy, "order %s", number)
	}
}

func TestCreateInvoice_TotalsAndSharedNumbering(t *testing.T) {
	f := newFixture(t)
	reg := f.registry(t, principal(t, "u-acc", auth.RoleAccountant))
	ctx := context.Background()

	std := payload(t, reg.Execute(ctx, "create_invoice", map[string]any{
		"customer_name":  "Jane Dlamini",
		"customer_email": "jane@example.com",
		"items":          items([3]any{"Labour", 2, 650}),
	}))
	assert.Equal(t, "INV-00001", std["invoice_number"])
	assert.Equal(t, 1300.0, std["subtotal"])
	assert.Equal(t, 195.0, std["tax"])
	assert.Equal(t, 1495.0, std["total"])
	assert.Equal(t, "2026-04-09", std["due_date"])

	pm := payload(t, reg.Execute(ctx, "create_pm_invoice", map[string]any{
		"property_manager": "Cape Lets",
		"email":            "billing@capelets.example.com",
		"property":         "Unit 4, Harbour View",
		"items":            items([3]any{"Leak repair", 1, 800.333}),
		"due_date":         "2026-03-31",
	}))
	assert.Equal(t, "INV-00002", pm["invoice_number"])
	assert.Equal(t, store.KindPropertyManager, pm["kind"])
	assert.Equal(t, 800.33, pm["subtotal"])

	inv, err := f.store.InvoiceByNumber(ctx, "INV-00002")
	require.NoError(t, err)
	assert.Equal(t, "u-acc", inv.CreatedBy)
	assert.Equal(t, "Unit 4, Harbour View", inv.Property)
}

func TestCreateInvoice_UnknownOrder(t *testing.T) {
	f := newFixture(t)
	reg := f.registry(t, principal(t, "u-admin", auth.RoleAdmin))

	out := reg.Execute(context.Background(), "create_invoice", map[string]any{
		"customer_name":  "Jane Dlamini",
		"customer_email": "jane@example.com",
		"items":          items([3]any{"Labour", 1, 100}),
		"order_number":   "ORD-09999",
	})
	require.False(t, out.OK())
	assert.Equal(t, tools.KindNotFound, out.Kind())
}

func TestSendInvoice(t *testing.T) {
	f := newFixture(t)
	reg := f.registry(t, principal(t, "u-acc", auth.RoleAccountant))
	ctx := context.Background()

	payload(t, reg.Execute(ctx, "create_invoice", map[string]any{
		"customer_name":  "Jane Dlamini",
		"customer_email": "jane@example.com",
		"items":          items([3]any{"Labour", 1, 1000}),
	}))

	p := payload(t, reg.Execute(ctx, "send_invoice", map[string]any{"number": "INV-00001"}))
	assert.Equal(t, store.InvoiceSent, p["status"])
	assert.Equal(t, "jane@example.com", p["to"])

	f.deps.Tasks.Wait()
	require.Len(t, f.rec.mails, 1)
	mail := f.rec.mails[0]
	assert.Equal(t, "Invoice INV-00001 from Square 15", mail.Subject)
	assert.Contains(t, mail.Body, "ZAR 1,150.00")
	require.Len(t, mail.Attachments, 1)
	assert.Equal(t, "image/png", mail.Attachments[0].ContentType)
	assert.Equal(t, "\x89PNG", string(mail.Attachments[0].Data[:4]))

	payload(t, reg.Execute(ctx, "update_invoice_status", map[string]any{"number": "INV-00001", "status": "paid"}))
	out := reg.Execute(ctx, "send_invoice", map[string]any{"number": "INV-00001"})
	require.False(t, out.OK())
	assert.Equal(t, tools.KindConflict, out.Kind())
}

func TestUpdateOrderStatus_Completed(t *testing.T) {
	f := newFixture(t)
	reg := f.registry(t, principal(t, "u-tech", auth.RoleTechnician))
	ctx := context.Background()

	created := payload(t, reg.Execute(ctx, "create_order", map[string]any{
		"customer_name":  "Jane Dlamini",
		"customer_email": "jane@example.com",
		"address":        "15 Long St",
		"service_type":   "plumbing",
		"total_cost":     950,
	}))
	number := created["order_number"].(string)
	assert.Equal(t, "ORD-00001", number)

	p := payload(t, reg.Execute(ctx, "update_order_status", map[string]any{"number": number, "status": "COMPLETED"}))
	assert.Equal(t, store.OrderCompleted, p["status"])

	f.deps.Tasks.Wait()
	require.Len(t, f.rec.mails, 1)
	assert.Equal(t, []string{"jane@example.com"}, f.rec.mails[0].To)
	assert.Equal(t, []string{"sales@square15.example.com"}, f.rec.mails[0].Cc)
	assert.ElementsMatch(t, []string{"order.created", "order.completed"}, f.rec.eventTypes())
}

func TestUpdateStatus_NotFoundAndInvalid(t *testing.T) {
	f := newFixture(t)
	reg := f.registry(t, principal(t, "u-admin", auth.RoleAdmin))
	ctx := context.Background()

	out := reg.Execute(ctx, "update_project_status", map[string]any{"number": "PRJ-09999", "status": "ON_HOLD"})
	assert.Equal(t, tools.KindNotFound, out.Kind())

	out = reg.Execute(ctx, "update_project_status", map[string]any{"number": "PRJ-00001", "status": "FINISHED"})
	assert.Equal(t, tools.KindValidation, out.Kind())
	assert.Contains(t, out.Err(), "status must be one of")
}

func TestCreateProject_Dates(t *testing.T) {
	f := newFixture(t)
	reg := f.registry(t, principal(t, "u-admin", auth.RoleAdmin))
	ctx := context.Background()

	out := reg.Execute(ctx, "create_project", map[string]any{
		"name": "Office refit", "customer_name": "Acme", "start_date": "2026-05-01", "end_date": "2026-04-01",
	})
	assert.Equal(t, tools.KindValidation, out.Kind())

	p := payload(t, reg.Execute(ctx, "create_project", map[string]any{
		"name": "Office refit", "customer_name": "Acme", "budget": 250000, "start_date": "2026-04-01",
	}))
	assert.Equal(t, "PRJ-00001", p["project_number"])
	assert.Equal(t, store.ProjectPlanning, p["status"])
}

func TestFinancialSummary(t *testing.T) {
	f := newFixture(t)
	reg := f.registry(t, principal(t, "u-acc", auth.RoleAccountant))
	ctx := context.Background()

	payload(t, reg.Execute(ctx, "create_invoice", map[string]any{
		"customer_name": "Jane", "customer_email": "jane@example.com",
		"items": items([3]any{"Labour", 1, 1000}),
	}))
	payload(t, reg.Execute(ctx, "update_invoice_status", map[string]any{"number": "INV-00001", "status": "PAID"}))
	payload(t, reg.Execute(ctx, "record_expense", map[string]any{"category": "Materials", "amount": 200, "date": "2026-03-05"}))

	out := reg.Execute(ctx, "financial_summary", nil)
	require.True(t, out.OK(), out.Err())
	sum, ok := out.Payload().(*store.FinancialSummary)
	require.True(t, ok)
	assert.Equal(t, 1150.0, sum.Revenue)
	assert.Equal(t, 200.0, sum.Expenses)
	assert.Equal(t, 950.0, sum.Profit)
	assert.Contains(t, out.Message(), "2026-03-01 to 2026-03-10")

	out = reg.Execute(ctx, "record_expense", map[string]any{"category": "fuel", "amount": -5})
	assert.Equal(t, tools.KindValidation, out.Kind())
}

// Every tool, given garbage, still answers with one of the two outcome
// shapes.
func TestOutcomeShapeClosure(t *testing.T) {
	f := newFixture(t)
	reg := f.registry(t, principal(t, "u-admin", auth.RoleAdmin))
	ctx := context.Background()

	inputs := []map[string]any{
		nil,
		{},
		{"items": "not a list", "amount": "lots", "status": 7},
		{"number": map[string]any{"nested": true}, "limit": -1},
		{"customer_name": "", "email": "not-an-email", "due_date": "next tuesday"},
	}

	for _, name := range reg.Names() {
		for i, args := range inputs {
			t.Run(fmt.Sprintf("%s/%d", name, i), func(t *testing.T) {
				out := reg.Execute(ctx, name, args)
				raw, err := json.Marshal(out)
				require.NoError(t, err)

				var shape map[string]any
				require.NoError(t, json.Unmarshal(raw, &shape))
				if shape["success"] == true {
					assert.NotContains(t, shape, "error")
					assert.NotContains(t, shape, "kind")
				} else {
					assert.Equal(t, false, shape["success"])
					assert.NotEmpty(t, shape["error"])
					assert.NotEmpty(t, shape["kind"])
					assert.NotContains(t, shape, "payload")
				}
			})
		}
	}
}
