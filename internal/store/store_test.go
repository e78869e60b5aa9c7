package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"
)

var alice = Actor{ID: "u-alice", Name: "Alice"}

func testStore(t *testing.T) *Store {
	t.Helper()
	return testStoreWithDriver(t, DriverMattn)
}

func testStoreWithDriver(t *testing.T, driver string) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := Open(context.Background(), driver, filepath.Join(t.TempDir(), "test.db"), logger)
	if err != nil {
		t.Fatalf("Open(%s) error: %v", driver, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testInvoice(number, kind string) *Invoice {
	return &Invoice{
		Number:        number,
		Kind:          kind,
		CustomerName:  "Jane Dlamini",
		CustomerEmail: "jane@example.com",
		Items:         []LineItem{{Description: "Geyser repair", Quantity: 1, UnitPrice: 1000}},
		Subtotal:      1000,
		Tax:           150,
		Total:         1150,
		DueDate:       time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestOpen_BothDrivers(t *testing.T) {
	for _, driver := range []string{DriverMattn, DriverModernc} {
		t.Run(driver, func(t *testing.T) {
			s := testStoreWithDriver(t, driver)
			ctx := context.Background()

			if err := s.CreateInvoice(ctx, alice, testInvoice("INV-00001", KindStandard)); err != nil {
				t.Fatalf("CreateInvoice() error: %v", err)
			}
			err := s.CreateInvoice(ctx, alice, testInvoice("INV-00001", KindStandard))
			if !IsUniqueViolation(err) {
				t.Errorf("duplicate CreateInvoice() error = %v, want unique violation", err)
			}
		})
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "postgres", filepath.Join(t.TempDir(), "x.db"), nil)
	if err == nil {
		t.Fatal("Open with unknown driver should error")
	}
}

func TestPing(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := Open(context.Background(), DriverModernc, filepath.Join(t.TempDir(), "ping.db"), logger)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error: %v", err)
	}
	s.Close()
	if err := s.Ping(context.Background()); err == nil {
		t.Error("Ping() after Close should error")
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	s := testStore(t)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate() error: %v", err)
	}
}

func TestCreateLead_Attribution(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	l := &Lead{CustomerName: "Jane", Email: "jane@example.com", Phone: "0821234567", ServiceType: "Plumbing"}
	if err := s.CreateLead(ctx, alice, l); err != nil {
		t.Fatalf("CreateLead() error: %v", err)
	}
	if l.ID == "" || l.Status != LeadNew {
		t.Fatalf("lead not populated: %+v", l)
	}

	got, err := s.Lead(ctx, l.ID)
	if err != nil {
		t.Fatalf("Lead() error: %v", err)
	}
	if got.CreatedBy != alice.ID {
		t.Errorf("CreatedBy = %q, want %q", got.CreatedBy, alice.ID)
	}

	trail, err := s.AuditTrail(ctx, "lead", l.ID)
	if err != nil {
		t.Fatalf("AuditTrail() error: %v", err)
	}
	if len(trail) != 1 || trail[0].ActorID != alice.ID || trail[0].Action != "create" {
		t.Errorf("audit trail = %+v, want one create by %s", trail, alice.ID)
	}
}

func TestUpdateLeadStatus(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	l := &Lead{CustomerName: "Jane", Email: "jane@example.com", Phone: "0821234567", ServiceType: "Plumbing"}
	if err := s.CreateLead(ctx, alice, l); err != nil {
		t.Fatal(err)
	}

	bob := Actor{ID: "u-bob", Name: "Bob"}
	got, err := s.UpdateLeadStatus(ctx, bob, l.ID, LeadQualified)
	if err != nil {
		t.Fatalf("UpdateLeadStatus() error: %v", err)
	}
	if got.Status != LeadQualified || got.UpdatedBy != bob.ID {
		t.Errorf("lead = %+v, want QUALIFIED by bob", got)
	}

	_, err = s.UpdateLeadStatus(ctx, bob, "missing", LeadLost)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateLeadStatus(missing) error = %v, want ErrNotFound", err)
	}
}

func TestListLeads_Filter(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for i := range 3 {
		l := &Lead{CustomerName: fmt.Sprintf("C%d", i), Email: "c@example.com", Phone: "1", ServiceType: "Paint"}
		if i == 2 {
			l.Status = LeadWon
		}
		if err := s.CreateLead(ctx, alice, l); err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.ListLeads(ctx, "", 0)
	if err != nil {
		t.Fatalf("ListLeads() error: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("ListLeads() = %d leads, want 3", len(all))
	}

	won, err := s.ListLeads(ctx, LeadWon, 10)
	if err != nil {
		t.Fatalf("ListLeads(WON) error: %v", err)
	}
	if len(won) != 1 || won[0].CustomerName != "C2" {
		t.Errorf("ListLeads(WON) = %+v, want only C2", won)
	}
}

func TestInvoices_SharedScope(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.CreateInvoice(ctx, alice, testInvoice("INV-00001", KindStandard)); err != nil {
		t.Fatalf("CreateInvoice(standard) error: %v", err)
	}

	pm := testInvoice("INV-00001", KindPropertyManager)
	pm.Property = "12 Oak Street"
	err := s.CreateInvoice(ctx, alice, pm)
	if !IsUniqueViolation(err) {
		t.Fatalf("CreateInvoice(pm, same number) error = %v, want unique violation", err)
	}

	pm.Number = "INV-00002"
	if err := s.CreateInvoice(ctx, alice, pm); err != nil {
		t.Fatalf("CreateInvoice(pm) error: %v", err)
	}

	n, err := s.CountInvoices(ctx)
	if err != nil {
		t.Fatalf("CountInvoices() error: %v", err)
	}
	if n != 2 {
		t.Errorf("CountInvoices() = %d, want 2", n)
	}

	got, err := s.InvoiceByNumber(ctx, "INV-00002")
	if err != nil {
		t.Fatalf("InvoiceByNumber() error: %v", err)
	}
	if got.Kind != KindPropertyManager || got.Property != "12 Oak Street" {
		t.Errorf("invoice = %+v, want property-manager invoice for 12 Oak Street", got)
	}
	if len(got.Items) != 1 || got.Items[0].Amount() != 1000 {
		t.Errorf("items = %+v, want one line of 1000", got.Items)
	}
}

func TestDeleteInvoice_NumberNeverReused(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.CreateInvoice(ctx, alice, testInvoice("INV-00001", KindStandard)); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteInvoice(ctx, alice, "INV-00001"); err != nil {
		t.Fatalf("DeleteInvoice() error: %v", err)
	}

	issued, err := s.NumberIssued(ctx, ScopeInvoice, "INV-00001")
	if err != nil {
		t.Fatal(err)
	}
	if !issued {
		t.Error("NumberIssued() = false after delete, want true")
	}

	err = s.CreateInvoice(ctx, alice, testInvoice("INV-00001", KindStandard))
	if !IsUniqueViolation(err) {
		t.Errorf("reusing deleted number error = %v, want unique violation", err)
	}
}

func TestUpdateInvoiceStatus_Paid(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })

	pm := testInvoice("INV-00007", KindPropertyManager)
	if err := s.CreateInvoice(ctx, alice, pm); err != nil {
		t.Fatal(err)
	}

	got, err := s.UpdateInvoiceStatus(ctx, alice, "INV-00007", InvoicePaid)
	if err != nil {
		t.Fatalf("UpdateInvoiceStatus() error: %v", err)
	}
	if got.Status != InvoicePaid || !got.PaidAt.Equal(now) {
		t.Errorf("invoice = %s paid %v, want PAID at %v", got.Status, got.PaidAt, now)
	}

	if _, err := s.UpdateInvoiceStatus(ctx, alice, "INV-99999", InvoicePaid); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateInvoiceStatus(missing) error = %v, want ErrNotFound", err)
	}
}

func TestDueInvoices(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	sent := testInvoice("INV-00001", KindStandard)
	sent.Status = InvoiceSent
	draft := testInvoice("INV-00002", KindStandard)
	later := testInvoice("INV-00003", KindPropertyManager)
	later.Status = InvoiceSent
	later.DueDate = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	for _, inv := range []*Invoice{sent, draft, later} {
		if err := s.CreateInvoice(ctx, alice, inv); err != nil {
			t.Fatal(err)
		}
	}

	due, err := s.DueInvoices(ctx, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("DueInvoices() error: %v", err)
	}
	if len(due) != 1 || due[0].Number != "INV-00001" {
		t.Errorf("DueInvoices() = %+v, want only INV-00001", due)
	}
}

func TestOrders_Lifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	o := &Order{Number: "ORD-00001", CustomerName: "Jane", CustomerEmail: "jane@example.com",
		Phone: "0821234567", Address: "1 Main Rd", ServiceType: "Electrical", TotalCost: 850}
	if err := s.CreateOrder(ctx, alice, o); err != nil {
		t.Fatalf("CreateOrder() error: %v", err)
	}

	got, err := s.UpdateOrderStatus(ctx, alice, "ORD-00001", OrderCompleted)
	if err != nil {
		t.Fatalf("UpdateOrderStatus() error: %v", err)
	}
	if got.Status != OrderCompleted || got.CompletedAt.IsZero() {
		t.Errorf("order = %+v, want COMPLETED with completed_at", got)
	}

	n, err := s.CountOrders(ctx)
	if err != nil || n != 1 {
		t.Errorf("CountOrders() = %d, %v; want 1", n, err)
	}
}

func TestProjects_Lifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	p := &Project{Number: "PRJ-00001", Name: "Kitchen refit", CustomerName: "Jane",
		CustomerEmail: "jane@example.com", Budget: 50000}
	if err := s.CreateProject(ctx, alice, p); err != nil {
		t.Fatalf("CreateProject() error: %v", err)
	}
	if p.Status != ProjectPlanning {
		t.Errorf("Status = %q, want PLANNING", p.Status)
	}

	got, err := s.UpdateProjectStatus(ctx, alice, "PRJ-00001", ProjectOnHold)
	if err != nil {
		t.Fatalf("UpdateProjectStatus() error: %v", err)
	}
	if got.Status != ProjectOnHold {
		t.Errorf("Status = %q, want ON_HOLD", got.Status)
	}

	list, err := s.ListProjects(ctx, ProjectOnHold, 5)
	if err != nil || len(list) != 1 {
		t.Errorf("ListProjects(ON_HOLD) = %d, %v; want 1", len(list), err)
	}
}

func TestSummary(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })

	paid := testInvoice("INV-00001", KindStandard)
	overdue := testInvoice("INV-00002", KindPropertyManager)
	overdue.Status = InvoiceOverdue
	overdue.Total = 500
	for _, inv := range []*Invoice{paid, overdue} {
		if err := s.CreateInvoice(ctx, alice, inv); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.UpdateInvoiceStatus(ctx, alice, "INV-00001", InvoicePaid); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateExpense(ctx, alice, &Expense{Category: "fuel", Description: "bakkie", Amount: 300}); err != nil {
		t.Fatal(err)
	}
	q := &Quote{Number: "QUO-00001", CustomerName: "Jane", CustomerEmail: "jane@example.com", Total: 2000,
		ValidUntil: now.AddDate(0, 0, 30)}
	if err := s.CreateQuote(ctx, alice, q); err != nil {
		t.Fatal(err)
	}

	sum, err := s.Summary(ctx, now.AddDate(0, -1, 0), now.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("Summary() error: %v", err)
	}
	if sum.Revenue != 1150 || sum.PaidInvoices != 1 {
		t.Errorf("revenue = %.2f (%d), want 1150 (1)", sum.Revenue, sum.PaidInvoices)
	}
	if sum.Expenses != 300 || sum.Profit != 850 {
		t.Errorf("expenses = %.2f profit = %.2f, want 300 and 850", sum.Expenses, sum.Profit)
	}
	if sum.Overdue != 500 || sum.OverdueInvoices != 1 || sum.Outstanding != 500 {
		t.Errorf("overdue = %.2f (%d) outstanding = %.2f, want 500 (1) 500", sum.Overdue, sum.OverdueInvoices, sum.Outstanding)
	}
	if sum.QuotePipeline != 2000 || sum.OpenQuotes != 1 {
		t.Errorf("pipeline = %.2f (%d), want 2000 (1)", sum.QuotePipeline, sum.OpenQuotes)
	}
}

func TestTraces(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for round := 1; round <= 2; round++ {
		err := s.RecordTrace(ctx, Trace{
			RequestID: "r_0123abcd",
			Round:     round,
			State:     "EXECUTING",
			Model:     "qwen3:8b",
			ToolCalls: []string{"create_lead", "list_leads"},
			Duration:  1500 * time.Millisecond,
		})
		if err != nil {
			t.Fatalf("RecordTrace() error: %v", err)
		}
	}

	got, err := s.Traces(ctx, "r_0123abcd")
	if err != nil {
		t.Fatalf("Traces() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Traces() = %d rows, want 2", len(got))
	}
	if got[0].Round != 1 || len(got[0].ToolCalls) != 2 || got[0].Duration != 1500*time.Millisecond {
		t.Errorf("first trace = %+v", got[0])
	}
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("disk I/O error"), false},
		{"message fallback", fmt.Errorf("insert: %w", errors.New("UNIQUE constraint failed: invoices.number")), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUniqueViolation(tt.err); got != tt.want {
				t.Errorf("IsUniqueViolation(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
