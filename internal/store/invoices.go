package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Invoice statuses.
const (
	InvoiceDraft     = "DRAFT"
	InvoiceSent      = "SENT"
	InvoicePaid      = "PAID"
	InvoiceOverdue   = "OVERDUE"
	InvoiceCancelled = "CANCELLED"
)

// InvoiceStatuses lists every valid invoice status.
var InvoiceStatuses = []string{InvoiceDraft, InvoiceSent, InvoicePaid, InvoiceOverdue, InvoiceCancelled}

// Invoice kinds. Property-manager invoices live in their own table but
// share the invoice numbering scope.
const (
	KindStandard        = "standard"
	KindPropertyManager = "property_manager"
)

// Invoice is a bill issued to a customer or a property manager.
type Invoice struct {
	ID            string     `json:"id"`
	Number        string     `json:"number"`
	Kind          string     `json:"kind"`
	CustomerName  string     `json:"customer_name"`
	CustomerEmail string     `json:"customer_email"`
	Property      string     `json:"property,omitempty"`
	Items         []LineItem `json:"items"`
	Subtotal      float64    `json:"subtotal"`
	Tax           float64    `json:"tax"`
	Total         float64    `json:"total"`
	Status        string     `json:"status"`
	DueDate       time.Time  `json:"due_date"`
	PaidAt        time.Time  `json:"paid_at,omitzero"`
	OrderID       string     `json:"order_id,omitempty"`
	ProjectID     string     `json:"project_id,omitempty"`
	CreatedBy     string     `json:"created_by"`
	UpdatedBy     string     `json:"updated_by"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

const invoiceViewColumns = `id, number, kind, customer_name, customer_email, property, items, subtotal, tax,
	total, status, due_date, paid_at, order_id, project_id, created_by, updated_by, created_at, updated_at`

func scanInvoice(row interface{ Scan(...any) error }) (*Invoice, error) {
	var inv Invoice
	var items, due, paid, created, updated string
	err := row.Scan(&inv.ID, &inv.Number, &inv.Kind, &inv.CustomerName, &inv.CustomerEmail, &inv.Property,
		&items, &inv.Subtotal, &inv.Tax, &inv.Total, &inv.Status, &due, &paid, &inv.OrderID, &inv.ProjectID,
		&inv.CreatedBy, &inv.UpdatedBy, &created, &updated)
	if err != nil {
		return nil, err
	}
	if inv.Items, err = decodeItems(items); err != nil {
		return nil, err
	}
	inv.DueDate = parseDate(due)
	inv.PaidAt = parseTime(paid)
	inv.CreatedAt = parseTime(created)
	inv.UpdatedAt = parseTime(updated)
	return &inv, nil
}

// CountInvoices returns the combined number of standard and
// property-manager invoices.
func (s *Store) CountInvoices(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT (SELECT COUNT(*) FROM invoices) + (SELECT COUNT(*) FROM pm_invoices)`)
}

// CreateInvoice inserts inv under inv.Number into the table for
// inv.Kind. A number already issued in the invoice scope fails with a
// unique violation and nothing is written.
func (s *Store) CreateInvoice(ctx context.Context, actor Actor, inv *Invoice) error {
	id, err := newID()
	if err != nil {
		return err
	}
	items, err := encodeItems(inv.Items)
	if err != nil {
		return err
	}
	now := s.timestamp()
	if inv.Kind == "" {
		inv.Kind = KindStandard
	}
	if inv.Status == "" {
		inv.Status = InvoiceDraft
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.reserveNumber(ctx, tx, ScopeInvoice, inv.Number, id); err != nil {
			return err
		}

		var err error
		switch inv.Kind {
		case KindStandard:
			_, err = tx.ExecContext(ctx,
				`INSERT INTO invoices (id, number, customer_name, customer_email, items, subtotal, tax, total,
					status, due_date, order_id, project_id, created_by, updated_by, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				id, inv.Number, inv.CustomerName, inv.CustomerEmail, items, inv.Subtotal, inv.Tax, inv.Total,
				inv.Status, formatDate(inv.DueDate), inv.OrderID, inv.ProjectID, actor.ID, actor.ID, now, now,
			)
		case KindPropertyManager:
			_, err = tx.ExecContext(ctx,
				`INSERT INTO pm_invoices (id, number, property_manager, email, property, items, subtotal, tax,
					total, status, due_date, created_by, updated_by, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				id, inv.Number, inv.CustomerName, inv.CustomerEmail, inv.Property, items, inv.Subtotal, inv.Tax,
				inv.Total, inv.Status, formatDate(inv.DueDate), actor.ID, actor.ID, now, now,
			)
		default:
			return fmt.Errorf("unknown invoice kind %q", inv.Kind)
		}
		if err != nil {
			return fmt.Errorf("insert invoice: %w", err)
		}
		return s.audit(ctx, tx, actor, "create", "invoice", id, inv.Number)
	})
	if err != nil {
		return err
	}

	inv.ID = id
	inv.CreatedBy, inv.UpdatedBy = actor.ID, actor.ID
	inv.CreatedAt, inv.UpdatedAt = parseTime(now), parseTime(now)
	return nil
}

// InvoiceByNumber returns the invoice of either kind with the given
// reference number.
func (s *Store) InvoiceByNumber(ctx context.Context, number string) (*Invoice, error) {
	inv, err := scanInvoice(s.db.QueryRowContext(ctx,
		`SELECT `+invoiceViewColumns+` FROM all_invoices WHERE number = ?`, number))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("invoice %s: %w", number, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query invoice: %w", err)
	}
	return inv, nil
}

// ListInvoices returns the newest invoices of both kinds, optionally
// filtered by status.
func (s *Store) ListInvoices(ctx context.Context, status string, limit int) ([]*Invoice, error) {
	where, args := statusFilter(status)
	args = append(args, clampLimit(limit))
	return s.queryInvoices(ctx,
		`SELECT `+invoiceViewColumns+` FROM all_invoices`+where+` ORDER BY created_at DESC, id DESC LIMIT ?`, args...)
}

// DueInvoices returns SENT invoices whose due date is before asOf.
func (s *Store) DueInvoices(ctx context.Context, asOf time.Time) ([]*Invoice, error) {
	return s.queryInvoices(ctx,
		`SELECT `+invoiceViewColumns+` FROM all_invoices WHERE status = ? AND due_date < ? ORDER BY due_date`,
		InvoiceSent, formatDate(asOf))
}

func (s *Store) queryInvoices(ctx context.Context, query string, args ...any) ([]*Invoice, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query invoices: %w", err)
	}
	defer rows.Close()

	var out []*Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// UpdateInvoiceStatus sets the status of the invoice with the given
// number. Moving to PAID stamps paid_at.
func (s *Store) UpdateInvoiceStatus(ctx context.Context, actor Actor, number, status string) (*Invoice, error) {
	now := s.timestamp()
	paidAt := ""
	if status == InvoicePaid {
		paidAt = now
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var id string
		for _, table := range []string{"invoices", "pm_invoices"} {
			err := tx.QueryRowContext(ctx,
				`UPDATE `+table+` SET status = ?, paid_at = ?, updated_by = ?, updated_at = ?
				 WHERE number = ? RETURNING id`,
				status, paidAt, actor.ID, now, number,
			).Scan(&id)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return fmt.Errorf("update invoice: %w", err)
			}
			return s.audit(ctx, tx, actor, "status", "invoice", id, status)
		}
		return fmt.Errorf("invoice %s: %w", number, ErrNotFound)
	})
	if err != nil {
		return nil, err
	}
	return s.InvoiceByNumber(ctx, number)
}

// DeleteInvoice removes a DRAFT invoice. Its number stays reserved.
func (s *Store) DeleteInvoice(ctx context.Context, actor Actor, number string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"invoices", "pm_invoices"} {
			var id string
			err := tx.QueryRowContext(ctx,
				`DELETE FROM `+table+` WHERE number = ? AND status = ? RETURNING id`, number, InvoiceDraft,
			).Scan(&id)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return fmt.Errorf("delete invoice: %w", err)
			}
			return s.audit(ctx, tx, actor, "delete", "invoice", id, number)
		}
		return fmt.Errorf("draft invoice %s: %w", number, ErrNotFound)
	})
}
