package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Order statuses.
const (
	OrderPending    = "PENDING"
	OrderAssigned   = "ASSIGNED"
	OrderInProgress = "IN_PROGRESS"
	OrderCompleted  = "COMPLETED"
	OrderCancelled  = "CANCELLED"
)

// OrderStatuses lists every valid order status.
var OrderStatuses = []string{OrderPending, OrderAssigned, OrderInProgress, OrderCompleted, OrderCancelled}

// Order is a unit of field work for a customer.
type Order struct {
	ID            string    `json:"id"`
	Number        string    `json:"number"`
	CustomerName  string    `json:"customer_name"`
	CustomerEmail string    `json:"customer_email"`
	Phone         string    `json:"phone"`
	Address       string    `json:"address"`
	ServiceType   string    `json:"service_type"`
	Description   string    `json:"description,omitempty"`
	TotalCost     float64   `json:"total_cost"`
	Status        string    `json:"status"`
	CompletedAt   time.Time `json:"completed_at,omitzero"`
	CreatedBy     string    `json:"created_by"`
	UpdatedBy     string    `json:"updated_by"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

const orderColumns = `id, number, customer_name, customer_email, phone, address, service_type, description,
	total_cost, status, completed_at, created_by, updated_by, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (*Order, error) {
	var o Order
	var completed, created, updated string
	err := row.Scan(&o.ID, &o.Number, &o.CustomerName, &o.CustomerEmail, &o.Phone, &o.Address, &o.ServiceType,
		&o.Description, &o.TotalCost, &o.Status, &completed, &o.CreatedBy, &o.UpdatedBy, &created, &updated)
	if err != nil {
		return nil, err
	}
	o.CompletedAt = parseTime(completed)
	o.CreatedAt = parseTime(created)
	o.UpdatedAt = parseTime(updated)
	return &o, nil
}

// CountOrders returns the number of stored orders.
func (s *Store) CountOrders(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM orders`)
}

// CreateOrder inserts o under o.Number.
func (s *Store) CreateOrder(ctx context.Context, actor Actor, o *Order) error {
	id, err := newID()
	if err != nil {
		return err
	}
	now := s.timestamp()
	if o.Status == "" {
		o.Status = OrderPending
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.reserveNumber(ctx, tx, ScopeOrder, o.Number, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO orders (`+orderColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, o.Number, o.CustomerName, o.CustomerEmail, o.Phone, o.Address, o.ServiceType, o.Description,
			o.TotalCost, o.Status, "", actor.ID, actor.ID, now, now,
		)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		return s.audit(ctx, tx, actor, "create", "order", id, o.Number)
	})
	if err != nil {
		return err
	}

	o.ID = id
	o.CreatedBy, o.UpdatedBy = actor.ID, actor.ID
	o.CreatedAt, o.UpdatedAt = parseTime(now), parseTime(now)
	return nil
}

// OrderByNumber returns the order with the given reference number.
func (s *Store) OrderByNumber(ctx context.Context, number string) (*Order, error) {
	o, err := scanOrder(s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE number = ?`, number))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", number, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	return o, nil
}

// ListOrders returns the newest orders, optionally filtered by status.
func (s *Store) ListOrders(ctx context.Context, status string, limit int) ([]*Order, error) {
	where, args := statusFilter(status)
	args = append(args, clampLimit(limit))
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders`+where+` ORDER BY created_at DESC, id DESC LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var out []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// UpdateOrderStatus sets the status of the order with the given number.
// Moving to COMPLETED stamps completed_at.
func (s *Store) UpdateOrderStatus(ctx context.Context, actor Actor, number, status string) (*Order, error) {
	now := s.timestamp()
	completedAt := ""
	if status == OrderCompleted {
		completedAt = now
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var id string
		err := tx.QueryRowContext(ctx,
			`UPDATE orders SET status = ?, completed_at = ?, updated_by = ?, updated_at = ?
			 WHERE number = ? RETURNING id`,
			status, completedAt, actor.ID, now, number,
		).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("order %s: %w", number, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		return s.audit(ctx, tx, actor, "status", "order", id, status)
	})
	if err != nil {
		return nil, err
	}
	return s.OrderByNumber(ctx, number)
}
