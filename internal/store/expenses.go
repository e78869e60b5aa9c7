package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Expense is money spent running the business.
type Expense struct {
	ID          string    `json:"id"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	Amount      float64   `json:"amount"`
	IncurredOn  time.Time `json:"incurred_on"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreateExpense inserts e.
func (s *Store) CreateExpense(ctx context.Context, actor Actor, e *Expense) error {
	id, err := newID()
	if err != nil {
		return err
	}
	now := s.timestamp()
	if e.IncurredOn.IsZero() {
		e.IncurredOn = s.now()
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO expenses (id, category, description, amount, incurred_on, created_by, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, e.Category, e.Description, e.Amount, formatDate(e.IncurredOn), actor.ID, now,
		)
		if err != nil {
			return fmt.Errorf("insert expense: %w", err)
		}
		return s.audit(ctx, tx, actor, "create", "expense", id, fmt.Sprintf("%s %.2f", e.Category, e.Amount))
	})
	if err != nil {
		return err
	}

	e.ID = id
	e.CreatedBy = actor.ID
	e.CreatedAt = parseTime(now)
	return nil
}
