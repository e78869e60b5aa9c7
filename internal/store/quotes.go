package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Quote statuses.
const (
	QuoteDraft    = "DRAFT"
	QuoteSent     = "SENT"
	QuoteAccepted = "ACCEPTED"
	QuoteRejected = "REJECTED"
)

// Reference number scopes. Invoices and property-manager invoices share
// one scope.
const (
	ScopeQuote   = "quote"
	ScopeInvoice = "invoice"
	ScopeOrder   = "order"
	ScopeProject = "project"
)

// Quote is a priced proposal sent to a customer.
type Quote struct {
	ID            string     `json:"id"`
	Number        string     `json:"number"`
	LeadID        string     `json:"lead_id,omitempty"`
	CustomerName  string     `json:"customer_name"`
	CustomerEmail string     `json:"customer_email"`
	Items         []LineItem `json:"items"`
	Subtotal      float64    `json:"subtotal"`
	Tax           float64    `json:"tax"`
	Total         float64    `json:"total"`
	Status        string     `json:"status"`
	ValidUntil    time.Time  `json:"valid_until"`
	CreatedBy     string     `json:"created_by"`
	CreatedAt     time.Time  `json:"created_at"`
}

const quoteColumns = `id, number, lead_id, customer_name, customer_email, items, subtotal, tax, total,
	status, valid_until, created_by, created_at`

// CountQuotes returns the number of stored quotes.
func (s *Store) CountQuotes(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM quotes`)
}

// CreateQuote inserts q under q.Number. A number already issued in the
// quote scope fails with a unique violation and nothing is written.
func (s *Store) CreateQuote(ctx context.Context, actor Actor, q *Quote) error {
	id, err := newID()
	if err != nil {
		return err
	}
	items, err := encodeItems(q.Items)
	if err != nil {
		return err
	}
	now := s.timestamp()
	if q.Status == "" {
		q.Status = QuoteDraft
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.reserveNumber(ctx, tx, ScopeQuote, q.Number, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO quotes (`+quoteColumns+`, updated_by, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, q.Number, q.LeadID, q.CustomerName, q.CustomerEmail, items, q.Subtotal, q.Tax, q.Total,
			q.Status, formatDate(q.ValidUntil), actor.ID, now, actor.ID, now,
		)
		if err != nil {
			return fmt.Errorf("insert quote: %w", err)
		}
		return s.audit(ctx, tx, actor, "create", "quote", id, q.Number)
	})
	if err != nil {
		return err
	}
	q.ID = id
	q.CreatedBy = actor.ID
	q.CreatedAt = parseTime(now)
	return nil
}

// QuoteByNumber returns the quote with the given reference number.
func (s *Store) QuoteByNumber(ctx context.Context, number string) (*Quote, error) {
	var q Quote
	var items, validUntil, created string
	err := s.db.QueryRowContext(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE number = ?`, number).Scan(
		&q.ID, &q.Number, &q.LeadID, &q.CustomerName, &q.CustomerEmail, &items, &q.Subtotal, &q.Tax, &q.Total,
		&q.Status, &validUntil, &q.CreatedBy, &created,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("quote %s: %w", number, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query quote: %w", err)
	}
	if q.Items, err = decodeItems(items); err != nil {
		return nil, err
	}
	q.ValidUntil = parseDate(validUntil)
	q.CreatedAt = parseTime(created)
	return &q, nil
}

// OpenQuoteValue sums totals of quotes still awaiting a decision.
func (s *Store) OpenQuoteValue(ctx context.Context) (float64, int, error) {
	var total float64
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(total), 0), COUNT(*) FROM quotes WHERE status IN (?, ?)`,
		QuoteDraft, QuoteSent,
	).Scan(&total, &n)
	if err != nil {
		return 0, 0, fmt.Errorf("sum open quotes: %w", err)
	}
	return total, n, nil
}
