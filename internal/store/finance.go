package store

import (
	"context"
	"fmt"
	"time"
)

// FinancialSummary aggregates money movement over a period. Outstanding
// and pipeline figures are point-in-time and ignore the period.
type FinancialSummary struct {
	From            time.Time `json:"from"`
	To              time.Time `json:"to"`
	Revenue         float64   `json:"revenue"`
	PaidInvoices    int       `json:"paid_invoices"`
	Expenses        float64   `json:"expenses"`
	Profit          float64   `json:"profit"`
	Outstanding     float64   `json:"outstanding"`
	Overdue         float64   `json:"overdue"`
	OverdueInvoices int       `json:"overdue_invoices"`
	QuotePipeline   float64   `json:"quote_pipeline"`
	OpenQuotes      int       `json:"open_quotes"`
	OpenOrders      int       `json:"open_orders"`
	ActiveProjects  int       `json:"active_projects"`
}

// Summary computes the financial summary for [from, to).
func (s *Store) Summary(ctx context.Context, from, to time.Time) (*FinancialSummary, error) {
	sum := &FinancialSummary{From: from, To: to}
	fromTS, toTS := from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339)

	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(total), 0), COUNT(*) FROM all_invoices
		 WHERE status = ? AND paid_at >= ? AND paid_at < ?`,
		InvoicePaid, fromTS, toTS,
	).Scan(&sum.Revenue, &sum.PaidInvoices)
	if err != nil {
		return nil, fmt.Errorf("sum revenue: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM expenses WHERE incurred_on >= ? AND incurred_on < ?`,
		formatDate(from), formatDate(to),
	).Scan(&sum.Expenses)
	if err != nil {
		return nil, fmt.Errorf("sum expenses: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(total), 0) FROM all_invoices WHERE status IN (?, ?)`,
		InvoiceSent, InvoiceOverdue,
	).Scan(&sum.Outstanding)
	if err != nil {
		return nil, fmt.Errorf("sum outstanding: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(total), 0), COUNT(*) FROM all_invoices WHERE status = ?`,
		InvoiceOverdue,
	).Scan(&sum.Overdue, &sum.OverdueInvoices)
	if err != nil {
		return nil, fmt.Errorf("sum overdue: %w", err)
	}

	if sum.QuotePipeline, sum.OpenQuotes, err = s.OpenQuoteValue(ctx); err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE status NOT IN (?, ?)`, OrderCompleted, OrderCancelled,
	).Scan(&sum.OpenOrders)
	if err != nil {
		return nil, fmt.Errorf("count open orders: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM projects WHERE status IN (?, ?)`, ProjectPlanning, ProjectInProgress,
	).Scan(&sum.ActiveProjects)
	if err != nil {
		return nil, fmt.Errorf("count active projects: %w", err)
	}

	sum.Profit = sum.Revenue - sum.Expenses
	return sum, nil
}
