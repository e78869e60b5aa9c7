package ops

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chalatsithapelo-ops/square15management-sub006/internal/auth"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/docs"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/store"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/tools"
)

type recordExpenseParams struct {
	Category    string  `json:"category"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Date        string  `json:"date"`
}

func (p recordExpenseParams) Validate() error {
	return tools.Check(
		tools.Required("category", p.Category),
		tools.Positive("amount", p.Amount),
		tools.Date("date", p.Date),
	)
}

func (o *operations) recordExpense() *tools.Tool {
	return tools.New("record_expense",
		"Record money spent running the business, such as materials, fuel or subcontractors.",
		object([]string{"category", "amount"}, map[string]any{
			"category":    str("Expense category, e.g. materials, fuel, wages"),
			"description": str("What was bought"),
			"amount":      num("Amount spent, greater than zero"),
			"date":        str("Date incurred YYYY-MM-DD (default today)"),
		}),
		guard(o, auth.ExpensesWrite, func(ctx context.Context, p recordExpenseParams) tools.Outcome {
			e := &store.Expense{
				Category:    strings.ToLower(strings.TrimSpace(p.Category)),
				Description: strings.TrimSpace(p.Description),
				Amount:      round2(p.Amount),
				IncurredOn:  parseDay(p.Date),
			}
			if e.IncurredOn.IsZero() {
				e.IncurredOn = o.Now()
			}
			if err := o.Store.CreateExpense(ctx, o.actor, e); err != nil {
				return o.storeFailure(ctx, "record_expense", err)
			}
			return tools.Success(map[string]any{"expense_id": e.ID, "amount": e.Amount},
				fmt.Sprintf("Recorded %s %s expense.", docs.Money(o.Business.Currency, e.Amount), e.Category))
		}),
	)
}

type financialSummaryParams struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (p financialSummaryParams) Validate() error {
	if err := tools.Check(tools.Date("from", p.From), tools.Date("to", p.To)); err != nil {
		return err
	}
	if p.From != "" && p.To != "" && parseDay(p.To).Before(parseDay(p.From)) {
		return errors.New("to is before from")
	}
	return nil
}

func (o *operations) financialSummary() *tools.Tool {
	return tools.New("financial_summary",
		"Summarize revenue, expenses, profit, outstanding and overdue invoices, and the open quote pipeline for a period. Dates are inclusive; the default period is the current month to date.",
		object(nil, map[string]any{
			"from": str("First day YYYY-MM-DD (default: first of this month)"),
			"to":   str("Last day YYYY-MM-DD (default: today)"),
		}),
		guard(o, auth.FinanceRead, func(ctx context.Context, p financialSummaryParams) tools.Outcome {
			now := o.Now().UTC()
			from := parseDay(p.From)
			if from.IsZero() {
				from = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
			}
			to := parseDay(p.To)
			if to.IsZero() {
				to = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
			}

			sum, err := o.Store.Summary(ctx, from, to.AddDate(0, 0, 1))
			if err != nil {
				return o.storeFailure(ctx, "financial_summary", err)
			}
			money := func(v float64) string { return docs.Money(o.Business.Currency, v) }
			return tools.Success(sum, fmt.Sprintf(
				"%s to %s: revenue %s, expenses %s, profit %s. Outstanding %s (%s overdue across %d invoice(s)). %d open quote(s) worth %s.",
				from.Format(store.DateLayout), to.Format(store.DateLayout),
				money(sum.Revenue), money(sum.Expenses), money(sum.Profit),
				money(sum.Outstanding), money(sum.Overdue), sum.OverdueInvoices,
				sum.OpenQuotes, money(sum.QuotePipeline)))
		}),
	)
}
