package docs

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/chalatsithapelo-ops/square15management-sub006/internal/store"
)

var invoiceCSVHeader = []string{"number", "kind", "customer", "email", "status", "due_date", "subtotal", "tax", "total", "paid_at"}

// WriteInvoicesCSV writes one row per invoice after a header row.
func WriteInvoicesCSV(w io.Writer, invoices []*store.Invoice) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(invoiceCSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, inv := range invoices {
		paid := ""
		if !inv.PaidAt.IsZero() {
			paid = inv.PaidAt.Format(store.DateLayout)
		}
		row := []string{
			inv.Number,
			inv.Kind,
			inv.CustomerName,
			inv.CustomerEmail,
			inv.Status,
			inv.DueDate.Format(store.DateLayout),
			strconv.FormatFloat(inv.Subtotal, 'f', 2, 64),
			strconv.FormatFloat(inv.Tax, 'f', 2, 64),
			strconv.FormatFloat(inv.Total, 'f', 2, 64),
			paid,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %s: %w", inv.Number, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
