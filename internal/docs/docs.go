// Package docs renders business documents: invoice and quote bodies in
// markdown and HTML, payment QR codes, contact cards and CSV exports.
package docs

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/chalatsithapelo-ops/square15management-sub006/internal/config"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/store"
)

var printer = message.NewPrinter(language.English)

// Money formats amount with thousands separators, e.g. "ZAR 1,234.50".
func Money(currency string, amount float64) string {
	return printer.Sprintf("%s %.2f", currency, amount)
}

// HTML renders markdown into a self-contained HTML document.
func HTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return `<!DOCTYPE html>
<html><head><meta charset="utf-8"></head>
<body style="font-family: sans-serif; font-size: 14px; line-height: 1.5;">
` + buf.String() + `</body></html>`, nil
}

func itemsTable(b *strings.Builder, currency string, items []store.LineItem) {
	b.WriteString("| Description | Qty | Unit price | Amount |\n")
	b.WriteString("|---|---:|---:|---:|\n")
	for _, li := range items {
		fmt.Fprintf(b, "| %s | %g | %s | %s |\n",
			escapeCell(li.Description), li.Quantity, Money(currency, li.UnitPrice), Money(currency, li.Amount()))
	}
	b.WriteString("\n")
}

func totals(b *strings.Builder, currency string, subtotal, tax, total float64) {
	fmt.Fprintf(b, "Subtotal: %s  \n", Money(currency, subtotal))
	fmt.Fprintf(b, "Tax: %s  \n", Money(currency, tax))
	fmt.Fprintf(b, "**Total: %s**\n\n", Money(currency, total))
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// InvoiceMarkdown renders inv as a markdown document.
func InvoiceMarkdown(biz config.BusinessConfig, inv *store.Invoice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", biz.Name)
	fmt.Fprintf(&b, "## Invoice %s\n\n", inv.Number)
	fmt.Fprintf(&b, "Billed to: **%s** (%s)  \n", inv.CustomerName, inv.CustomerEmail)
	if inv.Property != "" {
		fmt.Fprintf(&b, "Property: %s  \n", inv.Property)
	}
	fmt.Fprintf(&b, "Due: %s\n\n", inv.DueDate.Format(store.DateLayout))
	itemsTable(&b, biz.Currency, inv.Items)
	totals(&b, biz.Currency, inv.Subtotal, inv.Tax, inv.Total)
	if biz.PaymentDetails != "" {
		fmt.Fprintf(&b, "### Payment\n\n%s\n\nUse **%s** as the payment reference.\n", biz.PaymentDetails, inv.Number)
	} else {
		fmt.Fprintf(&b, "Use **%s** as the payment reference.\n", inv.Number)
	}
	return b.String()
}

// QuoteMarkdown renders q as a markdown document.
func QuoteMarkdown(biz config.BusinessConfig, q *store.Quote) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", biz.Name)
	fmt.Fprintf(&b, "## Quotation %s\n\n", q.Number)
	fmt.Fprintf(&b, "Prepared for: **%s** (%s)  \n", q.CustomerName, q.CustomerEmail)
	fmt.Fprintf(&b, "Valid until: %s\n\n", q.ValidUntil.Format(store.DateLayout))
	itemsTable(&b, biz.Currency, q.Items)
	totals(&b, biz.Currency, q.Subtotal, q.Tax, q.Total)
	return b.String()
}
