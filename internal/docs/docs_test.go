package docs

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/chalatsithapelo-ops/square15management-sub006/internal/config"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/store"
)

var biz = config.BusinessConfig{
	Name:           "Square 15",
	Currency:       "ZAR",
	TaxRate:        0.15,
	PaymentDetails: "FNB 62000000000",
}

func sampleInvoice() *store.Invoice {
	return &store.Invoice{
		Number:        "INV-00042",
		Kind:          store.KindPropertyManager,
		CustomerName:  "Oak Property Group",
		CustomerEmail: "accounts@oak.example.com",
		Property:      "12 Oak Street",
		Items: []store.LineItem{
			{Description: "Roof | gutter clean", Quantity: 2, UnitPrice: 650},
		},
		Subtotal: 1300,
		Tax:      195,
		Total:    1495,
		Status:   store.InvoiceSent,
		DueDate:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestMoney(t *testing.T) {
	tests := []struct {
		amount float64
		want   string
	}{
		{0, "ZAR 0.00"},
		{1234.5, "ZAR 1,234.50"},
		{1000000, "ZAR 1,000,000.00"},
	}
	for _, tt := range tests {
		if got := Money("ZAR", tt.amount); got != tt.want {
			t.Errorf("Money(%v) = %q, want %q", tt.amount, got, tt.want)
		}
	}
}

func TestInvoiceMarkdown(t *testing.T) {
	md := InvoiceMarkdown(biz, sampleInvoice())
	for _, want := range []string{
		"## Invoice INV-00042",
		"Property: 12 Oak Street",
		"Due: 2026-03-01",
		`Roof \| gutter clean`,
		"**Total: ZAR 1,495.00**",
		"FNB 62000000000",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("InvoiceMarkdown() missing %q\n%s", want, md)
		}
	}
}

func TestQuoteMarkdown(t *testing.T) {
	q := &store.Quote{
		Number:        "QUO-00003",
		CustomerName:  "Jane",
		CustomerEmail: "jane@example.com",
		Items:         []store.LineItem{{Description: "Paint", Quantity: 1, UnitPrice: 100}},
		Subtotal:      100, Tax: 15, Total: 115,
		ValidUntil: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	}
	md := QuoteMarkdown(biz, q)
	if !strings.Contains(md, "## Quotation QUO-00003") || !strings.Contains(md, "Valid until: 2026-04-01") {
		t.Errorf("QuoteMarkdown() = %s", md)
	}
}

func TestHTML(t *testing.T) {
	html, err := HTML("# Hello\n\n**bold**")
	if err != nil {
		t.Fatalf("HTML() error: %v", err)
	}
	if !strings.Contains(html, "<h1>Hello</h1>") || !strings.Contains(html, "<strong>bold</strong>") {
		t.Errorf("HTML() = %s", html)
	}
}

func TestPaymentQR(t *testing.T) {
	png, err := PaymentQR(biz, sampleInvoice())
	if err != nil {
		t.Fatalf("PaymentQR() error: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Errorf("PaymentQR() did not return a PNG")
	}
	if got := PaymentPayload(biz, sampleInvoice()); got != "PAY:Square 15;REF:INV-00042;AMOUNT:1495.00;CUR:ZAR" {
		t.Errorf("PaymentPayload() = %q", got)
	}
}

func TestLeadVCard(t *testing.T) {
	card, err := LeadVCard(&store.Lead{
		CustomerName: "Jane Dlamini",
		Email:        "jane@example.com",
		Phone:        "0821234567",
		ServiceType:  "Plumbing",
		Address:      "1 Main Rd",
	})
	if err != nil {
		t.Fatalf("LeadVCard() error: %v", err)
	}
	s := string(card)
	for _, want := range []string{"BEGIN:VCARD", "VERSION:4.0", "FN:Jane Dlamini", "jane@example.com", "0821234567"} {
		if !strings.Contains(s, want) {
			t.Errorf("vcard missing %q\n%s", want, s)
		}
	}
}

func TestWriteInvoicesCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteInvoicesCSV(&buf, []*store.Invoice{sampleInvoice()}); err != nil {
		t.Fatalf("WriteInvoicesCSV() error: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[1][0] != "INV-00042" || rows[1][8] != "1495.00" || rows[1][9] != "" {
		t.Errorf("row = %v", rows[1])
	}
}
