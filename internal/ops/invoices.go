package ops

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chalatsithapelo-ops/square15management-sub006/internal/auth"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/docs"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/notify"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/store"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/tools"
)

type createInvoiceParams struct {
	CustomerName  string     `json:"customer_name"`
	CustomerEmail string     `json:"customer_email"`
	Items         []lineItem `json:"items"`
	DueDate       string     `json:"due_date"`
	OrderNumber   string     `json:"order_number"`
	ProjectNumber string     `json:"project_number"`
}

func (p createInvoiceParams) Validate() error {
	return tools.Check(
		tools.Required("customer_name", p.CustomerName),
		tools.Email("customer_email", p.CustomerEmail),
		validateItems(p.Items),
		tools.Date("due_date", p.DueDate),
	)
}

func (o *operations) createInvoice() *tools.Tool {
	return tools.New("create_invoice",
		"Issue an invoice to a customer. Tax is added at the business rate and the invoice number is assigned automatically. Link it to an order or project by number when the work came from one.",
		object([]string{"customer_name", "customer_email", "items"}, map[string]any{
			"customer_name":  str("Customer or company name"),
			"customer_email": str("Customer email address"),
			"items":          itemsSchema(),
			"due_date":       str("Due date YYYY-MM-DD (default: payment terms from today)"),
			"order_number":   str("Order this invoice bills, e.g. ORD-00007"),
			"project_number": str("Project this invoice bills, e.g. PRJ-00003"),
		}),
		guard(o, auth.InvoicesWrite, func(ctx context.Context, p createInvoiceParams) tools.Outcome {
			inv := &store.Invoice{
				Kind:          store.KindStandard,
				CustomerName:  strings.TrimSpace(p.CustomerName),
				CustomerEmail: strings.TrimSpace(p.CustomerEmail),
				Items:         storeItems(p.Items),
				DueDate:       o.dueDate(p.DueDate),
			}
			if n := strings.TrimSpace(p.OrderNumber); n != "" {
				order, err := o.Store.OrderByNumber(ctx, n)
				if err != nil {
					return o.storeFailure(ctx, "create_invoice", err)
				}
				inv.OrderID = order.ID
			}
			if n := strings.TrimSpace(p.ProjectNumber); n != "" {
				project, err := o.Store.ProjectByNumber(ctx, n)
				if err != nil {
					return o.storeFailure(ctx, "create_invoice", err)
				}
				inv.ProjectID = project.ID
			}
			return o.issueInvoice(ctx, "create_invoice", inv)
		}),
	)
}

type createPMInvoiceParams struct {
	PropertyManager string     `json:"property_manager"`
	Email           string     `json:"email"`
	Property        string     `json:"property"`
	Items           []lineItem `json:"items"`
	DueDate         string     `json:"due_date"`
}

func (p createPMInvoiceParams) Validate() error {
	return tools.Check(
		tools.Required("property_manager", p.PropertyManager),
		tools.Email("email", p.Email),
		tools.Required("property", p.Property),
		validateItems(p.Items),
		tools.Date("due_date", p.DueDate),
	)
}

func (o *operations) createPMInvoice() *tools.Tool {
	return tools.New("create_pm_invoice",
		"Issue an invoice to a property manager for work on a managed property. Numbers share the invoice sequence.",
		object([]string{"property_manager", "email", "property", "items"}, map[string]any{
			"property_manager": str("Property manager or agency name"),
			"email":            str("Billing email of the property manager"),
			"property":         str("Property the work was done at"),
			"items":            itemsSchema(),
			"due_date":         str("Due date YYYY-MM-DD (default: payment terms from today)"),
		}),
		guard(o, auth.InvoicesWrite, func(ctx context.Context, p createPMInvoiceParams) tools.Outcome {
			return o.issueInvoice(ctx, "create_pm_invoice", &store.Invoice{
				Kind:          store.KindPropertyManager,
				CustomerName:  strings.TrimSpace(p.PropertyManager),
				CustomerEmail: strings.TrimSpace(p.Email),
				Property:      strings.TrimSpace(p.Property),
				Items:         storeItems(p.Items),
				DueDate:       o.dueDate(p.DueDate),
			})
		}),
	)
}

// issueInvoice prices inv and commits it under a fresh invoice number.
func (o *operations) issueInvoice(ctx context.Context, op string, inv *store.Invoice) tools.Outcome {
	inv.Subtotal, inv.Tax, inv.Total = o.totals(inv.Items)

	number, err := o.allocate(ctx, PrefixInvoice, o.Store.CountInvoices, func(ctx context.Context, ref string) error {
		inv.Number = ref
		return o.Store.CreateInvoice(ctx, o.actor, inv)
	})
	if err != nil {
		return o.storeFailure(ctx, op, err)
	}

	o.event(ctx, notify.Event{Type: "invoice.created", Entity: "invoice", EntityID: inv.ID, Number: number,
		Data: map[string]any{"kind": inv.Kind, "total": inv.Total}})

	return tools.Success(map[string]any{
		"invoice_id":     inv.ID,
		"invoice_number": number,
		"kind":           inv.Kind,
		"subtotal":       inv.Subtotal,
		"tax":            inv.Tax,
		"total":          inv.Total,
		"due_date":       inv.DueDate.Format(store.DateLayout),
	}, fmt.Sprintf("Invoice %s created for %s: %s due %s.",
		number, inv.CustomerName, docs.Money(o.Business.Currency, inv.Total), inv.DueDate.Format(store.DateLayout)))
}

func (o *operations) dueDate(s string) time.Time {
	if d := parseDay(s); !d.IsZero() {
		return d
	}
	return o.Now().AddDate(0, 0, o.Business.PaymentTermsDays)
}

type listInvoicesParams struct{ listParams }

func (p listInvoicesParams) Validate() error { return p.check(store.InvoiceStatuses) }

func (o *operations) listInvoices() *tools.Tool {
	return tools.New("list_invoices",
		"List recent invoices of both kinds, newest first, optionally filtered by status.",
		listSchema(store.InvoiceStatuses),
		guard(o, auth.InvoicesRead, func(ctx context.Context, p listInvoicesParams) tools.Outcome {
			invoices, err := o.Store.ListInvoices(ctx, normStatus(p.Status), p.Limit)
			if err != nil {
				return o.storeFailure(ctx, "list_invoices", err)
			}
			var total float64
			for _, inv := range invoices {
				total += inv.Total
			}
			return tools.Success(map[string]any{"invoices": invoices, "count": len(invoices), "total": round2(total)},
				fmt.Sprintf("Found %d invoice(s) totalling %s.", len(invoices), docs.Money(o.Business.Currency, total)))
		}),
	)
}

type updateInvoiceStatusParams struct{ statusParams }

func (p updateInvoiceStatusParams) Validate() error { return p.check(store.InvoiceStatuses) }

func (o *operations) updateInvoiceStatus() *tools.Tool {
	return tools.New("update_invoice_status",
		"Change an invoice's status. Marking it PAID records the payment time.",
		statusSchema("Invoice", store.InvoiceStatuses),
		guard(o, auth.InvoicesWrite, func(ctx context.Context, p updateInvoiceStatusParams) tools.Outcome {
			inv, err := o.Store.UpdateInvoiceStatus(ctx, o.actor, strings.TrimSpace(p.Number), normStatus(p.Status))
			if err != nil {
				return o.storeFailure(ctx, "update_invoice_status", err)
			}
			if inv.Status == store.InvoicePaid {
				o.event(ctx, notify.Event{Type: "invoice.paid", Entity: "invoice", EntityID: inv.ID, Number: inv.Number,
					Data: map[string]any{"total": inv.Total}})
			}
			return tools.Success(map[string]any{"invoice_number": inv.Number, "status": inv.Status},
				fmt.Sprintf("Invoice %s is now %s.", inv.Number, inv.Status))
		}),
	)
}

type sendInvoiceParams struct {
	Number string `json:"number"`
	To     string `json:"to"`
}

func (p sendInvoiceParams) Validate() error {
	return tools.Check(
		tools.Required("number", p.Number),
		tools.OptionalEmail("to", p.To),
	)
}

func (o *operations) sendInvoice() *tools.Tool {
	return tools.New("send_invoice",
		"Email an invoice with a payment QR code to the customer and mark it SENT. Delivery happens in the background.",
		object([]string{"number"}, map[string]any{
			"number": str("Invoice reference number, e.g. INV-00042"),
			"to":     str("Recipient email (default: the invoice's billing email)"),
		}),
		guard(o, auth.InvoicesWrite, func(ctx context.Context, p sendInvoiceParams) tools.Outcome {
			number := strings.TrimSpace(p.Number)
			inv, err := o.Store.InvoiceByNumber(ctx, number)
			if err != nil {
				return o.storeFailure(ctx, "send_invoice", err)
			}
			switch inv.Status {
			case store.InvoicePaid, store.InvoiceCancelled:
				return tools.Failuref(tools.KindConflict, "invoice %s is %s and cannot be sent", inv.Number, inv.Status)
			}
			to := strings.TrimSpace(p.To)
			if to == "" {
				to = inv.CustomerEmail
			}
			if to == "" {
				return tools.Failuref(tools.KindValidation, "invoice %s has no billing email; pass to", inv.Number)
			}

			if inv.Status == store.InvoiceDraft {
				if inv, err = o.Store.UpdateInvoiceStatus(ctx, o.actor, number, store.InvoiceSent); err != nil {
					return o.storeFailure(ctx, "send_invoice", err)
				}
			}

			o.deliverInvoice(ctx, to, inv)
			return tools.Success(map[string]any{"invoice_number": inv.Number, "status": inv.Status, "to": to},
				fmt.Sprintf("Invoice %s is on its way to %s.", inv.Number, to))
		}),
	)
}

// deliverInvoice renders inv with its payment QR and mails it in the
// background.
func (o *operations) deliverInvoice(ctx context.Context, to string, inv *store.Invoice) {
	biz := o.Business
	o.Tasks.Go(ctx, "invoice email "+inv.Number, func(ctx context.Context) error {
		qr, err := docs.PaymentQR(biz, inv)
		if err != nil {
			return err
		}
		return o.Mailer.Send(ctx, notify.Message{
			To:      []string{to},
			Subject: fmt.Sprintf("Invoice %s from %s", inv.Number, biz.Name),
			Body:    docs.InvoiceMarkdown(biz, inv),
			Attachments: []notify.Attachment{{
				Filename:    inv.Number + "-payment.png",
				ContentType: "image/png",
				Data:        qr,
			}},
		})
	})
}
