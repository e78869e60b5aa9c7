package ops

import (
	"context"
	"fmt"
	"strings"

	"github.com/chalatsithapelo-ops/square15management-sub006/internal/auth"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/docs"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/notify"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/store"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/tools"
)

type createLeadParams struct {
	CustomerName   string  `json:"customer_name"`
	Email          string  `json:"email"`
	Phone          string  `json:"phone"`
	ServiceType    string  `json:"service_type"`
	Address        string  `json:"address"`
	Notes          string  `json:"notes"`
	EstimatedValue float64 `json:"estimated_value"`
}

func (p createLeadParams) Validate() error {
	return tools.Check(
		tools.Required("customer_name", p.CustomerName),
		tools.Email("email", p.Email),
		tools.Required("phone", p.Phone),
		tools.Required("service_type", p.ServiceType),
		tools.NonNegative("estimated_value", p.EstimatedValue),
	)
}

func (o *operations) createLead() *tools.Tool {
	return tools.New("create_lead",
		"Record a new sales lead (a prospective customer enquiry). All of customer_name, email, phone and service_type are required; ask the user for any that are missing instead of guessing.",
		object([]string{"customer_name", "email", "phone", "service_type"}, map[string]any{
			"customer_name":   str("Customer or company name"),
			"email":           str("Customer email address"),
			"phone":           str("Customer phone number"),
			"service_type":    str("Requested service, e.g. plumbing, electrical, painting"),
			"address":         str("Site address"),
			"notes":           str("Anything else the customer mentioned"),
			"estimated_value": num("Estimated job value"),
		}),
		guard(o, auth.LeadsWrite, func(ctx context.Context, p createLeadParams) tools.Outcome {
			lead := &store.Lead{
				CustomerName:   strings.TrimSpace(p.CustomerName),
				Email:          strings.TrimSpace(p.Email),
				Phone:          strings.TrimSpace(p.Phone),
				ServiceType:    strings.TrimSpace(p.ServiceType),
				Address:        strings.TrimSpace(p.Address),
				Notes:          strings.TrimSpace(p.Notes),
				EstimatedValue: round2(p.EstimatedValue),
			}
			if err := o.Store.CreateLead(ctx, o.actor, lead); err != nil {
				return o.storeFailure(ctx, "create_lead", err)
			}

			o.announceLead(ctx, lead)
			o.event(ctx, notify.Event{Type: "lead.created", Entity: "lead", EntityID: lead.ID})

			return tools.Success(map[string]any{
				"lead_id": lead.ID,
				"status":  lead.Status,
			}, fmt.Sprintf("Lead created for %s (%s).", lead.CustomerName, lead.ServiceType))
		}),
	)
}

// announceLead emails the sales inbox a summary with the lead's vCard.
func (o *operations) announceLead(ctx context.Context, lead *store.Lead) {
	if o.Business.SalesInbox == "" {
		return
	}
	card, err := docs.LeadVCard(lead)
	if err != nil {
		o.Logger.Warn("lead vcard failed", "lead_id", lead.ID, "error", err)
		return
	}
	body := fmt.Sprintf("**New lead** captured by %s.\n\n- Customer: %s\n- Email: %s\n- Phone: %s\n- Service: %s\n",
		o.actor.Name, lead.CustomerName, lead.Email, lead.Phone, lead.ServiceType)
	if lead.Notes != "" {
		body += "\n" + lead.Notes + "\n"
	}
	o.mail(ctx, "lead email", notify.Message{
		To:      []string{o.Business.SalesInbox},
		Subject: "New lead: " + lead.CustomerName,
		Body:    body,
		Attachments: []notify.Attachment{{
			Filename:    "lead.vcf",
			ContentType: "text/vcard",
			Data:        card,
		}},
	})
}

type listLeadsParams struct{ listParams }

func (p listLeadsParams) Validate() error { return p.check(store.LeadStatuses) }

func (o *operations) listLeads() *tools.Tool {
	return tools.New("list_leads",
		"List recent leads, newest first, optionally filtered by status.",
		listSchema(store.LeadStatuses),
		guard(o, auth.LeadsRead, func(ctx context.Context, p listLeadsParams) tools.Outcome {
			leads, err := o.Store.ListLeads(ctx, normStatus(p.Status), p.Limit)
			if err != nil {
				return o.storeFailure(ctx, "list_leads", err)
			}
			return tools.Success(map[string]any{"leads": leads, "count": len(leads)},
				fmt.Sprintf("Found %d lead(s).", len(leads)))
		}),
	)
}

type updateLeadStatusParams struct {
	LeadID string `json:"lead_id"`
	Status string `json:"status"`
}

func (p updateLeadStatusParams) Validate() error {
	return tools.Check(
		tools.Required("lead_id", p.LeadID),
		tools.Required("status", p.Status),
		tools.OneOf("status", normStatus(p.Status), store.LeadStatuses),
	)
}

func (o *operations) updateLeadStatus() *tools.Tool {
	return tools.New("update_lead_status",
		"Move a lead through the sales pipeline.",
		object([]string{"lead_id", "status"}, map[string]any{
			"lead_id": str("Lead id as returned by create_lead or list_leads"),
			"status":  enum("New status", store.LeadStatuses),
		}),
		guard(o, auth.LeadsWrite, func(ctx context.Context, p updateLeadStatusParams) tools.Outcome {
			lead, err := o.Store.UpdateLeadStatus(ctx, o.actor, strings.TrimSpace(p.LeadID), normStatus(p.Status))
			if err != nil {
				return o.storeFailure(ctx, "update_lead_status", err)
			}
			return tools.Success(map[string]any{"lead_id": lead.ID, "status": lead.Status},
				fmt.Sprintf("Lead for %s is now %s.", lead.CustomerName, lead.Status))
		}),
	)
}

type createQuoteParams struct {
	LeadID        string     `json:"lead_id"`
	CustomerName  string     `json:"customer_name"`
	CustomerEmail string     `json:"customer_email"`
	Items         []lineItem `json:"items"`
	ValidDays     int        `json:"valid_days"`
	EmailCustomer bool       `json:"email_customer"`
}

func (p createQuoteParams) Validate() error {
	return tools.Check(
		tools.Required("customer_name", p.CustomerName),
		tools.Email("customer_email", p.CustomerEmail),
		validateItems(p.Items),
		tools.NonNegative("valid_days", float64(p.ValidDays)),
	)
}

func (o *operations) createQuote() *tools.Tool {
	return tools.New("create_quote",
		"Prepare a priced quotation. Tax is added at the business rate. The quote number is assigned automatically.",
		object([]string{"customer_name", "customer_email", "items"}, map[string]any{
			"lead_id":        str("Lead this quote answers, if any"),
			"customer_name":  str("Customer or company name"),
			"customer_email": str("Customer email address"),
			"items":          itemsSchema(),
			"valid_days":     integer("Days the quote stays valid (default 30)"),
			"email_customer": map[string]any{"type": "boolean", "description": "Email the quote to the customer"},
		}),
		guard(o, auth.QuotesWrite, func(ctx context.Context, p createQuoteParams) tools.Outcome {
			days := p.ValidDays
			if days == 0 {
				days = 30
			}
			q := &store.Quote{
				LeadID:        strings.TrimSpace(p.LeadID),
				CustomerName:  strings.TrimSpace(p.CustomerName),
				CustomerEmail: strings.TrimSpace(p.CustomerEmail),
				Items:         storeItems(p.Items),
				ValidUntil:    o.Now().AddDate(0, 0, days),
			}
			q.Subtotal, q.Tax, q.Total = o.totals(q.Items)

			number, err := o.allocate(ctx, PrefixQuote, o.Store.CountQuotes, func(ctx context.Context, ref string) error {
				q.Number = ref
				return o.Store.CreateQuote(ctx, o.actor, q)
			})
			if err != nil {
				return o.storeFailure(ctx, "create_quote", err)
			}

			if p.EmailCustomer {
				o.mail(ctx, "quote email", notify.Message{
					To:      []string{q.CustomerEmail},
					Subject: fmt.Sprintf("Quotation %s from %s", number, o.Business.Name),
					Body:    docs.QuoteMarkdown(o.Business, q),
				})
			}

			return tools.Success(map[string]any{
				"quote_number": number,
				"subtotal":     q.Subtotal,
				"tax":          q.Tax,
				"total":        q.Total,
				"valid_until":  q.ValidUntil.Format(store.DateLayout),
			}, fmt.Sprintf("Quote %s created for %s: %s.", number, q.CustomerName, docs.Money(o.Business.Currency, q.Total)))
		}),
	)
}
