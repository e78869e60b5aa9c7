package ops

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chalatsithapelo-ops/square15management-sub006/internal/auth"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/docs"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/notify"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/store"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/tools"
)

type createOrderParams struct {
	CustomerName  string  `json:"customer_name"`
	CustomerEmail string  `json:"customer_email"`
	Phone         string  `json:"phone"`
	Address       string  `json:"address"`
	ServiceType   string  `json:"service_type"`
	Description   string  `json:"description"`
	TotalCost     float64 `json:"total_cost"`
}

func (p createOrderParams) Validate() error {
	return tools.Check(
		tools.Required("customer_name", p.CustomerName),
		tools.OptionalEmail("customer_email", p.CustomerEmail),
		tools.Required("address", p.Address),
		tools.Required("service_type", p.ServiceType),
		tools.NonNegative("total_cost", p.TotalCost),
	)
}

func (o *operations) createOrder() *tools.Tool {
	return tools.New("create_order",
		"Open a work order for a job at a customer's site. The order number is assigned automatically.",
		object([]string{"customer_name", "address", "service_type"}, map[string]any{
			"customer_name":  str("Customer or company name"),
			"customer_email": str("Customer email, used for the completion notice"),
			"phone":          str("Contact number on site"),
			"address":        str("Site address"),
			"service_type":   str("Kind of work, e.g. plumbing"),
			"description":    str("What needs doing"),
			"total_cost":     num("Agreed price"),
		}),
		guard(o, auth.OrdersWrite, func(ctx context.Context, p createOrderParams) tools.Outcome {
			order := &store.Order{
				CustomerName:  strings.TrimSpace(p.CustomerName),
				CustomerEmail: strings.TrimSpace(p.CustomerEmail),
				Phone:         strings.TrimSpace(p.Phone),
				Address:       strings.TrimSpace(p.Address),
				ServiceType:   strings.TrimSpace(p.ServiceType),
				Description:   strings.TrimSpace(p.Description),
				TotalCost:     round2(p.TotalCost),
			}
			number, err := o.allocate(ctx, PrefixOrder, o.Store.CountOrders, func(ctx context.Context, ref string) error {
				order.Number = ref
				return o.Store.CreateOrder(ctx, o.actor, order)
			})
			if err != nil {
				return o.storeFailure(ctx, "create_order", err)
			}
			o.event(ctx, notify.Event{Type: "order.created", Entity: "order", EntityID: order.ID, Number: number})
			return tools.Success(map[string]any{"order_id": order.ID, "order_number": number, "status": order.Status},
				fmt.Sprintf("Order %s opened for %s.", number, order.CustomerName))
		}),
	)
}

type listOrdersParams struct{ listParams }

func (p listOrdersParams) Validate() error { return p.check(store.OrderStatuses) }

func (o *operations) listOrders() *tools.Tool {
	return tools.New("list_orders",
		"List recent work orders, newest first, optionally filtered by status.",
		listSchema(store.OrderStatuses),
		guard(o, auth.OrdersRead, func(ctx context.Context, p listOrdersParams) tools.Outcome {
			orders, err := o.Store.ListOrders(ctx, normStatus(p.Status), p.Limit)
			if err != nil {
				return o.storeFailure(ctx, "list_orders", err)
			}
			return tools.Success(map[string]any{"orders": orders, "count": len(orders)},
				fmt.Sprintf("Found %d order(s).", len(orders)))
		}),
	)
}

type updateOrderStatusParams struct{ statusParams }

func (p updateOrderStatusParams) Validate() error { return p.check(store.OrderStatuses) }

func (o *operations) updateOrderStatus() *tools.Tool {
	return tools.New("update_order_status",
		"Change a work order's status. Completing an order emails the customer.",
		statusSchema("Order", store.OrderStatuses),
		guard(o, auth.OrdersWrite, func(ctx context.Context, p updateOrderStatusParams) tools.Outcome {
			order, err := o.Store.UpdateOrderStatus(ctx, o.actor, strings.TrimSpace(p.Number), normStatus(p.Status))
			if err != nil {
				return o.storeFailure(ctx, "update_order_status", err)
			}
			if order.Status == store.OrderCompleted {
				o.orderCompleted(ctx, order)
			}
			return tools.Success(map[string]any{"order_number": order.Number, "status": order.Status},
				fmt.Sprintf("Order %s is now %s.", order.Number, order.Status))
		}),
	)
}

// orderCompleted notifies the customer and publishes the event.
func (o *operations) orderCompleted(ctx context.Context, order *store.Order) {
	o.event(ctx, notify.Event{Type: "order.completed", Entity: "order", EntityID: order.ID, Number: order.Number,
		Data: map[string]any{"total_cost": order.TotalCost}})

	if order.CustomerEmail == "" {
		return
	}
	msg := notify.Message{
		To:      []string{order.CustomerEmail},
		Subject: fmt.Sprintf("Order %s completed", order.Number),
		Body: fmt.Sprintf("Hello %s,\n\nYour %s job (order **%s**) at %s has been completed.\n\nThank you for choosing %s.\n",
			order.CustomerName, order.ServiceType, order.Number, order.Address, o.Business.Name),
	}
	if o.Business.SalesInbox != "" {
		msg.Cc = []string{o.Business.SalesInbox}
	}
	o.mail(ctx, "order completion email "+order.Number, msg)
}

type createProjectParams struct {
	Name          string  `json:"name"`
	CustomerName  string  `json:"customer_name"`
	CustomerEmail string  `json:"customer_email"`
	Description   string  `json:"description"`
	Budget        float64 `json:"budget"`
	StartDate     string  `json:"start_date"`
	EndDate       string  `json:"end_date"`
}

func (p createProjectParams) Validate() error {
	err := tools.Check(
		tools.Required("name", p.Name),
		tools.Required("customer_name", p.CustomerName),
		tools.OptionalEmail("customer_email", p.CustomerEmail),
		tools.NonNegative("budget", p.Budget),
		tools.Date("start_date", p.StartDate),
		tools.Date("end_date", p.EndDate),
	)
	if err != nil {
		return err
	}
	if p.StartDate != "" && p.EndDate != "" && parseDay(p.EndDate).Before(parseDay(p.StartDate)) {
		return errors.New("end_date is before start_date")
	}
	return nil
}

func (o *operations) createProject() *tools.Tool {
	return tools.New("create_project",
		"Start a multi-visit project with a budget. The project number is assigned automatically.",
		object([]string{"name", "customer_name"}, map[string]any{
			"name":           str("Project name"),
			"customer_name":  str("Customer or company name"),
			"customer_email": str("Customer email address"),
			"description":    str("Scope of work"),
			"budget":         num("Approved budget"),
			"start_date":     str("Planned start YYYY-MM-DD"),
			"end_date":       str("Planned end YYYY-MM-DD"),
		}),
		guard(o, auth.ProjectsWrite, func(ctx context.Context, p createProjectParams) tools.Outcome {
			project := &store.Project{
				Name:          strings.TrimSpace(p.Name),
				CustomerName:  strings.TrimSpace(p.CustomerName),
				CustomerEmail: strings.TrimSpace(p.CustomerEmail),
				Description:   strings.TrimSpace(p.Description),
				Budget:        round2(p.Budget),
				StartDate:     parseDay(p.StartDate),
				EndDate:       parseDay(p.EndDate),
			}
			number, err := o.allocate(ctx, PrefixProject, o.Store.CountProjects, func(ctx context.Context, ref string) error {
				project.Number = ref
				return o.Store.CreateProject(ctx, o.actor, project)
			})
			if err != nil {
				return o.storeFailure(ctx, "create_project", err)
			}
			return tools.Success(map[string]any{"project_id": project.ID, "project_number": number, "status": project.Status},
				fmt.Sprintf("Project %s (%s) created with a budget of %s.",
					number, project.Name, docs.Money(o.Business.Currency, project.Budget)))
		}),
	)
}

type listProjectsParams struct{ listParams }

func (p listProjectsParams) Validate() error { return p.check(store.ProjectStatuses) }

func (o *operations) listProjects() *tools.Tool {
	return tools.New("list_projects",
		"List recent projects, newest first, optionally filtered by status.",
		listSchema(store.ProjectStatuses),
		guard(o, auth.ProjectsRead, func(ctx context.Context, p listProjectsParams) tools.Outcome {
			projects, err := o.Store.ListProjects(ctx, normStatus(p.Status), p.Limit)
			if err != nil {
				return o.storeFailure(ctx, "list_projects", err)
			}
			return tools.Success(map[string]any{"projects": projects, "count": len(projects)},
				fmt.Sprintf("Found %d project(s).", len(projects)))
		}),
	)
}

type updateProjectStatusParams struct{ statusParams }

func (p updateProjectStatusParams) Validate() error { return p.check(store.ProjectStatuses) }

func (o *operations) updateProjectStatus() *tools.Tool {
	return tools.New("update_project_status",
		"Change a project's status.",
		statusSchema("Project", store.ProjectStatuses),
		guard(o, auth.ProjectsWrite, func(ctx context.Context, p updateProjectStatusParams) tools.Outcome {
			project, err := o.Store.UpdateProjectStatus(ctx, o.actor, strings.TrimSpace(p.Number), normStatus(p.Status))
			if err != nil {
				return o.storeFailure(ctx, "update_project_status", err)
			}
			return tools.Success(map[string]any{"project_number": project.Number, "status": project.Status},
				fmt.Sprintf("Project %s is now %s.", project.Number, project.Status))
		}),
	)
}
