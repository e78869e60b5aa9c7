// Package auth resolves request credentials into a Principal: the user
// on whose behalf every operation in a request runs.
package auth

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Sentinel errors.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrUnknownRole     = errors.New("unknown role")
)

// Permission names an action class, "<area>:<verb>".
type Permission string

// Permissions.
const (
	LeadsRead     Permission = "leads:read"
	LeadsWrite    Permission = "leads:write"
	QuotesWrite   Permission = "quotes:write"
	InvoicesRead  Permission = "invoices:read"
	InvoicesWrite Permission = "invoices:write"
	OrdersRead    Permission = "orders:read"
	OrdersWrite   Permission = "orders:write"
	ProjectsRead  Permission = "projects:read"
	ProjectsWrite Permission = "projects:write"
	ExpensesWrite Permission = "expenses:write"
	FinanceRead   Permission = "finance:read"
)

// AllPermissions lists every permission.
var AllPermissions = []Permission{
	LeadsRead, LeadsWrite, QuotesWrite,
	InvoicesRead, InvoicesWrite,
	OrdersRead, OrdersWrite,
	ProjectsRead, ProjectsWrite,
	ExpensesWrite, FinanceRead,
}

// Roles.
const (
	RoleAdmin      = "admin"
	RoleSales      = "sales"
	RoleTechnician = "technician"
	RoleAccountant = "accountant"
	RoleViewer     = "viewer"
)

var rolePermissions = map[string][]Permission{
	RoleAdmin:      AllPermissions,
	RoleSales:      {LeadsRead, LeadsWrite, QuotesWrite, OrdersRead, OrdersWrite},
	RoleTechnician: {OrdersRead, OrdersWrite, ProjectsRead, ProjectsWrite},
	RoleAccountant: {InvoicesRead, InvoicesWrite, ExpensesWrite, FinanceRead, OrdersRead, ProjectsRead},
	RoleViewer:     {LeadsRead, InvoicesRead, OrdersRead, ProjectsRead},
}

// Principal is an authenticated user. It is immutable once built.
type Principal struct {
	ID    string
	Name  string
	Email string
	Role  string
	perms []Permission
}

// NewPrincipal builds a principal with the role's permissions plus any
// extra grants. Unknown roles and permissions are rejected.
func NewPrincipal(id, name, email, role string, extra ...Permission) (Principal, error) {
	if strings.TrimSpace(id) == "" {
		return Principal{}, fmt.Errorf("%w: principal has no id", ErrUnauthenticated)
	}
	base, ok := rolePermissions[role]
	if !ok {
		return Principal{}, fmt.Errorf("%w %q", ErrUnknownRole, role)
	}

	perms := slices.Clone(base)
	for _, p := range extra {
		if !slices.Contains(AllPermissions, p) {
			return Principal{}, fmt.Errorf("unknown permission %q", p)
		}
		perms = append(perms, p)
	}
	slices.Sort(perms)
	perms = slices.Compact(perms)

	if name == "" {
		name = id
	}
	return Principal{ID: id, Name: name, Email: email, Role: role, perms: perms}, nil
}

// Can reports whether the principal holds perm.
func (p Principal) Can(perm Permission) bool {
	_, found := slices.BinarySearch(p.perms, perm)
	return found
}

// Permissions returns a copy of the granted permissions, sorted.
func (p Principal) Permissions() []Permission {
	return slices.Clone(p.perms)
}

// IsZero reports whether p is the unauthenticated zero value.
func (p Principal) IsZero() bool {
	return p.ID == ""
}
