package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Lead statuses.
const (
	LeadNew          = "NEW"
	LeadContacted    = "CONTACTED"
	LeadQualified    = "QUALIFIED"
	LeadProposalSent = "PROPOSAL_SENT"
	LeadWon          = "WON"
	LeadLost         = "LOST"
)

// LeadStatuses lists every valid lead status.
var LeadStatuses = []string{LeadNew, LeadContacted, LeadQualified, LeadProposalSent, LeadWon, LeadLost}

// Lead is a prospective customer enquiry.
type Lead struct {
	ID             string    `json:"id"`
	CustomerName   string    `json:"customer_name"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone"`
	ServiceType    string    `json:"service_type"`
	Address        string    `json:"address,omitempty"`
	Notes          string    `json:"notes,omitempty"`
	Status         string    `json:"status"`
	EstimatedValue float64   `json:"estimated_value,omitempty"`
	CreatedBy      string    `json:"created_by"`
	UpdatedBy      string    `json:"updated_by"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

const leadColumns = `id, customer_name, email, phone, service_type, address, notes, status,
	estimated_value, created_by, updated_by, created_at, updated_at`

func scanLead(row interface{ Scan(...any) error }) (*Lead, error) {
	var l Lead
	var created, updated string
	err := row.Scan(&l.ID, &l.CustomerName, &l.Email, &l.Phone, &l.ServiceType, &l.Address, &l.Notes,
		&l.Status, &l.EstimatedValue, &l.CreatedBy, &l.UpdatedBy, &created, &updated)
	if err != nil {
		return nil, err
	}
	l.CreatedAt = parseTime(created)
	l.UpdatedAt = parseTime(updated)
	return &l, nil
}

// CreateLead inserts l, filling ID, status, attribution and timestamps.
func (s *Store) CreateLead(ctx context.Context, actor Actor, l *Lead) error {
	id, err := newID()
	if err != nil {
		return err
	}
	now := s.timestamp()
	l.ID = id
	if l.Status == "" {
		l.Status = LeadNew
	}
	l.CreatedBy, l.UpdatedBy = actor.ID, actor.ID
	l.CreatedAt, l.UpdatedAt = parseTime(now), parseTime(now)

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO leads (`+leadColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			l.ID, l.CustomerName, l.Email, l.Phone, l.ServiceType, l.Address, l.Notes, l.Status,
			l.EstimatedValue, l.CreatedBy, l.UpdatedBy, now, now,
		)
		if err != nil {
			return fmt.Errorf("insert lead: %w", err)
		}
		return s.audit(ctx, tx, actor, "create", "lead", l.ID, l.CustomerName)
	})
}

// Lead returns the lead with the given ID.
func (s *Store) Lead(ctx context.Context, id string) (*Lead, error) {
	l, err := scanLead(s.db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lead %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query lead: %w", err)
	}
	return l, nil
}

// ListLeads returns the newest leads, optionally filtered by status.
func (s *Store) ListLeads(ctx context.Context, status string, limit int) ([]*Lead, error) {
	where, args := statusFilter(status)
	args = append(args, clampLimit(limit))
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+leadColumns+` FROM leads`+where+` ORDER BY created_at DESC, id DESC LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("query leads: %w", err)
	}
	defer rows.Close()

	var out []*Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// UpdateLeadStatus sets the status of lead id.
func (s *Store) UpdateLeadStatus(ctx context.Context, actor Actor, id, status string) (*Lead, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE leads SET status = ?, updated_by = ?, updated_at = ? WHERE id = ?`,
			status, actor.ID, s.timestamp(), id,
		)
		if err != nil {
			return fmt.Errorf("update lead: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("lead %s: %w", id, ErrNotFound)
		}
		return s.audit(ctx, tx, actor, "status", "lead", id, status)
	})
	if err != nil {
		return nil, err
	}
	return s.Lead(ctx, id)
}
