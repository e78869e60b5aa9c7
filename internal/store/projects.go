package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Project statuses.
const (
	ProjectPlanning   = "PLANNING"
	ProjectInProgress = "IN_PROGRESS"
	ProjectOnHold     = "ON_HOLD"
	ProjectCompleted  = "COMPLETED"
	ProjectCancelled  = "CANCELLED"
)

// ProjectStatuses lists every valid project status.
var ProjectStatuses = []string{ProjectPlanning, ProjectInProgress, ProjectOnHold, ProjectCompleted, ProjectCancelled}

// Project groups multi-visit work under one budget.
type Project struct {
	ID            string    `json:"id"`
	Number        string    `json:"number"`
	Name          string    `json:"name"`
	CustomerName  string    `json:"customer_name"`
	CustomerEmail string    `json:"customer_email"`
	Description   string    `json:"description,omitempty"`
	Budget        float64   `json:"budget"`
	Status        string    `json:"status"`
	StartDate     time.Time `json:"start_date,omitzero"`
	EndDate       time.Time `json:"end_date,omitzero"`
	CreatedBy     string    `json:"created_by"`
	UpdatedBy     string    `json:"updated_by"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

const projectColumns = `id, number, name, customer_name, customer_email, description, budget, status,
	start_date, end_date, created_by, updated_by, created_at, updated_at`

func scanProject(row interface{ Scan(...any) error }) (*Project, error) {
	var p Project
	var start, end, created, updated string
	err := row.Scan(&p.ID, &p.Number, &p.Name, &p.CustomerName, &p.CustomerEmail, &p.Description, &p.Budget,
		&p.Status, &start, &end, &p.CreatedBy, &p.UpdatedBy, &created, &updated)
	if err != nil {
		return nil, err
	}
	p.StartDate = parseDate(start)
	p.EndDate = parseDate(end)
	p.CreatedAt = parseTime(created)
	p.UpdatedAt = parseTime(updated)
	return &p, nil
}

// CountProjects returns the number of stored projects.
func (s *Store) CountProjects(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM projects`)
}

// CreateProject inserts p under p.Number.
func (s *Store) CreateProject(ctx context.Context, actor Actor, p *Project) error {
	id, err := newID()
	if err != nil {
		return err
	}
	now := s.timestamp()
	if p.Status == "" {
		p.Status = ProjectPlanning
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.reserveNumber(ctx, tx, ScopeProject, p.Number, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO projects (`+projectColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, p.Number, p.Name, p.CustomerName, p.CustomerEmail, p.Description, p.Budget, p.Status,
			formatDate(p.StartDate), formatDate(p.EndDate), actor.ID, actor.ID, now, now,
		)
		if err != nil {
			return fmt.Errorf("insert project: %w", err)
		}
		return s.audit(ctx, tx, actor, "create", "project", id, p.Number)
	})
	if err != nil {
		return err
	}

	p.ID = id
	p.CreatedBy, p.UpdatedBy = actor.ID, actor.ID
	p.CreatedAt, p.UpdatedAt = parseTime(now), parseTime(now)
	return nil
}

// ProjectByNumber returns the project with the given reference number.
func (s *Store) ProjectByNumber(ctx context.Context, number string) (*Project, error) {
	p, err := scanProject(s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE number = ?`, number))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %s: %w", number, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query project: %w", err)
	}
	return p, nil
}

// ListProjects returns the newest projects, optionally filtered by status.
func (s *Store) ListProjects(ctx context.Context, status string, limit int) ([]*Project, error) {
	where, args := statusFilter(status)
	args = append(args, clampLimit(limit))
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects`+where+` ORDER BY created_at DESC, id DESC LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	var out []*Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateProjectStatus sets the status of the project with the given number.
func (s *Store) UpdateProjectStatus(ctx context.Context, actor Actor, number, status string) (*Project, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var id string
		err := tx.QueryRowContext(ctx,
			`UPDATE projects SET status = ?, updated_by = ?, updated_at = ? WHERE number = ? RETURNING id`,
			status, actor.ID, s.timestamp(), number,
		).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("project %s: %w", number, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("update project: %w", err)
		}
		return s.audit(ctx, tx, actor, "status", "project", id, status)
	})
	if err != nil {
		return nil, err
	}
	return s.ProjectByNumber(ctx, number)
}
