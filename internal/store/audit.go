package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AuditEntry records one attributed write.
type AuditEntry struct {
	ID        string
	ActorID   string
	ActorName string
	Action    string
	Entity    string
	EntityID  string
	Detail    string
	CreatedAt time.Time
}

func (s *Store) audit(ctx context.Context, tx *sql.Tx, actor Actor, action, entity, entityID, detail string) error {
	id, err := newID()
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO audit_log (id, actor_id, actor_name, action, entity, entity_id, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, actor.ID, actor.Name, action, entity, entityID, detail, s.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// AuditTrail returns the audit entries for one record, oldest first.
func (s *Store) AuditTrail(ctx context.Context, entity, entityID string) ([]AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, actor_id, actor_name, action, entity, entity_id, detail, created_at
		 FROM audit_log WHERE entity = ? AND entity_id = ?
		 ORDER BY created_at, id`,
		entity, entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var created string
		if err := rows.Scan(&e.ID, &e.ActorID, &e.ActorName, &e.Action, &e.Entity, &e.EntityID, &e.Detail, &created); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.CreatedAt = parseTime(created)
		out = append(out, e)
	}
	return out, rows.Err()
}
