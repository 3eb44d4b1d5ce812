package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// AuditRepository defines the data access contract for audit log operations.
// All queries live in the concrete implementations -- nothing leaks out.
type AuditRepository interface {
	// Log inserts a new audit entry.
	Log(ctx context.Context, entry *Entry) error

	// List returns entries ordered by most recent first, plus the total
	// count for pagination.
	List(ctx context.Context, limit, offset int) ([]Entry, int, error)
}

// auditRepository implements AuditRepository with MariaDB queries.
type auditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new repository backed by the given DB pool.
func NewAuditRepository(db *sql.DB) AuditRepository {
	return &auditRepository{db: db}
}

// Log inserts a new audit entry. The details map is serialized to JSON
// before storage. Nil details are stored as SQL NULL.
func (r *auditRepository) Log(ctx context.Context, entry *Entry) error {
	query := `INSERT INTO audit_log (id, actor_id, action, target_email, role, ip, details, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	var detailsJSON []byte
	if entry.Details != nil {
		var err error
		detailsJSON, err = json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("marshaling audit details: %w", err)
		}
	}

	_, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.ActorID, entry.Action,
		entry.TargetEmail, entry.Role, entry.IP,
		detailsJSON, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}

	return nil
}

// List returns audit entries ordered by most recent first.
func (r *auditRepository) List(ctx context.Context, limit, offset int) ([]Entry, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting audit entries: %w", err)
	}

	query := `SELECT id, actor_id, action, target_email, role, ip, details, created_at
	          FROM audit_log
	          ORDER BY created_at DESC
	          LIMIT ? OFFSET ?`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var detailsJSON sql.NullString
		if err := rows.Scan(
			&e.ID, &e.ActorID, &e.Action,
			&e.TargetEmail, &e.Role, &e.IP,
			&detailsJSON, &e.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scanning audit entry: %w", err)
		}
		if detailsJSON.Valid && detailsJSON.String != "" {
			if err := json.Unmarshal([]byte(detailsJSON.String), &e.Details); err != nil {
				return nil, 0, fmt.Errorf("unmarshaling audit details: %w", err)
			}
		}
		entries = append(entries, e)
	}

	return entries, total, rows.Err()
}
