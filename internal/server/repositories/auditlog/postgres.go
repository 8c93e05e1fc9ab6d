// Package auditlog appends pipeline outcomes to the audit_log table.
// Rows are never updated or deleted.
package auditlog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/docingest/internal/dbx"
	"github.com/dmitrijs2005/docingest/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Append(ctx context.Context, e *models.AuditEntry) (int64, error) {
	query := `INSERT INTO audit_log (record_id, action, status, message, environment)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`

	var recordID any
	if e.RecordID != nil {
		recordID = *e.RecordID
	}

	var id int64
	err := r.db.QueryRowContext(ctx, query, recordID, e.Action, e.Status, e.Message, e.Environment).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to append audit entry: %w", err)
	}
	return id, nil
}

func (r *PostgresRepository) ListByRecord(ctx context.Context, recordID int64) ([]*models.AuditEntry, error) {
	query := `SELECT id, record_id, action, status, message, environment, created_at
		FROM audit_log WHERE record_id=$1 ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to select audit entries: %w", err)
	}
	defer rows.Close()

	var result []*models.AuditEntry
	for rows.Next() {
		var (
			item models.AuditEntry
			rid  sql.NullInt64
			env  sql.NullString
		)
		if err := rows.Scan(&item.ID, &rid, &item.Action, &item.Status, &item.Message, &env, &item.CreatedAt); err != nil {
			return nil, err
		}
		if rid.Valid {
			v := rid.Int64
			item.RecordID = &v
		}
		item.Environment = env.String
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
