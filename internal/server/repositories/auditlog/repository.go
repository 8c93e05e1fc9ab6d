package auditlog

import (
	"context"

	"github.com/dmitrijs2005/docingest/internal/server/models"
)

type Repository interface {
	Append(ctx context.Context, e *models.AuditEntry) (int64, error)
	ListByRecord(ctx context.Context, recordID int64) ([]*models.AuditEntry, error)
}
