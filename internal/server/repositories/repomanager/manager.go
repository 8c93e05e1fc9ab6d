package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/docingest/internal/dbx"
	"github.com/dmitrijs2005/docingest/internal/server/repositories/auditlog"
	"github.com/dmitrijs2005/docingest/internal/server/repositories/records"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Records(db dbx.DBTX) records.Repository
	AuditLog(db dbx.DBTX) auditlog.Repository
}
