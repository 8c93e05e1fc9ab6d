package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/docingest/internal/common"
	"github.com/dmitrijs2005/docingest/internal/dbx"
	"github.com/dmitrijs2005/docingest/internal/server/models"
	"github.com/dmitrijs2005/docingest/internal/server/repositories/records"
	"github.com/dmitrijs2005/docingest/internal/server/repositories/repomanager"
)

// Postgres is a Gateway backed by PostgreSQL. Every call acquires its own
// connection or transaction from the pool.
type Postgres struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	environment string
}

func NewPostgres(db *sql.DB, rm repomanager.RepositoryManager, environment string) *Postgres {
	return &Postgres{db: db, repomanager: rm, environment: environment}
}

func (g *Postgres) FindByFingerprint(ctx context.Context, fingerprint string) (*models.FileRecord, error) {
	rec, err := g.repomanager.Records(g.db).FindByFingerprint(ctx, fingerprint)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", common.ErrStoreFailure, err)
	}
	return rec, nil
}

func (g *Postgres) Upsert(ctx context.Context, rec *models.FileRecord) (int64, bool, error) {
	var (
		id      int64
		created bool
	)

	err := dbx.WithTx(ctx, g.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		recordRepo := g.repomanager.Records(tx)

		existing, err := recordRepo.FindByFingerprint(ctx, rec.Fingerprint)
		if err == nil {
			id = existing.ID
			return nil
		}
		if !errors.Is(err, common.ErrorNotFound) {
			return err
		}

		id, err = recordRepo.Insert(ctx, rec)
		if err != nil {
			return err
		}
		created = true

		_, err = g.repomanager.AuditLog(tx).Append(ctx, &models.AuditEntry{
			RecordID:    &id,
			Action:      common.ActionFileProcessed,
			Status:      common.AuditSuccess,
			Message:     fmt.Sprintf("File %s processed successfully", rec.StoredName),
			Environment: g.environment,
		})
		return err
	})

	if dbx.IsUniqueViolation(err, records.FingerprintConstraint) {
		// lost the race: the winner's row is committed by now
		existing, ferr := g.repomanager.Records(g.db).FindByFingerprint(ctx, rec.Fingerprint)
		if ferr != nil {
			return 0, false, fmt.Errorf("%w: lookup after conflict: %w", common.ErrStoreFailure, ferr)
		}
		return existing.ID, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("%w: upsert %s: %w", common.ErrStoreFailure, rec.Fingerprint, err)
	}

	return id, created, nil
}

func (g *Postgres) AppendAudit(ctx context.Context, e *models.AuditEntry) error {
	if e.Environment == "" {
		e.Environment = g.environment
	}
	if _, err := g.repomanager.AuditLog(g.db).Append(ctx, e); err != nil {
		return fmt.Errorf("%w: %w", common.ErrStoreFailure, err)
	}
	return nil
}

func (g *Postgres) SimilaritySearch(ctx context.Context, query []float32, limit int) ([]models.SearchHit, error) {
	hits, err := g.repomanager.Records(g.db).SimilaritySearch(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrStoreFailure, err)
	}
	return hits, nil
}

func (g *Postgres) Ping(ctx context.Context) error {
	if err := g.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", common.ErrStoreFailure, err)
	}
	return nil
}
