// Package store is the record store gateway used by the ingestion pipeline
// and similarity search. Two backends are provided: Postgres (pgvector) for
// deployments and Memory for local runs and tests.
package store

import (
	"context"

	"github.com/dmitrijs2005/docingest/internal/server/models"
)

// Gateway is the record store seen by the core. Implementations must be safe
// for concurrent use; Upsert must resolve concurrent writers of the same
// fingerprint to a single record.
type Gateway interface {
	// FindByFingerprint returns the stored record or common.ErrorNotFound.
	FindByFingerprint(ctx context.Context, fingerprint string) (*models.FileRecord, error)

	// Upsert stores rec unless its fingerprint already exists. It returns the
	// id of the stored record and whether this call created it. Creation and
	// the file_processed audit entry are committed together.
	Upsert(ctx context.Context, rec *models.FileRecord) (id int64, created bool, err error)

	// AppendAudit records a terminal outcome that did not create a record.
	AppendAudit(ctx context.Context, e *models.AuditEntry) error

	// SimilaritySearch returns records with embeddings, nearest first.
	SimilaritySearch(ctx context.Context, query []float32, limit int) ([]models.SearchHit, error)

	Ping(ctx context.Context) error
}
