// Package records persists ingested file records, one row per fingerprint.
package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/docingest/internal/common"
	"github.com/dmitrijs2005/docingest/internal/dbx"
	"github.com/dmitrijs2005/docingest/internal/server/models"
	"github.com/pgvector/pgvector-go"
)

// FingerprintConstraint is the unique constraint guarding fingerprints.
const FingerprintConstraint = "records_fingerprint_key"

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindByFingerprint returns the record stored for fingerprint or
// common.ErrorNotFound.
func (r *PostgresRepository) FindByFingerprint(ctx context.Context, fingerprint string) (*models.FileRecord, error) {
	query := `SELECT id, fingerprint, stored_name, original_name, media_type, byte_size,
			text_content, source_kind, category, screen_status, screened_at, blob_location,
			metadata, created_by, status, environment, created_at
		FROM records WHERE fingerprint=$1`

	var (
		rec                                    models.FileRecord
		originalName, mediaType, blob, envName sql.NullString
		screenedAt                             sql.NullTime
		metadata                               []byte
	)

	err := r.db.QueryRowContext(ctx, query, fingerprint).Scan(
		&rec.ID, &rec.Fingerprint, &rec.StoredName, &originalName, &mediaType, &rec.ByteSize,
		&rec.TextContent, &rec.SourceKind, &rec.Category, &rec.ScreenStatus, &screenedAt, &blob,
		&metadata, &rec.CreatedBy, &rec.Status, &envName, &rec.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select record: %w", err)
	}

	rec.OriginalName = originalName.String
	rec.MediaType = mediaType.String
	rec.BlobLocation = blob.String
	rec.Environment = envName.String
	if screenedAt.Valid {
		rec.ScreenedAt = screenedAt.Time
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
	}

	return &rec, nil
}

// Insert writes rec and returns the new id. A duplicate fingerprint surfaces
// as a wrapped *pgconn.PgError; see dbx.IsUniqueViolation.
func (r *PostgresRepository) Insert(ctx context.Context, rec *models.FileRecord) (int64, error) {
	query := `
		INSERT INTO records (fingerprint, stored_name, original_name, media_type, byte_size,
			environment, text_content, embedding, source_kind, category, screen_status,
			screened_at, blob_location, metadata, created_by, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id`

	metadata, err := encodeMetadata(rec.Metadata)
	if err != nil {
		return 0, err
	}

	var id int64
	err = r.db.QueryRowContext(ctx, query,
		rec.Fingerprint, rec.StoredName, rec.OriginalName, rec.MediaType, rec.ByteSize,
		rec.Environment, rec.TextContent, embeddingArg(rec.Embedding), rec.SourceKind, rec.Category,
		rec.ScreenStatus, nullTime(rec.ScreenedAt), nullString(rec.BlobLocation), metadata,
		rec.CreatedBy, rec.Status,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert record: %w", err)
	}
	return id, nil
}

// SimilaritySearch returns records with an embedding ordered by ascending
// cosine distance to query. Ties come back in whatever order the planner picks.
func (r *PostgresRepository) SimilaritySearch(ctx context.Context, query []float32, limit int) ([]models.SearchHit, error) {
	q := `SELECT id, stored_name, original_name, text_content, category, source_kind, created_at,
			(embedding <=> $1) AS distance
		FROM records
		WHERE embedding IS NOT NULL
		ORDER BY distance
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, q, pgvector.NewVector(query), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search records: %w", err)
	}
	defer rows.Close()

	var result []models.SearchHit
	for rows.Next() {
		var (
			hit          models.SearchHit
			originalName sql.NullString
		)
		if err := rows.Scan(&hit.Record.ID, &hit.Record.StoredName, &originalName, &hit.Record.TextContent,
			&hit.Record.Category, &hit.Record.SourceKind, &hit.Record.CreatedAt, &hit.Distance); err != nil {
			return nil, err
		}
		hit.Record.OriginalName = originalName.String
		result = append(result, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Count returns the number of stored records.
func (r *PostgresRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

func encodeMetadata(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return b, nil
}

func embeddingArg(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	return pgvector.NewVector(v)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
