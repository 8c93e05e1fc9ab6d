package records

import (
	"context"

	"github.com/dmitrijs2005/docingest/internal/server/models"
)

type Repository interface {
	FindByFingerprint(ctx context.Context, fingerprint string) (*models.FileRecord, error)
	Insert(ctx context.Context, rec *models.FileRecord) (int64, error)
	SimilaritySearch(ctx context.Context, query []float32, limit int) ([]models.SearchHit, error)
	Count(ctx context.Context) (int64, error)
}
