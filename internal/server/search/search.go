// Package search ranks stored records by vector distance to a query text.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/docingest/internal/common"
	"github.com/dmitrijs2005/docingest/internal/logging"
	"github.com/dmitrijs2005/docingest/internal/server/embedding"
	"github.com/dmitrijs2005/docingest/internal/server/models"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	DefaultLimit = 5
	MaxLimit     = 100

	// PreviewRunes bounds ResultView.TextPreview before the "..." marker.
	PreviewRunes = 200

	DefaultCacheSize = 256
	DefaultCacheTTL  = 10 * time.Minute
)

var (
	searchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docingest_search_total",
			Help: "Similarity search requests by result.",
		},
		[]string{"result"},
	)
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docingest_query_cache_hits_total",
		Help: "Query embeddings served from cache.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docingest_query_cache_misses_total",
		Help: "Query embeddings computed by the generator.",
	})
)

// Searcher is the store capability search needs.
type Searcher interface {
	SimilaritySearch(ctx context.Context, query []float32, limit int) ([]models.SearchHit, error)
}

type Service struct {
	store    Searcher
	embedder embedding.Generator
	cache    *expirable.LRU[string, []float32]
	log      logging.Logger
}

// New builds a search service. cacheSize <= 0 disables query caching.
func New(s Searcher, g embedding.Generator, cacheSize int, ttl time.Duration, logger logging.Logger) *Service {
	svc := &Service{store: s, embedder: g, log: logger.With("module", "search")}
	if cacheSize > 0 {
		svc.cache = expirable.NewLRU[string, []float32](cacheSize, nil, ttl)
	}
	return svc
}

// Search embeds query and returns up to limit records, nearest first. It
// fails with common.ErrEmbeddingUnavailable rather than returning an empty
// result when no embedding can be computed.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]models.ResultView, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		searchTotal.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: empty query", common.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	if !s.embedder.Available() {
		searchTotal.WithLabelValues("unavailable").Inc()
		return nil, fmt.Errorf("%w: search disabled", common.ErrEmbeddingUnavailable)
	}

	vec, err := s.queryVector(ctx, query)
	if err != nil {
		searchTotal.WithLabelValues("unavailable").Inc()
		return nil, err
	}

	hits, err := s.store.SimilaritySearch(ctx, vec, limit)
	if err != nil {
		searchTotal.WithLabelValues("error").Inc()
		s.log.Error(ctx, "similarity search failed", "error", err)
		return nil, fmt.Errorf("search: %w", err)
	}

	out := make([]models.ResultView, 0, len(hits))
	for _, h := range hits {
		out = append(out, View(h))
	}
	searchTotal.WithLabelValues("ok").Inc()
	s.log.Debug(ctx, "search served", "results", len(out), "limit", limit)
	return out, nil
}

func (s *Service) queryVector(ctx context.Context, query string) ([]float32, error) {
	if s.cache != nil {
		if v, ok := s.cache.Get(query); ok {
			cacheHitsTotal.Inc()
			return v, nil
		}
		cacheMissesTotal.Inc()
	}

	res := s.embedder.Embed(ctx, query)
	if !res.OK() {
		if res.Err == nil {
			return nil, common.ErrEmbeddingUnavailable
		}
		return nil, res.Err
	}

	if s.cache != nil {
		s.cache.Add(query, res.Vector)
	}
	return res.Vector, nil
}

// View projects a hit into its bounded caller-facing form.
func View(h models.SearchHit) models.ResultView {
	return models.ResultView{
		ID:           h.Record.ID,
		StoredName:   h.Record.StoredName,
		OriginalName: h.Record.OriginalName,
		TextPreview:  Preview(h.Record.TextContent),
		Distance:     h.Distance,
		CreatedAt:    h.Record.CreatedAt,
		Category:     h.Record.Category,
		SourceKind:   h.Record.SourceKind,
	}
}

// Preview returns the first PreviewRunes runes of text, with "..." appended
// when anything was cut.
func Preview(text string) string {
	n := 0
	for i := range text {
		if n == PreviewRunes {
			return text[:i] + "..."
		}
		n++
	}
	return text
}
