package store

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/docingest/internal/common"
	"github.com/dmitrijs2005/docingest/internal/server/models"
)

// Memory is an in-process Gateway. Ranking uses cosine distance, matching the
// pgvector <=> operator used by Postgres.
type Memory struct {
	mu          sync.RWMutex
	environment string
	nextID      int64
	byFP        map[string]*models.FileRecord
	order       []*models.FileRecord
	audit       []models.AuditEntry
}

func NewMemory(environment string) *Memory {
	return &Memory{environment: environment, byFP: make(map[string]*models.FileRecord)}
}

func (m *Memory) FindByFingerprint(_ context.Context, fingerprint string) (*models.FileRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.byFP[fingerprint]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *Memory) Upsert(_ context.Context, rec *models.FileRecord) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.byFP[rec.Fingerprint]; ok {
		return existing.ID, false, nil
	}

	m.nextID++
	cp := *rec
	cp.ID = m.nextID
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	if cp.Environment == "" {
		cp.Environment = m.environment
	}
	m.byFP[cp.Fingerprint] = &cp
	m.order = append(m.order, &cp)

	id := cp.ID
	m.audit = append(m.audit, models.AuditEntry{
		ID:          int64(len(m.audit) + 1),
		RecordID:    &id,
		Action:      common.ActionFileProcessed,
		Status:      common.AuditSuccess,
		Message:     "File " + cp.StoredName + " processed successfully",
		Environment: m.environment,
		CreatedAt:   cp.CreatedAt,
	})
	return cp.ID, true, nil
}

func (m *Memory) AppendAudit(_ context.Context, e *models.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	cp.ID = int64(len(m.audit) + 1)
	if cp.Environment == "" {
		cp.Environment = m.environment
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	m.audit = append(m.audit, cp)
	return nil
}

func (m *Memory) SimilaritySearch(_ context.Context, query []float32, limit int) ([]models.SearchHit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hits := make([]models.SearchHit, 0, len(m.order))
	for _, rec := range m.order {
		if !rec.HasEmbedding() {
			continue
		}
		hits = append(hits, models.SearchHit{Record: *rec, Distance: CosineDistance(query, rec.Embedding)})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if limit >= 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

// Records returns a snapshot of stored records in insertion order.
func (m *Memory) Records() []models.FileRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.FileRecord, 0, len(m.order))
	for _, r := range m.order {
		out = append(out, *r)
	}
	return out
}

// AuditEntries returns a snapshot of the audit log.
func (m *Memory) AuditEntries() []models.AuditEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.AuditEntry(nil), m.audit...)
}

// CosineDistance returns 1 - cos(a, b). Zero vectors are at distance 1.
func CosineDistance(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	for _, v := range a {
		na += float64(v) * float64(v)
	}
	for _, v := range b {
		nb += float64(v) * float64(v)
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
