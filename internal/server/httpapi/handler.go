// Package httpapi is the thin HTTP adapter in front of the ingestion
// pipeline, similarity search and health checks.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/docingest/internal/common"
	"github.com/dmitrijs2005/docingest/internal/logging"
	"github.com/dmitrijs2005/docingest/internal/server/health"
	"github.com/dmitrijs2005/docingest/internal/server/models"
	"github.com/dmitrijs2005/docingest/internal/server/pipeline"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxMemory is how much of a multipart upload is buffered in memory before
// spilling to temp files.
const maxMemory = 32 << 20

type Ingester interface {
	IngestReader(ctx context.Context, r io.Reader, req pipeline.Request) models.PipelineResult
	SubmitForm(ctx context.Context, f pipeline.Form) (models.PipelineResult, error)
}

type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]models.ResultView, error)
}

type HealthChecker interface {
	Check(ctx context.Context) health.Report
}

type Handler struct {
	ingester Ingester
	searcher Searcher
	health   HealthChecker
	logger   logging.Logger
}

func NewHandler(i Ingester, s Searcher, h HealthChecker, l logging.Logger) *Handler {
	return &Handler{ingester: i, searcher: s, health: h, logger: l.With("module", "httpapi")}
}

// Routes builds the chi router with metrics and panic recovery.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware())

	r.Post("/upload", h.upload)
	r.Post("/form/submit", h.submitForm)
	r.Get("/search", h.search)
	r.Get("/health", h.healthCheck)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

type errorResponse struct {
	Detail string `json:"detail"`
}

type searchResponse struct {
	Query   string              `json:"query"`
	Results []models.ResultView `json:"results"`
}

type healthResponse struct {
	Status      string         `json:"status"`
	Environment string         `json:"environment"`
	Timestamp   time.Time      `json:"timestamp"`
	Services    healthServices `json:"services"`
}

type healthServices struct {
	Database   string `json:"database"`
	Embeddings string `json:"embeddings"`
	Storage    string `json:"storage"`
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseMultipartForm(maxMemory); err != nil {
		h.writeError(ctx, w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(ctx, w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	h.logger.Info(ctx, "upload received", "filename", header.Filename, "size", header.Size)

	res := h.ingester.IngestReader(ctx, file, pipeline.Request{
		OriginalName: header.Filename,
		Category:     r.FormValue("category"),
		SourceKind:   common.SourceAPIUpload,
		CreatedBy:    r.FormValue("created_by"),
	})
	h.writeJSON(ctx, w, http.StatusOK, res)
}

func (h *Handler) submitForm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseMultipartForm(maxMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		h.writeError(ctx, w, http.StatusBadRequest, "invalid form: "+err.Error())
		return
	}

	res, err := h.ingester.SubmitForm(ctx, pipeline.Form{
		Organization: r.FormValue("organization"),
		Email:        r.FormValue("email"),
		Description:  r.FormValue("description"),
	})
	if err != nil {
		if errors.Is(err, common.ErrInvalidInput) {
			h.writeError(ctx, w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error(ctx, "form submission failed", "error", err)
		h.writeError(ctx, w, http.StatusInternalServerError, "Failed to store form data")
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, res)
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query().Get("query")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(ctx, w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}

	results, err := h.searcher.Search(ctx, query, limit)
	switch {
	case errors.Is(err, common.ErrInvalidInput):
		h.writeError(ctx, w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, common.ErrEmbeddingUnavailable):
		h.writeError(ctx, w, http.StatusServiceUnavailable, "Embedding model not available")
		return
	case err != nil:
		h.logger.Error(ctx, "search failed", "error", err)
		h.writeError(ctx, w, http.StatusInternalServerError, "search failed")
		return
	}

	h.writeJSON(ctx, w, http.StatusOK, searchResponse{Query: query, Results: results})
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	rep := h.health.Check(r.Context())

	resp := healthResponse{
		Status:      "healthy",
		Environment: rep.Environment,
		Timestamp:   rep.Timestamp,
		Services: healthServices{
			Database:   rep.Store,
			Embeddings: rep.Embeddings,
			Storage:    rep.BlobSink,
		},
	}
	code := http.StatusOK
	if !rep.Healthy() {
		resp.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	h.writeJSON(r.Context(), w, code, resp)
}

func (h *Handler) writeJSON(ctx context.Context, w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn(ctx, "failed to write response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code int, detail string) {
	h.writeJSON(ctx, w, code, errorResponse{Detail: detail})
}
