// Package pipeline ingests one file at a time: fingerprint, screen, dedup,
// extract, embed, upload, persist and route the bytes to their final zone.
//
// Every call returns a models.PipelineResult; stage failures never escape as
// panics or errors. Terminal outcomes are appended to the audit log before
// Ingest returns, except when the store itself is unreachable.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dmitrijs2005/docingest/internal/common"
	"github.com/dmitrijs2005/docingest/internal/logging"
	"github.com/dmitrijs2005/docingest/internal/server/blobsink"
	"github.com/dmitrijs2005/docingest/internal/server/embedding"
	"github.com/dmitrijs2005/docingest/internal/server/extraction"
	"github.com/dmitrijs2005/docingest/internal/server/fingerprint"
	"github.com/dmitrijs2005/docingest/internal/server/mediatype"
	"github.com/dmitrijs2005/docingest/internal/server/models"
	"github.com/dmitrijs2005/docingest/internal/server/screening"
	"github.com/dmitrijs2005/docingest/internal/server/staging"
	"github.com/dmitrijs2005/docingest/internal/server/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	DefaultCategory   = "document"
	DefaultSourceKind = common.SourceUpload
	DefaultCreatedBy  = "user"
)

const (
	outcomeProcessed   = "processed"
	outcomeDuplicate   = "duplicate"
	outcomeQuarantined = "quarantined"
	outcomeFailed      = "failed"
)

var ingestTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "docingest_ingest_total",
		Help: "Ingestion requests by terminal outcome.",
	},
	[]string{"outcome"},
)

// Extractor turns staged bytes into text; extraction.Extractor satisfies it.
type Extractor interface {
	Extract(ctx context.Context, src extraction.Source) extraction.Result
}

// Stager is the part of staging.Area the pipeline needs.
type Stager interface {
	Receive(r io.Reader, originalName string) (string, error)
	MoveTo(ctx context.Context, path string, z staging.Zone, storedName string) (string, error)
}

// Deps are the collaborators of a Pipeline. Store and Staging are required;
// the rest fall back to the package defaults when nil.
type Deps struct {
	Fingerprint     func(path string) (fingerprint.Digest, error)
	DetectMediaType func(path string) (string, error)
	Screener        screening.Screener
	Extractor       Extractor
	Embedder        embedding.Generator
	Blobs           blobsink.Sink
	Store           store.Gateway
	Staging         Stager
	Logger          logging.Logger
	Now             func() time.Time
}

// Options carries deployment settings stamped onto every record.
type Options struct {
	Environment string
}

// Request describes one file already present in the incoming zone.
type Request struct {
	Path         string
	OriginalName string
	Category     string
	SourceKind   string
	CreatedBy    string
	Metadata     map[string]any
}

// Pipeline routes files from incoming to quarantine or processed and keeps
// the record store in step with the staging area.
type Pipeline struct {
	deps Deps
	opts Options
	log  logging.Logger
}

// New builds a Pipeline, filling unset optional Deps with defaults.
func New(d Deps, o Options) (*Pipeline, error) {
	if d.Store == nil {
		return nil, fmt.Errorf("%w: pipeline needs a store", common.ErrInvalidInput)
	}
	if d.Staging == nil {
		return nil, fmt.Errorf("%w: pipeline needs a staging area", common.ErrInvalidInput)
	}
	if d.Fingerprint == nil {
		d.Fingerprint = fingerprint.File
	}
	if d.DetectMediaType == nil {
		d.DetectMediaType = mediatype.DetectFile
	}
	if d.Screener == nil {
		d.Screener = screening.NewPolicyScreener(0, nil)
	}
	if d.Extractor == nil {
		d.Extractor = extraction.New()
	}
	if d.Embedder == nil {
		d.Embedder = embedding.Unavailable{Reason: "no generator configured"}
	}
	if d.Blobs == nil {
		d.Blobs = blobsink.Disabled{}
	}
	if d.Logger == nil {
		d.Logger = logging.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}

	return &Pipeline{deps: d, opts: o, log: d.Logger.With("module", "pipeline")}, nil
}

// StoredName derives the stable on-disk and in-store name of a file.
func StoredName(fp, originalName string) string {
	return fp + "_" + staging.SanitizeName(originalName)
}

// IngestReader stages r into the incoming zone and ingests it.
func (p *Pipeline) IngestReader(ctx context.Context, r io.Reader, req Request) models.PipelineResult {
	ctx = context.WithoutCancel(ctx)
	path, err := p.deps.Staging.Receive(r, req.OriginalName)
	if err != nil {
		p.log.Error(ctx, "failed to stage upload", "original_name", req.OriginalName, "error", err)
		ingestTotal.WithLabelValues(outcomeFailed).Inc()
		return models.PipelineResult{
			ScreenStatus: common.ScreenPending,
			Message:      fmt.Sprintf("Processing failed: %v", err),
			Err:          err,
		}
	}
	req.Path = path
	return p.Ingest(ctx, req)
}

// Ingest runs the pipeline over the file at req.Path. Cancellation of ctx
// does not interrupt a run: the record and the staged bytes always end up in
// a consistent state.
func (p *Pipeline) Ingest(ctx context.Context, req Request) models.PipelineResult {
	ctx = context.WithoutCancel(ctx)
	req = withDefaults(req)
	log := p.log.With("original_name", req.OriginalName)

	// received
	digest, err := p.deps.Fingerprint(req.Path)
	if err != nil {
		return p.fail(ctx, log, nil, common.ScreenPending, fmt.Errorf("%w: %w", common.ErrStagingIO, err))
	}
	storedName := StoredName(digest.Hex, req.OriginalName)
	log = log.With("fingerprint", digest.Hex, "stored_name", storedName)

	mt, err := p.deps.DetectMediaType(req.Path)
	if err != nil {
		log.Warn(ctx, "media type detection failed", "error", err)
		mt = mediatype.Fallback
	}
	log.Debug(ctx, "received", "media_type", mt, "size", digest.Size)

	verdict := p.deps.Screener.Screen(ctx, screening.Subject{Path: req.Path, MediaType: mt, Size: digest.Size})
	if !verdict.Accepted {
		return p.quarantine(ctx, log, req.Path, storedName, verdict.Reason)
	}
	screenedAt := p.deps.Now().UTC()
	log.Debug(ctx, "screened", "reason", verdict.Reason)

	existing, err := p.deps.Store.FindByFingerprint(ctx, digest.Hex)
	switch {
	case err == nil:
		return p.duplicate(ctx, log, req.Path, storedName, existing.ID)
	case !errors.Is(err, common.ErrorNotFound):
		return p.fail(ctx, log, nil, common.ScreenClean, err)
	}

	ext := p.deps.Extractor.Extract(ctx, extraction.Source{
		Name:      req.OriginalName,
		MediaType: mt,
		Open:      func() (io.ReadCloser, error) { return os.Open(req.Path) },
	})
	if ext.Err != nil {
		log.Warn(ctx, "extraction degraded", "error", ext.Err)
	}
	log.Debug(ctx, "extracted", "text_len", len(ext.Text), "degraded", ext.Degraded)

	vector := p.embed(ctx, log, ext.Text)
	log.Debug(ctx, "embedded", "has_vector", vector != nil)

	rec := &models.FileRecord{
		Fingerprint:  digest.Hex,
		StoredName:   storedName,
		OriginalName: req.OriginalName,
		MediaType:    mt,
		ByteSize:     digest.Size,
		TextContent:  ext.Text,
		Embedding:    vector,
		SourceKind:   req.SourceKind,
		Category:     req.Category,
		ScreenStatus: common.ScreenClean,
		ScreenedAt:   screenedAt,
		BlobLocation: p.upload(ctx, log, req.Path, storedName, digest.Size),
		Metadata:     p.metadata(req.Metadata, screenedAt),
		CreatedBy:    req.CreatedBy,
		Status:       common.RecordStatusProcessed,
		Environment:  p.opts.Environment,
	}

	id, created, err := p.deps.Store.Upsert(ctx, rec)
	if err != nil {
		return p.fail(ctx, log, nil, common.ScreenClean, err)
	}
	log.Debug(ctx, "stored", "record_id", id, "created", created)

	if !created {
		// a concurrent ingestion of the same bytes won the insert
		return p.duplicate(ctx, log, req.Path, storedName, id)
	}

	if _, err := p.deps.Staging.MoveTo(ctx, req.Path, staging.Processed, storedName); err != nil {
		return p.fail(ctx, log, &id, common.ScreenClean, err)
	}

	log.Info(ctx, "file processed", "record_id", id)
	ingestTotal.WithLabelValues(outcomeProcessed).Inc()
	return models.PipelineResult{
		Success:      true,
		RecordID:     &id,
		Message:      "File processed successfully",
		ScreenStatus: common.ScreenClean,
	}
}

func withDefaults(req Request) Request {
	if req.Category == "" {
		req.Category = DefaultCategory
	}
	if req.SourceKind == "" {
		req.SourceKind = DefaultSourceKind
	}
	if req.CreatedBy == "" {
		req.CreatedBy = DefaultCreatedBy
	}
	if req.OriginalName == "" {
		req.OriginalName = "file"
	}
	return req
}

func (p *Pipeline) metadata(extra map[string]any, at time.Time) map[string]any {
	m := make(map[string]any, len(extra)+2)
	for k, v := range extra {
		m[k] = v
	}
	m["processed_at"] = at.Format(time.RFC3339)
	m["environment"] = p.opts.Environment
	return m
}

// embed is best-effort: a missing vector never fails ingestion.
func (p *Pipeline) embed(ctx context.Context, log logging.Logger, text string) []float32 {
	if !p.deps.Embedder.Available() {
		return nil
	}
	res := p.deps.Embedder.Embed(ctx, text)
	if !res.OK() {
		log.Warn(ctx, "embedding unavailable, storing without vector", "error", res.Err)
		return nil
	}
	return res.Vector
}

// upload is best-effort and returns "" when the sink is disabled or fails.
func (p *Pipeline) upload(ctx context.Context, log logging.Logger, path, storedName string, size int64) string {
	if !p.deps.Blobs.Enabled() {
		return ""
	}
	f, err := os.Open(path)
	if err != nil {
		log.Warn(ctx, "blob upload skipped", "error", err)
		return ""
	}
	defer f.Close()

	key := blobsink.Key(p.opts.Environment, p.deps.Now().UTC(), storedName)
	url, err := p.deps.Blobs.Put(ctx, key, f, size)
	if err != nil {
		log.Warn(ctx, "blob upload failed", "key", key, "error", err)
		return ""
	}
	return url
}

func (p *Pipeline) quarantine(ctx context.Context, log logging.Logger, path, storedName, reason string) models.PipelineResult {
	res := models.PipelineResult{
		ScreenStatus: common.ScreenInfected,
		Message:      "File quarantined: " + reason,
		Err:          fmt.Errorf("%w: %s", common.ErrRejectedContent, reason),
	}

	if _, err := p.deps.Staging.MoveTo(ctx, path, staging.Quarantine, storedName); err != nil {
		log.Error(ctx, "failed to quarantine file", "reason", reason, "error", err)
		res.Message = fmt.Sprintf("File rejected (%s) but could not be quarantined: %v", reason, err)
	}

	p.audit(ctx, log, nil, common.ActionFileRejected, common.AuditRejected,
		fmt.Sprintf("File %s rejected: %s", storedName, reason))

	log.Warn(ctx, "file quarantined", "reason", reason)
	ingestTotal.WithLabelValues(outcomeQuarantined).Inc()
	return res
}

// duplicate routes already-known bytes to processed and reports the existing
// record. The stored record is left untouched.
func (p *Pipeline) duplicate(ctx context.Context, log logging.Logger, path, storedName string, id int64) models.PipelineResult {
	if _, err := p.deps.Staging.MoveTo(ctx, path, staging.Processed, storedName); err != nil {
		return p.fail(ctx, log, &id, common.ScreenClean, err)
	}

	p.audit(ctx, log, &id, common.ActionFileDeduplicated, common.AuditDuplicate,
		fmt.Sprintf("File %s already processed", storedName))

	log.Info(ctx, "file already processed", "record_id", id)
	ingestTotal.WithLabelValues(outcomeDuplicate).Inc()
	return models.PipelineResult{
		Success:      true,
		RecordID:     &id,
		Message:      "File already processed",
		ScreenStatus: common.ScreenClean,
	}
}

// fail reports a mandatory-stage failure. The bytes stay where they are.
func (p *Pipeline) fail(ctx context.Context, log logging.Logger, id *int64, screenStatus string, err error) models.PipelineResult {
	var msg string
	switch {
	case errors.Is(err, common.ErrStoreFailure):
		msg = fmt.Sprintf("Database storage failed: %v", err)
	case errors.Is(err, common.ErrStagingIO) && id != nil:
		msg = fmt.Sprintf("Record %d stored but file could not be moved: %v", *id, err)
	default:
		msg = fmt.Sprintf("Processing failed: %v", err)
	}

	p.audit(ctx, log, id, common.ActionFileProcessing, common.AuditFailed, msg)

	log.Error(ctx, "file processing failed", "reason", msg)
	ingestTotal.WithLabelValues(outcomeFailed).Inc()
	return models.PipelineResult{
		RecordID:     id,
		Message:      msg,
		ScreenStatus: screenStatus,
		Err:          err,
	}
}

func (p *Pipeline) audit(ctx context.Context, log logging.Logger, id *int64, action, status, msg string) {
	err := p.deps.Store.AppendAudit(ctx, &models.AuditEntry{
		RecordID:    id,
		Action:      action,
		Status:      status,
		Message:     msg,
		Environment: p.opts.Environment,
	})
	if err != nil {
		log.Warn(ctx, "failed to append audit entry", "action", action, "error", err)
	}
}
