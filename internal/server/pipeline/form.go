package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/docingest/internal/common"
	"github.com/dmitrijs2005/docingest/internal/server/fingerprint"
	"github.com/dmitrijs2005/docingest/internal/server/models"
	"github.com/dmitrijs2005/docingest/internal/server/staging"
)

const CategoryFormData = "form_data"

// Form is a contact form submitted through the web layer.
type Form struct {
	Organization string
	Email        string
	Description  string
}

func (f Form) text() string {
	return fmt.Sprintf("Organization: %s\nEmail: %s\nDescription: %s", f.Organization, f.Email, f.Description)
}

// SubmitForm stores a form as a text record. Forms skip screening and
// staging; identical submissions resolve to the same record.
func (p *Pipeline) SubmitForm(ctx context.Context, f Form) (models.PipelineResult, error) {
	ctx = context.WithoutCancel(ctx)
	f.Organization = strings.TrimSpace(f.Organization)
	f.Email = strings.TrimSpace(f.Email)
	f.Description = strings.TrimSpace(f.Description)
	if f.Organization == "" || f.Email == "" || f.Description == "" {
		return models.PipelineResult{}, fmt.Errorf("%w: organization, email and description are required", common.ErrInvalidInput)
	}

	text := f.text()
	digest := fingerprint.Bytes([]byte(text))
	now := p.deps.Now().UTC()
	log := p.log.With("fingerprint", digest.Hex, "source_kind", common.SourceFormSubmission)

	rec := &models.FileRecord{
		Fingerprint:  digest.Hex,
		StoredName:   fmt.Sprintf("form_%d_%s.txt", now.Unix(), staging.SanitizeName(strings.ToLower(f.Organization))),
		OriginalName: "form_submission_" + f.Organization,
		MediaType:    "text/plain",
		ByteSize:     digest.Size,
		TextContent:  text,
		Embedding:    p.embed(ctx, log, text),
		SourceKind:   common.SourceFormSubmission,
		Category:     CategoryFormData,
		ScreenStatus: common.ScreenClean,
		ScreenedAt:   now,
		Metadata: map[string]any{
			"organization": f.Organization,
			"email":        f.Email,
			"submitted_at": now.Format(time.RFC3339),
			"environment":  p.opts.Environment,
		},
		CreatedBy:   f.Email,
		Status:      common.RecordStatusProcessed,
		Environment: p.opts.Environment,
	}

	id, created, err := p.deps.Store.Upsert(ctx, rec)
	if err != nil {
		log.Error(ctx, "form submission failed", "error", err)
		ingestTotal.WithLabelValues(outcomeFailed).Inc()
		return models.PipelineResult{}, fmt.Errorf("store form: %w", err)
	}

	if created {
		ingestTotal.WithLabelValues(outcomeProcessed).Inc()
	} else {
		ingestTotal.WithLabelValues(outcomeDuplicate).Inc()
	}
	p.audit(ctx, log, &id, common.ActionFormSubmitted, common.AuditSuccess,
		fmt.Sprintf("Form from %s stored", f.Organization))

	log.Info(ctx, "form submitted", "record_id", id, "created", created)
	return models.PipelineResult{
		Success:      true,
		RecordID:     &id,
		Message:      "Form submitted successfully",
		ScreenStatus: common.ScreenClean,
	}, nil
}
