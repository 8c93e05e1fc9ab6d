package models

import "time"

// PipelineResult is returned by every ingestion call.
type PipelineResult struct {
	Success      bool   `json:"success"`
	RecordID     *int64 `json:"file_id"`
	Message      string `json:"message"`
	ScreenStatus string `json:"scan_status"`

	// Err classifies a rejected or failed outcome with the common sentinels.
	Err error `json:"-"`
}

// SearchHit is a stored record paired with its vector distance to a query.
type SearchHit struct {
	Record   FileRecord
	Distance float64
}

// ResultView is the bounded projection of a SearchHit handed to callers.
type ResultView struct {
	ID           int64     `json:"id"`
	StoredName   string    `json:"filename"`
	OriginalName string    `json:"original_filename"`
	TextPreview  string    `json:"text_preview"`
	Distance     float64   `json:"similarity"`
	CreatedAt    time.Time `json:"processed_date"`
	Category     string    `json:"category"`
	SourceKind   string    `json:"source_type"`
}
