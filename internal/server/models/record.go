// Package models defines the records persisted by the record store and the
// values returned by the ingestion and search operations.
package models

import "time"

// FileRecord is the durable unit of ingested content. Fingerprint is unique
// across the store; a record is written once and never updated afterwards.
type FileRecord struct {
	ID int64

	// Fingerprint is the hex SHA-256 of the raw bytes.
	Fingerprint  string
	StoredName   string
	OriginalName string

	MediaType string
	ByteSize  int64

	TextContent string
	// Embedding is nil when no vector could be produced.
	Embedding []float32

	SourceKind   string
	Category     string
	ScreenStatus string
	ScreenedAt   time.Time
	// BlobLocation is empty when the blob sink was disabled or failed.
	BlobLocation string
	Metadata     map[string]any
	CreatedBy    string
	Status       string
	Environment  string

	CreatedAt time.Time
}

// HasEmbedding reports whether the record carries a vector.
func (r *FileRecord) HasEmbedding() bool {
	return len(r.Embedding) > 0
}
