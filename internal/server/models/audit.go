package models

import "time"

// AuditEntry is an append-only row describing one terminal pipeline outcome.
type AuditEntry struct {
	ID int64
	// RecordID is nil when no record exists, e.g. for rejected content.
	RecordID    *int64
	Action      string
	Status      string
	Message     string
	Environment string
	CreatedAt   time.Time
}
