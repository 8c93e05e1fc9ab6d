package common

// Source kinds recorded on every ingested record.
const (
	SourceUpload         = "upload"
	SourceAPIUpload      = "api_upload"
	SourceFormSubmission = "form_submission"
)

// Screen statuses.
const (
	ScreenClean    = "clean"
	ScreenInfected = "infected"
	ScreenPending  = "pending"
)

// Audit actions and statuses.
const (
	ActionFileProcessed    = "file_processed"
	ActionFileRejected     = "file_rejected"
	ActionFileDeduplicated = "file_deduplicated"
	ActionFileProcessing   = "file_processing"
	ActionFormSubmitted    = "form_submitted"

	AuditSuccess   = "success"
	AuditRejected  = "rejected"
	AuditDuplicate = "duplicate"
	AuditFailed    = "failed"
)

// RecordStatusProcessed is the lifecycle status of a stored record.
const RecordStatusProcessed = "processed"

// EmbeddingDimension is the fixed size of every stored embedding vector.
const EmbeddingDimension = 384
