// Package common defines shared constants and sentinel errors used across
// the ingestion and search layers. Callers should use errors.Is to match
// these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Pipeline stage outcomes.
	ErrRejectedContent      = errors.New("rejected content")
	ErrExtractionDegraded   = errors.New("extraction degraded")
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// Infrastructure failures.
	ErrStoreFailure        = errors.New("store failure")
	ErrStagingIO           = errors.New("staging io failure")
	ErrBlobSinkUnavailable = errors.New("blob sink unavailable")

	// Validation errors.
	ErrInvalidInput = errors.New("invalid input")
)
