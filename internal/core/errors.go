package core

import "errors"

var (
	// ErrSessionNotFound is returned for unknown or soft-deleted sessions.
	ErrSessionNotFound = errors.New("session not found")

	// ErrStorageUnavailable marks a store failure. Fatal for the turn and
	// surfaced to the caller as retryable; the only state that may already
	// exist is the user-message write.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrMalformedSummary marks a summary the model could not produce in
	// the five-field schema even after one corrective retry. Recovered by
	// skipping compaction for the turn; never user-facing.
	ErrMalformedSummary = errors.New("malformed summary")

	// ErrRewriteClassification marks an unparseable ambiguity judgment.
	// Recovered by treating the query as clear; never user-facing.
	ErrRewriteClassification = errors.New("rewrite classification failed")

	// ErrGenerationUnavailable marks a failed answer generation. Fatal for
	// the turn; the user message stays persisted so a retry does not
	// duplicate it.
	ErrGenerationUnavailable = errors.New("generation unavailable")
)
