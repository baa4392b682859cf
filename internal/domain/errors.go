package domain

import "errors"

var (
	// ErrNotFound indicates resource not found
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidRequest indicates invalid request
	ErrInvalidRequest = errors.New("invalid request")
	// ErrUnauthorized indicates unauthorized access
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRateLimited indicates rate limit exceeded
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrAlreadyProcessing indicates an ingestion run is in flight for the paper
	ErrAlreadyProcessing = errors.New("paper is already being processed")
	// ErrNoExtractableText indicates the document parsed but yielded no text
	ErrNoExtractableText = errors.New("no extractable text")
	// ErrEmbedding indicates the embedding provider failed
	ErrEmbedding = errors.New("embedding failed")
	// ErrGeneration indicates the generation model failed
	ErrGeneration = errors.New("generation failed")
)
