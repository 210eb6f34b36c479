package model

import "errors"

// Error taxonomy for the ingestion pipeline. Callers match with errors.Is;
// producers wrap with fmt.Errorf("%w: ...", ErrX) to add context.
var (
	// ErrConfiguration is returned when a required identifier (tenant, session,
	// document) is missing before an operation. Never retried.
	ErrConfiguration = errors.New("configuration error")

	// ErrStorage is returned when a chunk or final-file read/write fails.
	// Assembly attempts failing with it are eligible for retry.
	ErrStorage = errors.New("storage error")

	// ErrAssembly is returned when an expected chunk index is missing at
	// assembly time. Not retryable without new data from the client.
	ErrAssembly = errors.New("assembly error")

	// ErrConversion wraps failures of the external media-encoding engine.
	ErrConversion = errors.New("conversion error")

	// ErrInvalidArgument signals a caller bug in value-object construction.
	ErrInvalidArgument = errors.New("invalid argument")
)
