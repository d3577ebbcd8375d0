package types

import "errors"

var (
	// ErrNotFound indicates that no record exists for the requested ID.
	// Load returns it directly; Update and Delete report absence through
	// their boolean result instead.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidArgument indicates a structurally invalid input: an empty
	// ID, an unknown filter operator, a non-scope key passed as a scope
	// filter, or a filter value whose type cannot be compared against the
	// stored metadata value.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDimensionMismatch indicates that candidate embeddings do not share
	// the query vector's dimension. This is fatal input corruption, never
	// silently truncated or padded.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
