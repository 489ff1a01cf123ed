package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedFormat is returned by the document loader for unknown file extensions.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrDimensionMismatch means the embedding model changed shape mid-run.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrGenerationFailed wraps any language-model backend failure.
	ErrGenerationFailed = errors.New("generation failed")
	// ErrEmptyDocument is returned when a document yields no fragments.
	ErrEmptyDocument = errors.New("document has no text")
)

// DimensionError reports the established and offending embedding dimensions.
type DimensionError struct {
	Want int
	Got  int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("%s: want %d, got %d", ErrDimensionMismatch, e.Want, e.Got)
}

func (e *DimensionError) Unwrap() error { return ErrDimensionMismatch }
