package rag

import (
	"errors"
	"fmt"
)

// ErrIndexUnavailable reports that the document index has not been
// built or failed to build. Callers surface this instead of treating
// the condition as an empty search result.
var ErrIndexUnavailable = errors.New("document index unavailable")

// ErrUnsupportedFormat reports that no extractor handles a file type.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// ExtractionError represents a failure to extract text from a file.
type ExtractionError struct {
	Extractor string // Extractor that failed
	FilePath  string // File being extracted
	Err       error  // Underlying error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("[%s] failed to extract %s: %v", e.Extractor, e.FilePath, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// NewExtractionError creates a new ExtractionError.
func NewExtractionError(extractor, filePath string, err error) *ExtractionError {
	return &ExtractionError{
		Extractor: extractor,
		FilePath:  filePath,
		Err:       err,
	}
}

// IndexError represents a failure while building or updating the index.
type IndexError struct {
	Operation string // Operation that failed (build, ingest, delete)
	Document  string // Document involved, if any
	Err       error  // Underlying error
}

func (e *IndexError) Error() string {
	if e.Document != "" {
		return fmt.Sprintf("index %s failed for %s: %v", e.Operation, e.Document, e.Err)
	}
	return fmt.Sprintf("index %s failed: %v", e.Operation, e.Err)
}

func (e *IndexError) Unwrap() error {
	return e.Err
}

// NewIndexError creates a new IndexError.
func NewIndexError(operation, document string, err error) *IndexError {
	return &IndexError{
		Operation: operation,
		Document:  document,
		Err:       err,
	}
}
