package app

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrDocumentNotFound  = errors.New("document not found")
	ErrNoExtractableText = errors.New("no extractable text in document")
)

// StatusConflictError is returned when an operation needs an indexed
// document but the document is still processing or failed ingestion.
type StatusConflictError struct {
	DocumentID string
	Status     string
}

func (e *StatusConflictError) Error() string {
	return fmt.Sprintf("document %s is not queryable: status is %s", e.DocumentID, e.Status)
}
