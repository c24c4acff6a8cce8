package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnsupportedMedia = errors.New("unsupported media type")
	ErrTemporary        = errors.New("temporary failure")

	// Retrieval failures. A source failure is recovered by the fusion
	// engine; the others surface to the caller.
	ErrSourceUnavailable  = errors.New("retrieval source unavailable")
	ErrEmbeddingFailure   = errors.New("embedding failure")
	ErrEmbeddingDimension = errors.New("embedding dimension mismatch")
	ErrSynthesisFailure   = errors.New("synthesis failure")
	ErrUnknownTemplate    = errors.New("unknown graph query template")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
