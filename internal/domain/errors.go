package domain

import "errors"

var (
	ErrValidation       = errors.New("invalid event payload")
	ErrUnknownEvent     = errors.New("unknown event type")
	ErrDocumentNotFound = errors.New("document not found")
	ErrPersistence      = errors.New("persistence failure")
)
