package core

import "errors"

// Common errors.
var (
	ErrNotFound          = errors.New("document not found")
	ErrEmptyID           = errors.New("note ID cannot be empty")
	ErrAlreadySubscribed = errors.New("service is already subscribed")
	ErrClosed            = errors.New("collection is closed")
	ErrReadOnly          = errors.New("collection is in read-only mode")
)
