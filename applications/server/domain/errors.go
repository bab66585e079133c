package domain

import "errors"

var (
	// ErrNotFound covers both an unknown id and a descriptor whose blob has
	// gone missing (the dangling side is reconciled away before this is
	// returned).
	ErrNotFound = errors.New("file not found")
	// ErrExpired means the retention window has passed; returning it also
	// removes the blob and the descriptor.
	ErrExpired = errors.New("file expired")
	// ErrNoPayload means the upload carried no file payload.
	ErrNoPayload = errors.New("no file payload")
	// ErrTooLarge means the payload exceeds the configured upload limit.
	ErrTooLarge = errors.New("payload exceeds upload limit")
)
