package domain

import "errors"

// Sentinel errors used throughout the application.
// The HTTP layer translates these to status codes via a single mapError.
var (
	ErrNoQueue          = errors.New("no work queue exists for this cycle")
	ErrIncompleteResult = errors.New("analysis result incomplete")
	ErrUnauthorized     = errors.New("invalid or missing trigger token")
	ErrCursorRewind     = errors.New("processed count may only increase")
)
