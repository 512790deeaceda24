package dispatch

import "errors"

// Sentinel errors for the dispatch service layer.
var (
	ErrNotFound = errors.New("campaign not found")
)
