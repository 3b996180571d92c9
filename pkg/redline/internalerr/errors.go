package internalerr

import "errors"

// Sentinel errors for common cases
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrOracleUnavailable = errors.New("oracle unavailable")
	ErrQueueTimeout      = errors.New("queue wait timed out")
	ErrCacheCorrupt      = errors.New("cache entry corrupt")
	ErrClosed            = errors.New("already closed")
)
