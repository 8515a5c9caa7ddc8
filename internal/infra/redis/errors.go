package redis

import "errors"

// Redis-specific errors.
var (
	// ErrCacheMiss is returned when a cached item is not found.
	ErrCacheMiss = errors.New("cache: key not found")
)
