// Package services orchestrates validation, caching, and upstream fetches for
// the thread and search endpoints.
//
// Errors returned here are translated into client messages by the HTTP
// handlers; the service never decides response wording.
package services

import "errors"

var (
	// ErrUpstreamUnavailable wraps network failures, exhausted retries that
	// ended in a transport error, and upstream bodies that are not valid JSON.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)
