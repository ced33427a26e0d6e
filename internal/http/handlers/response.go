// Package handlers provides the HTTP handlers of the proxy.
//
// Every failure is written as a single-field JSON envelope:
//
//	HTTP/1.1 400 Bad Request
//	{ "error": "Missing \"url\" parameter" }
//
// Successful thread and search responses pass the upstream JSON through
// unchanged.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/redditify-proxy/internal/http/middleware"
)

// ErrorResponse is the error envelope returned by all endpoints.
type ErrorResponse struct {
	// Human-readable message (safe to show to users)
	Error string `json:"error" example:"Invalid Reddit URL"`
}

// fail aborts the request with an ErrorResponse. Server errors (>=500) are
// logged with the request-scoped logger, including cause when non-nil.
func fail(c *gin.Context, status int, msg string, cause error) {
	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		ev := lg.Error().Int("status", status).Str("message", msg)
		if cause != nil {
			ev = ev.Err(cause)
		}
		ev.Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Error: msg})
}

// Fail is the exported variant of fail for the router's fallbacks.
func Fail(c *gin.Context, status int, msg string) { fail(c, status, msg, nil) }
