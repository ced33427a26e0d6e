// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the proxy's CORS posture: any origin may read GET
// responses. The full header set is written on every response, including
// errors and requests without an Origin header, and OPTIONS on any path is
// answered with 204 before routing.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS header values shared with gin-contrib/cors.
var (
	corsMethods = []string{http.MethodGet, http.MethodOptions}
	corsHeaders = []string{"Content-Type"}
	corsExpose  = []string{requestIDHeader, "X-Cache"}
)

// CORS returns a middleware that sets Access-Control-Allow-Origin: *, the
// allowed methods and headers, and the preflight max-age on every response.
// Requests carrying Origin are additionally run through gin-contrib/cors,
// which answers their preflights; remaining OPTIONS requests are ended here
// with 204 and no body.
func CORS(maxAge time.Duration) gin.HandlerFunc {
	contrib := cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     corsMethods,
		AllowHeaders:     corsHeaders,
		ExposeHeaders:    corsExpose,
		AllowCredentials: false,
		MaxAge:           maxAge,
	})
	// Same formatting as gin-contrib/cors so the values do not depend on
	// whether the request carried Origin.
	methods := strings.Join(corsMethods, ",")
	headers := strings.Join(convert(corsHeaders, http.CanonicalHeaderKey), ",")
	expose := strings.Join(convert(corsExpose, http.CanonicalHeaderKey), ",")
	age := strconv.FormatInt(int64(maxAge/time.Second), 10)

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", methods)
		h.Set("Access-Control-Allow-Headers", headers)
		h.Set("Access-Control-Max-Age", age)
		h.Set("Access-Control-Expose-Headers", expose)

		if c.GetHeader("Origin") != "" {
			contrib(c)
			if c.IsAborted() {
				return
			}
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func convert(vals []string, fn func(string) string) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = fn(v)
	}
	return out
}

// AllowMethods answers 405 {"error":"Method not allowed"} for any method not
// in allowed, on every path, before routing.
func AllowMethods(allowed ...string) gin.HandlerFunc {
	set := make(map[string]struct{}, len(allowed))
	for _, m := range allowed {
		set[m] = struct{}{}
	}
	allow := strings.Join(allowed, ", ")
	return func(c *gin.Context) {
		if _, ok := set[c.Request.Method]; ok {
			c.Next()
			return
		}
		c.Header("Allow", allow)
		c.AbortWithStatusJSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
	}
}
