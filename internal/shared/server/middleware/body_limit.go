package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"maintenance-backend/internal/shared/server/respond"
)

// BodyLimit caps request bodies at maxBytes. Oversized requests declared via
// Content-Length are rejected up front; others fail when the handler reads
// past the limit.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes <= 0 || c.Request.Body == nil {
			c.Next()
			return
		}
		if c.Request.ContentLength > maxBytes {
			respond.Error(c, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large", gin.H{
				"maxBytes": maxBytes,
			})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
