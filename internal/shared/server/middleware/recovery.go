package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"maintenance-backend/internal/shared/server/respond"
	"maintenance-backend/internal/shared/telemetry"
)

// Recovery turns a panic into a 500 envelope. The stack is logged, never
// returned to the client.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			fields := map[string]any{
				"request_id": RequestIDFromContext(c),
				"method":     c.Request.Method,
				"route":      c.FullPath(),
				"panic":      fmt.Sprint(rec),
				"stack":      string(debug.Stack()),
			}
			if assetID := c.GetString("assetId"); assetID != "" {
				fields["asset_id"] = assetID
			}
			if checklistID := c.GetString("checklistId"); checklistID != "" {
				fields["checklist_id"] = checklistID
			}
			telemetry.Error("http.panic", fields)
			if c.Writer.Written() {
				c.Abort()
				return
			}
			respond.Error(c, http.StatusInternalServerError, "internal_error", "unexpected server error", nil)
		}()
		c.Next()
	}
}
