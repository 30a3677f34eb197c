package consolidation

import (
	"context"
	"strings"
)

type ctxKey int

const requestIDCtxKey ctxKey = iota

// WithRequestID tags ctx with the id used to correlate consolidation logs.
// Blank ids leave ctx untouched.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDCtxKey, requestID)
}

// RequestID returns the id attached by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDCtxKey).(string)
	return id
}
