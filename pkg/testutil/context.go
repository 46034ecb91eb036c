package testutil

import (
	"net/http"
	"time"

	"mailomat/pkg/requestcontext"
)

// WithRequestContext sets what the request middleware would: a request id and a pinned time.
func WithRequestContext(req *http.Request, requestID string, now time.Time) *http.Request {
	ctx := requestcontext.WithRequestID(req.Context(), requestID)
	ctx = requestcontext.WithTime(ctx, now)
	return req.WithContext(ctx)
}
