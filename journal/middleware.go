package journal

import (
	"context"
	"time"

	"github.com/hazyhaar/restyle/kit"
)

// Middleware journals every call of the wrapped endpoint under operation.
// The request itself is stored as the entry's parameters.
func Middleware(j *Journal, operation string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)

			e := NewEntry(operation, req, err, time.Since(start))
			e.Transport = kit.GetTransport(ctx)
			e.RequestID = kit.GetRequestID(ctx)
			j.LogAsync(e)
			return resp, err
		}
	}
}
