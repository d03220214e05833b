package middleware

import (
	"context"
	"time"

	"remote-call/invoke"
)

// TimeOutMiddleware bounds one provider invocation. It never touches the
// caller's pending slot — an expired invocation still produces a failure
// return for the same uid, so the id-match invariant holds.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *invoke.Invoke) *invoke.Invoke {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan *invoke.Invoke, 1)
			go func() {
				done <- next(ctx, req)
			}()

			select {
			case ret := <-done:
				return ret
			case <-ctx.Done():
				return invoke.NewFailure(req.UID, invoke.Named("TimeoutError", "provider invocation timed out"))
			}
		}
	}
}
