package middleware

import (
	"context"
	"log"
	"strings"
	"time"

	"remote-call/invoke"
)

func RetryMiddleware(maxRetries int, baseDelay time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *invoke.Invoke) *invoke.Invoke {
			ret := next(ctx, req)
			for i := 0; i < maxRetries; i++ {
				ev, failed := ret.FailureValue()
				if !failed {
					return ret // Success, return response
				}
				if strings.Contains(ev.Message, "timed out") || strings.Contains(ev.Message, "temporarily unavailable") {
					// Log the retry attempt
					log.Printf("Retry attempt %d for %s due to error: %s", i+1, req.Listener, ev.Message)
					time.Sleep(baseDelay * time.Duration(1<<i)) // Exponential backoff
					ret = next(ctx, req)                        // Retry the invocation
				} else {
					return ret // Non-retryable error, return immediately
				}
			}
			return ret // Return last response after retries
		}
	}
}
