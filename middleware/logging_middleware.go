package middleware

import (
	"context"
	"log"
	"time"

	"remote-call/invoke"
)

func LoggingMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *invoke.Invoke) *invoke.Invoke {
			// Log the incoming invoke
			start := time.Now()
			ret := next(ctx, req)
			// Print the listener path and the time taken to process the invoke and error if any
			duration := time.Since(start)
			log.Printf("Listener: %s, Duration: %s", req.Listener, duration)
			if ev, failed := ret.FailureValue(); failed {
				log.Printf("Error: %s: %s", ev.Name, ev.Message)
			}
			return ret
		}
	}
}
