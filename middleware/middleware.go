// Package middleware wraps the provider-side handling of inbound function
// records. A handler takes the function Invoke and produces the return
// Invoke for the same uid; middlewares compose around it in an onion model.
// The chain wraps only member resolution and application — uid bookkeeping
// stays in the communicator.
package middleware

import (
	"context"

	"remote-call/invoke"
)

type HandlerFunc func(ctx context.Context, req *invoke.Invoke) *invoke.Invoke

type Middleware func(next HandlerFunc) HandlerFunc

// Chain 将多个中间件组合成一个中间件
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
