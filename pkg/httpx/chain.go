package httpx

import "net/http"

// Middleware wraps a handler with extra behaviour. It may short-circuit by
// writing a response and not calling next.
type Middleware func(http.Handler) http.Handler

// Chain wraps h with mws so that the first middleware runs first.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			h = mws[i](h)
		}
	}
	return h
}
