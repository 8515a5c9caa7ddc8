package http

import (
	"net/http"
)

// Middleware is a function that wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Router is the small routing surface the worker listener needs.
type Router interface {
	// GET registers a handler for GET requests. Middleware is applied in
	// order: the first middleware wraps outermost.
	GET(path string, handler http.HandlerFunc, middlewares ...Middleware)

	// Handle mounts an http.Handler for every method on path.
	Handle(path string, handler http.Handler)

	// Use adds middleware to the router (applies to all subsequent routes)
	Use(middlewares ...Middleware)

	// Handler returns the http.Handler for use with http.Server
	Handler() http.Handler

	// Walk iterates over all registered routes.
	Walk(fn func(method, path string) error) error
}

// Chain applies middlewares to a handler.
// The first middleware in the list will be the outermost (executed first).
func Chain(handler http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return handler
}
