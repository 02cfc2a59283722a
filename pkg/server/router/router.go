// Package router abstracts the HTTP router so resource controllers can be
// mounted on gin or gorilla/mux without depending on either.
package router

import "net/http"

// Router registers handlers and serves requests.
type Router interface {
	GET(path string, handler HandlerFunc, middleware ...MiddlewareFunc)
	POST(path string, handler HandlerFunc, middleware ...MiddlewareFunc)
	PUT(path string, handler HandlerFunc, middleware ...MiddlewareFunc)
	PATCH(path string, handler HandlerFunc, middleware ...MiddlewareFunc)
	DELETE(path string, handler HandlerFunc, middleware ...MiddlewareFunc)

	// Group creates a sub-router under prefix. Middleware registered on the
	// parent before the call applies to the group as well.
	Group(prefix string, middleware ...MiddlewareFunc) Router

	// Use appends middleware applied to routes registered afterwards.
	Use(middleware ...MiddlewareFunc)

	ServeHTTP(w http.ResponseWriter, r *http.Request)
}

// HandlerFunc handles a request. A returned error is rendered by the
// error-handling middleware when one is installed; adapters fall back to a
// bare 500 otherwise.
type HandlerFunc func(Context) error

// MiddlewareFunc wraps a HandlerFunc.
type MiddlewareFunc func(HandlerFunc) HandlerFunc

// Context is the router-agnostic view of one request.
type Context interface {
	Request() *http.Request
	// SetRequest replaces the request, typically to attach a derived context.
	SetRequest(r *http.Request)
	Response() ResponseWriter
	SetResponse(w ResponseWriter)

	// Param returns a path parameter declared as :name.
	Param(name string) string
	// Query returns the first value of a query-string parameter.
	Query(name string) string
	// Bind decodes a JSON request body into v.
	Bind(v any) error
	// JSON writes v with the given status.
	JSON(code int, v any) error
	// NoContent writes a bodiless response.
	NoContent(code int) error
}

// ResponseWriter tracks the status written to the client.
type ResponseWriter interface {
	http.ResponseWriter
	// Status returns the written status, or 200 when nothing was written yet.
	Status() int
	Written() bool
}

// Chain applies middleware so that the first element runs outermost.
func Chain(h HandlerFunc, middleware ...MiddlewareFunc) HandlerFunc {
	for i := len(middleware) - 1; i >= 0; i-- {
		h = middleware[i](h)
	}
	return h
}
