// Package gorilla adapts gorilla/mux to router.Router.
package gorilla

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/mux"

	"github.com/nimburion/crudkit/pkg/server/router"
)

// Router implements router.Router on a mux.Router.
type Router struct {
	mux        *mux.Router
	mu         *sync.RWMutex
	middleware []router.MiddlewareFunc
}

var _ router.Router = (*Router)(nil)

// NewRouter creates a Router.
func NewRouter() *Router {
	return &Router{mux: mux.NewRouter(), mu: &sync.RWMutex{}}
}

func (r *Router) GET(path string, h router.HandlerFunc, mw ...router.MiddlewareFunc) {
	r.handle(http.MethodGet, path, h, mw)
}

func (r *Router) POST(path string, h router.HandlerFunc, mw ...router.MiddlewareFunc) {
	r.handle(http.MethodPost, path, h, mw)
}

func (r *Router) PUT(path string, h router.HandlerFunc, mw ...router.MiddlewareFunc) {
	r.handle(http.MethodPut, path, h, mw)
}

func (r *Router) PATCH(path string, h router.HandlerFunc, mw ...router.MiddlewareFunc) {
	r.handle(http.MethodPatch, path, h, mw)
}

func (r *Router) DELETE(path string, h router.HandlerFunc, mw ...router.MiddlewareFunc) {
	r.handle(http.MethodDelete, path, h, mw)
}

// Group implements router.Router.
func (r *Router) Group(prefix string, mw ...router.MiddlewareFunc) router.Router {
	return &Router{
		mux:        r.mux.PathPrefix(toMuxPath(prefix)).Subrouter(),
		mu:         r.mu,
		middleware: append(r.snapshot(), mw...),
	}
}

// Use implements router.Router.
func (r *Router) Use(mw ...router.MiddlewareFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, mw...)
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *Router) snapshot() []router.MiddlewareFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]router.MiddlewareFunc{}, r.middleware...)
}

func (r *Router) handle(method, path string, h router.HandlerFunc, mw []router.MiddlewareFunc) {
	handler := router.Chain(router.Chain(h, mw...), r.snapshot()...)
	r.mux.HandleFunc(toMuxPath(path), func(w http.ResponseWriter, req *http.Request) {
		c := &context{request: req, response: router.NewResponseWriter(w)}
		if err := handler(c); err != nil && !c.response.Written() {
			c.response.WriteHeader(http.StatusInternalServerError)
		}
	}).Methods(method)
}

// toMuxPath rewrites :name segments to mux's {name} form.
func toMuxPath(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if strings.HasPrefix(p, ":") {
			parts[i] = "{" + p[1:] + "}"
		}
	}
	return strings.Join(parts, "/")
}

type context struct {
	request  *http.Request
	response router.ResponseWriter
}

func (c *context) Request() *http.Request              { return c.request }
func (c *context) SetRequest(r *http.Request)          { c.request = r }
func (c *context) Response() router.ResponseWriter     { return c.response }
func (c *context) SetResponse(w router.ResponseWriter) { c.response = w }
func (c *context) Param(name string) string            { return mux.Vars(c.request)[name] }
func (c *context) Query(name string) string            { return c.request.URL.Query().Get(name) }
func (c *context) Bind(v any) error                    { return router.DecodeJSON(c.request, v) }
func (c *context) JSON(code int, v any) error          { return router.WriteJSON(c.response, code, v) }

func (c *context) NoContent(code int) error {
	c.response.WriteHeader(code)
	return nil
}
