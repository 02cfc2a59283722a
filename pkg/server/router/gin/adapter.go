// Package gin adapts gin-gonic/gin to router.Router.
package gin

import (
	"net/http"
	"sync"

	ginpkg "github.com/gin-gonic/gin"

	"github.com/nimburion/crudkit/pkg/server/router"
)

// Router implements router.Router on a gin engine.
type Router struct {
	engine     *ginpkg.Engine
	group      *ginpkg.RouterGroup
	mu         *sync.RWMutex
	middleware []router.MiddlewareFunc
}

var _ router.Router = (*Router)(nil)

// NewRouter creates a Router on a fresh engine in release mode.
func NewRouter() *Router {
	ginpkg.SetMode(ginpkg.ReleaseMode)
	engine := ginpkg.New()
	return &Router{engine: engine, group: &engine.RouterGroup, mu: &sync.RWMutex{}}
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
		engine:     r.engine,
		group:      r.group.Group(prefix),
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
	r.engine.ServeHTTP(w, req)
}

func (r *Router) snapshot() []router.MiddlewareFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]router.MiddlewareFunc{}, r.middleware...)
}

func (r *Router) handle(method, path string, h router.HandlerFunc, mw []router.MiddlewareFunc) {
	handler := router.Chain(router.Chain(h, mw...), r.snapshot()...)
	r.group.Handle(method, path, func(gc *ginpkg.Context) {
		c := &context{gin: gc, response: router.NewResponseWriter(gc.Writer)}
		if err := handler(c); err != nil && !c.response.Written() {
			c.response.WriteHeader(http.StatusInternalServerError)
		}
	})
}

type context struct {
	gin      *ginpkg.Context
	response router.ResponseWriter
}

func (c *context) Request() *http.Request              { return c.gin.Request }
func (c *context) SetRequest(r *http.Request)          { c.gin.Request = r }
func (c *context) Response() router.ResponseWriter     { return c.response }
func (c *context) SetResponse(w router.ResponseWriter) { c.response = w }
func (c *context) Param(name string) string            { return c.gin.Param(name) }
func (c *context) Query(name string) string            { return c.gin.Query(name) }
func (c *context) Bind(v any) error                    { return router.DecodeJSON(c.gin.Request, v) }
func (c *context) JSON(code int, v any) error          { return router.WriteJSON(c.response, code, v) }

func (c *context) NoContent(code int) error {
	c.response.WriteHeader(code)
	return nil
}
