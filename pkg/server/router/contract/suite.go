// Package contract holds the conformance suite every router adapter runs.
package contract

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nimburion/crudkit/pkg/server/router"
)

// TestRouterContract runs the shared conformance suite against routers
// produced by newRouter.
func TestRouterContract(t *testing.T, newRouter func() router.Router) {
	t.Helper()

	t.Run("methods", func(t *testing.T) {
		r := newRouter()
		echo := func(c router.Context) error {
			return c.JSON(http.StatusOK, c.Request().Method)
		}
		r.GET("/m", echo)
		r.POST("/m", echo)
		r.PUT("/m", echo)
		r.PATCH("/m", echo)
		r.DELETE("/m", echo)

		for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete} {
			res := perform(r, method, "/m", "")
			if res.Code != http.StatusOK || !strings.Contains(res.Body.String(), method) {
				t.Errorf("%s /m = %d %q", method, res.Code, res.Body.String())
			}
		}
		if res := perform(r, http.MethodGet, "/unknown", ""); res.Code != http.StatusNotFound {
			t.Errorf("unregistered route = %d, want 404", res.Code)
		}
	})

	t.Run("groups", func(t *testing.T) {
		r := newRouter()
		var seen []string
		r.Use(tag("root", &seen))
		items := r.Group("/api/items", tag("group", &seen))
		items.GET("", func(c router.Context) error { return c.JSON(http.StatusOK, "list") })
		items.GET("/search", func(c router.Context) error { return c.JSON(http.StatusOK, "search") })
		items.GET("/:id", func(c router.Context) error { return c.JSON(http.StatusOK, c.Param("id")) })

		cases := map[string]string{
			"/api/items":        "list",
			"/api/items/search": "search",
			"/api/items/42":     "42",
		}
		for path, want := range cases {
			res := perform(r, http.MethodGet, path, "")
			if res.Code != http.StatusOK || !strings.Contains(res.Body.String(), want) {
				t.Errorf("GET %s = %d %q, want %q", path, res.Code, res.Body.String(), want)
			}
		}
		if got := strings.Join(seen[:2], ","); got != "root,group" {
			t.Errorf("middleware order = %s", got)
		}
	})

	t.Run("route_middleware", func(t *testing.T) {
		r := newRouter()
		var seen []string
		r.Use(tag("global", &seen))
		r.GET("/m", func(c router.Context) error {
			seen = append(seen, "handler")
			return c.NoContent(http.StatusNoContent)
		}, tag("route", &seen))

		res := perform(r, http.MethodGet, "/m", "")
		if res.Code != http.StatusNoContent {
			t.Errorf("status = %d", res.Code)
		}
		if got := strings.Join(seen, ","); got != "global,route,handler" {
			t.Errorf("order = %s", got)
		}
	})

	t.Run("query_and_bind", func(t *testing.T) {
		r := newRouter()
		r.GET("/q", func(c router.Context) error { return c.JSON(http.StatusOK, c.Query("page")) })
		r.POST("/bind", func(c router.Context) error {
			var in struct {
				Name string `json:"name"`
			}
			if err := c.Bind(&in); err != nil {
				return c.JSON(http.StatusBadRequest, err.Error())
			}
			return c.JSON(http.StatusOK, in.Name)
		})

		if res := perform(r, http.MethodGet, "/q?page=2&page=3", ""); !strings.Contains(res.Body.String(), `"2"`) {
			t.Errorf("query = %q", res.Body.String())
		}
		if res := perform(r, http.MethodPost, "/bind", `{"name":"alice"}`); !strings.Contains(res.Body.String(), "alice") {
			t.Errorf("bind = %q", res.Body.String())
		}
		if res := perform(r, http.MethodPost, "/bind", `{`); res.Code != http.StatusBadRequest {
			t.Errorf("malformed bind = %d", res.Code)
		}
	})

	t.Run("unhandled_error", func(t *testing.T) {
		r := newRouter()
		r.GET("/boom", func(router.Context) error { return errors.New("boom") })
		r.GET("/written", func(c router.Context) error {
			_ = c.JSON(http.StatusConflict, "conflict")
			return errors.New("ignored")
		})

		if res := perform(r, http.MethodGet, "/boom", ""); res.Code != http.StatusInternalServerError {
			t.Errorf("unhandled error = %d, want 500", res.Code)
		}
		if res := perform(r, http.MethodGet, "/written", ""); res.Code != http.StatusConflict {
			t.Errorf("written response = %d, want 409", res.Code)
		}
	})
}

func tag(name string, seen *[]string) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			*seen = append(*seen, name)
			return next(c)
		}
	}
}

func perform(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader = http.NoBody
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}
