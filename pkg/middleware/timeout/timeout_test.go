package timeout

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nimburion/crudkit/pkg/controller"
	"github.com/nimburion/crudkit/pkg/server/router"
	"github.com/nimburion/crudkit/pkg/server/router/gin"
)

func serve(cfg Config, path string, h router.HandlerFunc) *httptest.ResponseRecorder {
	r := gin.NewRouter()
	r.Use(controller.ErrorHandler(nil), Middleware(cfg))
	r.GET(path, h)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func waitForDeadline(c router.Context) error {
	<-c.Request().Context().Done()
	return c.Request().Context().Err()
}

func TestMiddleware_DeadlineExceededReturns504(t *testing.T) {
	rec := serve(Config{Timeout: 5 * time.Millisecond}, "/slow", waitForDeadline)
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want 504", rec.Code)
	}
	var body controller.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Code != "request.timeout" {
		t.Errorf("body = %+v, %v", body, err)
	}
}

func TestMiddleware_SetsDeadline(t *testing.T) {
	var hasDeadline bool
	rec := serve(Config{Timeout: time.Minute}, "/fast", func(c router.Context) error {
		_, hasDeadline = c.Request().Context().Deadline()
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if rec.Code != http.StatusOK || !hasDeadline {
		t.Errorf("status = %d, deadline = %v", rec.Code, hasDeadline)
	}
}

func TestMiddleware_Bypass(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		path string
	}{
		{"disabled", Config{}, "/api/items"},
		{"excluded path", Config{Timeout: time.Millisecond, ExcludedPathPrefixes: []string{"/metrics"}}, "/metrics"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hasDeadline bool
			rec := serve(tt.cfg, tt.path, func(c router.Context) error {
				_, hasDeadline = c.Request().Context().Deadline()
				return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
			})
			if rec.Code != http.StatusOK || hasDeadline {
				t.Errorf("status = %d, deadline = %v", rec.Code, hasDeadline)
			}
		})
	}
}

func TestMiddleware_OtherErrorsPassThrough(t *testing.T) {
	rec := serve(Config{Timeout: time.Minute}, "/missing", func(router.Context) error {
		return controller.NewNotFoundError("nothing here")
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	rec = serve(Config{Timeout: time.Minute}, "/boom", func(router.Context) error {
		return errors.New("boom")
	})
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}
