package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nimburion/crudkit/pkg/config"
	"github.com/nimburion/crudkit/pkg/controller"
	"github.com/nimburion/crudkit/pkg/health"
	"github.com/nimburion/crudkit/pkg/middleware/testutil"
	"github.com/nimburion/crudkit/pkg/server/router"
	"github.com/nimburion/crudkit/pkg/server/router/gin"
)

func TestServerStartAndShutdown(t *testing.T) {
	r := gin.NewRouter()
	r.GET("/ping", func(c router.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	srv := NewServer(Config{ReadTimeout: 5 * time.Second, ShutdownTimeout: 5 * time.Second}, r, testutil.NewMockLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() { errChan <- srv.Serve(ctx, ln) }()

	var resp *http.Response
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err = http.Get("http://" + ln.Addr().String() + "/ping")
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-errChan:
		if err != nil {
			t.Errorf("server shutdown failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("server shutdown timed out")
	}
}

func TestServerShutdownBeforeStart(t *testing.T) {
	srv := NewServer(Config{}, gin.NewRouter(), nil)
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown of an unstarted server should be a no-op: %v", err)
	}
}

func TestServerStart_PortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	srv := NewServer(Config{Port: port}, gin.NewRouter(), nil)
	if err := srv.Start(context.Background()); err == nil {
		t.Fatal("expected error when the port is taken")
	}
}

func newTestAPI(t *testing.T, healthy bool) (*APIServer, *testutil.MockLogger) {
	t.Helper()
	cfg := config.DefaultConfig()
	log := testutil.NewMockLogger()

	registry := health.NewRegistry()
	registry.Register("store", health.CheckFunc(func(context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("connection refused")
	}), time.Second)

	srv, err := Build(&RunOptions{
		Config:         cfg,
		Logger:         log,
		HealthRegistry: registry,
		RegisterRoutes: func(r router.Router) error {
			api := r.Group("/api/v1/things")
			api.GET("/:id", func(c router.Context) error {
				if c.Param("id") == "missing" {
					return controller.NewNotFoundError("thing not found")
				}
				return c.JSON(http.StatusOK, map[string]string{"id": c.Param("id")})
			})
			api.GET("/boom/:id", func(router.Context) error {
				panic("boom")
			})
			return nil
		},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return srv, log
}

func get(srv *APIServer, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestAPIServer_Health(t *testing.T) {
	tests := []struct {
		name    string
		healthy bool
		status  int
		want    health.Status
	}{
		{"healthy", true, http.StatusOK, health.StatusHealthy},
		{"unhealthy", false, http.StatusServiceUnavailable, health.StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestAPI(t, tt.healthy)
			rec := get(srv, HealthPath)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			var report health.Report
			if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if report.Status != tt.want || len(report.Checks) != 1 {
				t.Errorf("report = %+v", report)
			}
		})
	}
}

func TestAPIServer_Version(t *testing.T) {
	srv, _ := newTestAPI(t, true)
	rec := get(srv, VersionPath)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var info map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info["service"] != "crudkit" || info["version"] == "" {
		t.Errorf("info = %v", info)
	}
}

func TestAPIServer_MiddlewareStack(t *testing.T) {
	srv, log := newTestAPI(t, true)

	rec := get(srv, "/api/v1/things/42")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}

	rec = get(srv, "/api/v1/things/missing")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	var body controller.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.RequestID == "" || body.RequestID != rec.Header().Get("X-Request-ID") {
		t.Errorf("error body request id = %q", body.RequestID)
	}

	rec = get(srv, "/api/v1/things/boom/1")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("panic status = %d", rec.Code)
	}

	get(srv, HealthPath)
	var logged, healthLogged bool
	for _, e := range log.Entries() {
		if e.Msg == "request completed" {
			logged = true
			if e.Fields["path"] == HealthPath {
				healthLogged = true
			}
		}
	}
	if !logged {
		t.Error("expected request logs")
	}
	if healthLogged {
		t.Error("health checks should not be logged")
	}
}

func TestAPIServer_RequestLimits(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Observability.MetricsEnabled = false
	cfg.HTTP.MaxBodyBytes = 16
	cfg.HTTP.RequestTimeout = 5 * time.Millisecond

	srv, err := Build(&RunOptions{Config: cfg, RegisterRoutes: func(r router.Router) error {
		r.POST("/echo", func(c router.Context) error {
			var body map[string]any
			if err := c.Bind(&body); err != nil {
				return controller.NewBadRequestError("invalid request body", err)
			}
			return c.JSON(http.StatusOK, body)
		})
		r.GET("/slow", func(c router.Context) error {
			<-c.Request().Context().Done()
			return c.Request().Context().Err()
		})
		return nil
	}})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"small body", http.MethodPost, "/echo", `{"a":1}`, http.StatusOK, ""},
		{"oversized body", http.MethodPost, "/echo", `{"name":"far more than sixteen bytes"}`, http.StatusRequestEntityTooLarge, "request.too_large"},
		{"deadline", http.MethodGet, "/slow", "", http.StatusGatewayTimeout, "request.timeout"},
		{"health has no deadline", http.MethodGet, HealthPath, "", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.body != "" {
				req.Header.Set("Content-Type", "application/json")
			}
			rec := httptest.NewRecorder()
			srv.Router().ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
			if tt.code == "" {
				return
			}
			var body controller.ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Code != tt.code {
				t.Errorf("body = %+v, %v", body, err)
			}
		})
	}
}

func TestAPIServer_Metrics(t *testing.T) {
	srv, _ := newTestAPI(t, true)
	get(srv, "/api/v1/things/42")

	rec := get(srv, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "http_requests_total") {
		t.Error("expected http_requests_total in metrics output")
	}
}

func TestAPIServer_MetricsDisabled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Observability.MetricsEnabled = false
	srv, err := Build(&RunOptions{Config: cfg})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if rec := get(srv, "/metrics"); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestBuild_RegisterRoutesError(t *testing.T) {
	_, err := Build(&RunOptions{RegisterRoutes: func(router.Router) error {
		return errors.New("bad module")
	}})
	if err == nil || !strings.Contains(err.Error(), "bad module") {
		t.Fatalf("error = %v", err)
	}
}

func TestBuild_InvalidRouterType(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RouterType = "echo"
	if _, err := Build(&RunOptions{Config: cfg}); err == nil {
		t.Fatal("expected error for unknown router type")
	}
}

func TestRun_Hooks(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.HTTP.Port = 0
	log := testutil.NewMockLogger()

	var calls []string
	opts := &RunOptions{
		Config: cfg,
		Logger: log,
		StartupHooks: []LifecycleHook{{Name: "warmup", Fn: func(context.Context) error {
			calls = append(calls, "startup")
			return nil
		}}},
		ShutdownHooks: []LifecycleHook{
			{Name: "close-store", Fn: func(context.Context) error {
				calls = append(calls, "shutdown")
				return errors.New("already closed")
			}},
			{Fn: nil},
		},
	}
	srv, err := Build(opts)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Run(ctx, srv, opts); err != nil {
		t.Fatalf("run: %v", err)
	}
	if strings.Join(calls, ",") != "startup,shutdown" {
		t.Errorf("calls = %v", calls)
	}

	var reported bool
	for _, e := range log.Entries() {
		if e.Level == "error" && e.Msg == "shutdown hooks completed with errors" {
			reported = true
		}
	}
	if !reported {
		t.Error("expected shutdown hook failure to be logged")
	}
}

func TestRun_StartupHookFailure(t *testing.T) {
	opts := &RunOptions{
		Config: config.DefaultConfig(),
		Logger: testutil.NewMockLogger(),
		StartupHooks: []LifecycleHook{{Name: "migrate", Fn: func(context.Context) error {
			return errors.New("no schema")
		}}},
	}
	srv, err := Build(opts)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	err = Run(context.Background(), srv, opts)
	if err == nil || !strings.Contains(err.Error(), `startup hook "migrate" failed`) {
		t.Fatalf("error = %v", err)
	}
}

func TestRun_RequiresInputs(t *testing.T) {
	if err := Run(context.Background(), nil, &RunOptions{}); err == nil {
		t.Error("expected error for nil server")
	}
	srv, _ := newTestAPI(t, true)
	if err := Run(context.Background(), srv, &RunOptions{Config: config.DefaultConfig()}); err == nil {
		t.Error("expected error for missing logger")
	}
}
