package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/nimburion/crudkit/pkg/cache"
	"github.com/nimburion/crudkit/pkg/config"
	"github.com/nimburion/crudkit/pkg/health"
	"github.com/nimburion/crudkit/pkg/middleware/testutil"
	"github.com/nimburion/crudkit/pkg/modules/contact"
	"github.com/nimburion/crudkit/pkg/modules/subscription"
	"github.com/nimburion/crudkit/pkg/server"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Observability.MetricsEnabled = false
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) (*App, http.Handler) {
	t.Helper()
	a, err := New(context.Background(), cfg, testutil.NewMockLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	srv, err := server.Build(a.RunOptions())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return a, srv.Router()
}

func send(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func createdID(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Data.ID == "" {
		t.Fatalf("decode created id: %v %s", err, rec.Body.String())
	}
	return body.Data.ID
}

func TestApp_ServesModules(t *testing.T) {
	_, h := newTestServer(t, testConfig())

	id := createdID(t, send(t, h, http.MethodPost, contact.BasePath,
		`{"firstName":"Ada","lastName":"Lovelace","email":"ada@example.com","phone":"0123456789"}`))
	if rec := send(t, h, http.MethodGet, contact.BasePath+"/"+id, ""); rec.Code != http.StatusOK {
		t.Errorf("get contact = %d", rec.Code)
	}

	subID := createdID(t, send(t, h, http.MethodPost, subscription.BasePath,
		`{"userId":"u1","planId":"pro","paymentMethod":"card","currency":"eur","amount":10}`))
	if rec := send(t, h, http.MethodPost, subscription.BasePath+"/"+subID+"/cancel", ""); rec.Code != http.StatusOK {
		t.Errorf("cancel = %d %s", rec.Code, rec.Body.String())
	}

	rec := send(t, h, http.MethodGet, server.HealthPath, "")
	var report health.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if rec.Code != http.StatusOK || len(report.Checks) != 1 || report.Checks[0].Name != "store" {
		t.Errorf("health = %d %+v", rec.Code, report)
	}
}

func TestApp_HardDeletePolicy(t *testing.T) {
	cfg := testConfig()
	cfg.Pagination.SoftDelete = false
	_, h := newTestServer(t, cfg)

	id := createdID(t, send(t, h, http.MethodPost, contact.BasePath,
		`{"firstName":"Ada","lastName":"Lovelace","email":"ada@example.com","phone":"0123456789"}`))
	if rec := send(t, h, http.MethodDelete, contact.BasePath+"/"+id, ""); rec.Code != http.StatusOK {
		t.Fatalf("delete = %d", rec.Code)
	}
	if rec := send(t, h, http.MethodGet, contact.BasePath+"/"+id, ""); rec.Code != http.StatusNotFound {
		t.Errorf("get after hard delete = %d, want 404", rec.Code)
	}
}

func TestApp_RedisPageCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.Cache.Type = config.CacheTypeRedis
	cfg.Cache.URL = "redis://" + mr.Addr()
	cfg.Cache.Prefix = "apptest"

	a, h := newTestServer(t, cfg)
	if names := a.Health().Names(); len(names) != 2 {
		t.Fatalf("health checks = %v", names)
	}

	createdID(t, send(t, h, http.MethodPost, contact.BasePath,
		`{"firstName":"Ada","lastName":"Lovelace","email":"ada@example.com","phone":"0123456789"}`))
	if rec := send(t, h, http.MethodGet, contact.BasePath+"/paginate", ""); rec.Code != http.StatusOK {
		t.Fatalf("paginate = %d", rec.Code)
	}

	var cached bool
	for _, key := range mr.Keys() {
		if strings.HasPrefix(key, "apptest:"+contact.Collection+":v") {
			cached = true
		}
	}
	if !cached {
		t.Errorf("expected a cached page, keys = %v", mr.Keys())
	}

	createdID(t, send(t, h, http.MethodPost, contact.BasePath,
		`{"firstName":"Grace","lastName":"Hopper","email":"grace@example.com","phone":"0123456789"}`))
	rec := send(t, h, http.MethodGet, contact.BasePath+"/paginate", "")
	var body struct {
		Pagination struct {
			Total int64 `json:"total"`
		} `json:"pagination"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Pagination.Total != 2 {
		t.Errorf("total after create = %d, want 2 (stale cache?)", body.Pagination.Total)
	}
}

func TestApp_CacheOutage(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.Cache.Type = config.CacheTypeRedis
	cfg.Cache.URL = "redis://" + mr.Addr()
	cfg.Cache.BreakerFailures = 2

	a, h := newTestServer(t, cfg)
	if _, ok := a.cache.(*cache.Guarded); !ok {
		t.Fatalf("page cache = %T, want *cache.Guarded", a.cache)
	}

	createdID(t, send(t, h, http.MethodPost, contact.BasePath,
		`{"firstName":"Ada","lastName":"Lovelace","email":"ada@example.com","phone":"0123456789"}`))
	send(t, h, http.MethodGet, contact.BasePath+"/paginate", "")
	mr.Close()

	createdID(t, send(t, h, http.MethodPost, contact.BasePath,
		`{"firstName":"Grace","lastName":"Hopper","email":"grace@example.com","phone":"0123456789"}`))
	for i := 0; i < 3; i++ {
		rec := send(t, h, http.MethodGet, contact.BasePath+"/paginate", "")
		var body struct {
			Pagination struct {
				Total int64 `json:"total"`
			} `json:"pagination"`
		}
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
		if rec.Code != http.StatusOK || body.Pagination.Total != 2 {
			t.Fatalf("paginate during outage = %d total %d", rec.Code, body.Pagination.Total)
		}
	}
}

func TestNew_Errors(t *testing.T) {
	unreachable := testConfig()
	unreachable.Cache.Type = config.CacheTypeRedis
	unreachable.Cache.URL = "redis://127.0.0.1:1"

	unknown := testConfig()
	unknown.Database.Type = "cassandra"

	tests := []struct {
		name string
		cfg  *config.Config
		want string
	}{
		{"nil config", nil, "config is required"},
		{"unknown database", unknown, "connect document store"},
		{"unreachable cache", unreachable, "connect cache"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(context.Background(), tt.cfg, nil)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("New() error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestCheckDependencies(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.Cache.Type = config.CacheTypeRedis
	cfg.Cache.URL = "redis://" + mr.Addr()

	log := testutil.NewMockLogger()
	if err := CheckDependencies(context.Background(), cfg, log); err != nil {
		t.Fatalf("CheckDependencies() = %v", err)
	}
	healthy := 0
	for _, e := range log.Entries() {
		if e.Msg == "dependency healthy" {
			healthy++
		}
	}
	if healthy != 2 {
		t.Errorf("healthy dependencies logged = %d, want 2", healthy)
	}

	cfg.Cache.URL = "redis://127.0.0.1:1"
	if err := CheckDependencies(context.Background(), cfg, nil); err == nil {
		t.Error("expected error for unreachable cache")
	}
}

func TestApp_ShutdownHookClosesConnections(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.Cache.Type = config.CacheTypeRedis
	cfg.Cache.URL = "redis://" + mr.Addr()

	a, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	hooks := a.RunOptions().ShutdownHooks
	if len(hooks) != 1 {
		t.Fatalf("hooks = %d", len(hooks))
	}
	if err := hooks[0].Fn(context.Background()); err != nil {
		t.Fatalf("shutdown hook = %v", err)
	}
	if err := a.redis.HealthCheck(context.Background()); err == nil {
		t.Error("expected closed redis client to fail its health check")
	}
}
