package controller

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nimburion/crudkit/pkg/docstore/memory"
	"github.com/nimburion/crudkit/pkg/middleware/requestid"
	"github.com/nimburion/crudkit/pkg/pagination"
	"github.com/nimburion/crudkit/pkg/repository"
	"github.com/nimburion/crudkit/pkg/server/router"
	ginadapter "github.com/nimburion/crudkit/pkg/server/router/gin"
	"github.com/nimburion/crudkit/pkg/service"
)

type note struct {
	repository.Base
	Title  string `json:"title" validate:"required"`
	Status string `json:"status,omitempty"`
}

type envelope struct {
	Success    bool            `json:"success"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
	Pagination json.RawMessage `json:"pagination"`
	RequestID  string          `json:"request_id"`
}

func newTestRouter(svc Service[note], opts ...Option[note]) router.Router {
	r := ginadapter.NewRouter()
	r.Use(requestid.RequestID(), ErrorHandler(nil))
	New[note](svc, opts...).Register(r.Group("/api/v1/notes"))
	return r
}

func newNoteService() *service.Service[note] {
	return service.New[note](repository.NewGenericRepository[note](memory.New(), "notes"))
}

func do(t *testing.T, r http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
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

	var env envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

func TestController_CRUDFlow(t *testing.T) {
	r := newTestRouter(newNoteService())

	rec, env := do(t, r, http.MethodPost, "/api/v1/notes", `{"title":"first","status":"open"}`)
	if rec.Code != http.StatusCreated || !env.Success {
		t.Fatalf("create = %d %s", rec.Code, rec.Body.String())
	}
	if env.RequestID == "" || rec.Header().Get(requestid.HeaderName) != env.RequestID {
		t.Errorf("request id = %q, header %q", env.RequestID, rec.Header().Get(requestid.HeaderName))
	}
	var created note
	if err := json.Unmarshal(env.Data, &created); err != nil || created.ID == "" || created.Title != "first" {
		t.Fatalf("created = %+v, %v", created, err)
	}

	rec, env = do(t, r, http.MethodGet, "/api/v1/notes/"+created.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get = %d %s", rec.Code, rec.Body.String())
	}

	rec, env = do(t, r, http.MethodPatch, "/api/v1/notes/"+created.ID, `{"status":"done"}`)
	var updated note
	_ = json.Unmarshal(env.Data, &updated)
	if rec.Code != http.StatusOK || updated.Status != "done" || updated.Title != "first" {
		t.Fatalf("update = %d %s", rec.Code, rec.Body.String())
	}

	rec, _ = do(t, r, http.MethodDelete, "/api/v1/notes/"+created.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete = %d %s", rec.Code, rec.Body.String())
	}

	rec, _ = do(t, r, http.MethodGet, "/api/v1/notes/"+created.ID, "")
	if rec.Code != http.StatusGone {
		t.Errorf("get after soft delete = %d, want 410", rec.Code)
	}
	rec, _ = do(t, r, http.MethodGet, "/api/v1/notes/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("get missing = %d, want 404", rec.Code)
	}
}

func TestController_CreateValidation(t *testing.T) {
	r := newTestRouter(newNoteService())

	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "missing required", body: `{"status":"open"}`, want: http.StatusBadRequest},
		{name: "malformed", body: `{"title":`, want: http.StatusBadRequest},
		{name: "empty", body: "", want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := do(t, r, http.MethodPost, "/api/v1/notes", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
			var body ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Error != "validation_error" {
				t.Errorf("body = %s", rec.Body.String())
			}
		})
	}
}

func TestController_Listings(t *testing.T) {
	r := newTestRouter(newNoteService())
	for _, title := range []string{"a", "b", "c"} {
		if rec, _ := do(t, r, http.MethodPost, "/api/v1/notes", `{"title":"`+title+`","status":"open"}`); rec.Code != http.StatusCreated {
			t.Fatalf("seed = %d", rec.Code)
		}
	}

	rec, env := do(t, r, http.MethodGet, "/api/v1/notes?page=1&limit=2&sort=title&order=asc", "")
	var offset repository.OffsetPage[note]
	if err := json.Unmarshal(env.Pagination, &offset); err != nil || rec.Code != http.StatusOK {
		t.Fatalf("getAll = %d %s", rec.Code, rec.Body.String())
	}
	if offset.TotalItems != 3 || len(offset.Data) != 2 || offset.Data[0].Title != "a" || !offset.HasNextPage {
		t.Errorf("getAll page = %+v", offset)
	}

	rec, env = do(t, r, http.MethodGet, "/api/v1/notes?page=abc&limit=", "")
	if err := json.Unmarshal(env.Pagination, &offset); err != nil || rec.Code != http.StatusOK || offset.Page != 1 || offset.Limit != 10 {
		t.Errorf("lenient getAll = %d %+v", rec.Code, offset)
	}

	rec, env = do(t, r, http.MethodGet, "/api/v1/notes/paginate?page=2&limit=2", "")
	var page pagination.Result[note]
	if err := json.Unmarshal(env.Pagination, &page); err != nil || rec.Code != http.StatusOK {
		t.Fatalf("paginate = %d %s", rec.Code, rec.Body.String())
	}
	if page.Total != 3 || page.TotalPages != 2 || len(page.Data) != 1 || page.HasNextPage || !page.HasPrevPage {
		t.Errorf("paginate page = %+v", page)
	}

	rec, env = do(t, r, http.MethodGet, "/api/v1/notes/paginate?all=true&limit=1", "")
	if err := json.Unmarshal(env.Pagination, &page); err != nil || len(page.Data) != 3 {
		t.Errorf("paginate all = %d %s", rec.Code, rec.Body.String())
	}

	rec, _ = do(t, r, http.MethodGet, "/api/v1/notes/paginate?page=x", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("non-numeric page = %d, want 400", rec.Code)
	}

	for _, path := range []string{"/api/v1/notes?page=1152921504606846977&limit=16", "/api/v1/notes/paginate?page=1152921504606846977&limit=16"} {
		rec, _ = do(t, r, http.MethodGet, path, "")
		var body ErrorResponse
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
		if rec.Code != http.StatusBadRequest || body.Code != "validation.invalid_filter" {
			t.Errorf("GET %s = %d %s, want 400", path, rec.Code, rec.Body.String())
		}
	}
}

func TestController_Search(t *testing.T) {
	r := newTestRouter(newNoteService())
	for _, body := range []string{`{"title":"a","status":"open"}`, `{"title":"b","status":"done"}`, `{"title":"c","status":"open"}`} {
		do(t, r, http.MethodPost, "/api/v1/notes", body)
	}

	rec, env := do(t, r, http.MethodPost, "/api/v1/notes/search",
		`{"filters":[{"key":"status","operator":"==","value":"open"}],"orderBy":{"field":"title","direction":"desc"},"select":["title"]}`)
	var page pagination.Result[note]
	if err := json.Unmarshal(env.Pagination, &page); err != nil || rec.Code != http.StatusOK {
		t.Fatalf("search = %d %s", rec.Code, rec.Body.String())
	}
	if page.Total != 2 || len(page.Data) != 2 || page.Data[0].Title != "c" || page.Data[0].Status != "" {
		t.Errorf("search page = %+v", page)
	}

	rec, _ = do(t, r, http.MethodPost, "/api/v1/notes/search", `{"filters":[{"key":"status","operator":"in","value":[]}]}`)
	var body ErrorResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if rec.Code != http.StatusBadRequest || body.Code != "validation.invalid_filter" || body.Details["key"] != "status" {
		t.Errorf("invalid filter = %d %s", rec.Code, rec.Body.String())
	}

	for _, order := range []string{`{"field":"title","direction":"DESC"}`, `{"direction":"asc"}`} {
		rec, _ = do(t, r, http.MethodPost, "/api/v1/notes/search", `{"orderBy":`+order+`}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("orderBy %s = %d, want 400", order, rec.Code)
		}
	}

	rec, _ = do(t, r, http.MethodPost, "/api/v1/notes/search", "")
	if rec.Code != http.StatusOK {
		t.Errorf("empty search = %d", rec.Code)
	}
}

type stubService struct {
	service.Service[note]
	created *note
	deleted bool
	err     error
}

func (s *stubService) Create(context.Context, *note) (*note, error)   { return s.created, s.err }
func (s *stubService) GetByID(context.Context, string) (*note, error) { return nil, s.err }
func (s *stubService) Delete(context.Context, string) (bool, error)   { return s.deleted, s.err }
func (s *stubService) Update(context.Context, string, map[string]any) (*note, error) {
	return nil, s.err
}

func TestController_EmptyResults(t *testing.T) {
	r := newTestRouter(&stubService{})

	if rec, _ := do(t, r, http.MethodPost, "/api/v1/notes", `{"title":"x"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("nil create = %d, want 400", rec.Code)
	}
	if rec, _ := do(t, r, http.MethodGet, "/api/v1/notes/x", ""); rec.Code != http.StatusNotFound {
		t.Errorf("nil get = %d, want 404", rec.Code)
	}
	if rec, _ := do(t, r, http.MethodPut, "/api/v1/notes/x", `{"title":"y"}`); rec.Code != http.StatusNotFound {
		t.Errorf("nil update = %d, want 404", rec.Code)
	}
	if rec, _ := do(t, r, http.MethodDelete, "/api/v1/notes/x", ""); rec.Code != http.StatusNotFound {
		t.Errorf("false delete = %d, want 404", rec.Code)
	}
	if rec, _ := do(t, r, http.MethodPatch, "/api/v1/notes/x", `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("empty update = %d, want 400", rec.Code)
	}
}

func TestController_ServiceErrorsAreMapped(t *testing.T) {
	r := newTestRouter(&stubService{err: errors.New("store exploded")})

	rec, _ := do(t, r, http.MethodGet, "/api/v1/notes/x", "")
	var body ErrorResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if rec.Code != http.StatusInternalServerError || body.Message != "an unexpected error occurred" || body.RequestID == "" {
		t.Errorf("error = %d %s", rec.Code, rec.Body.String())
	}
}

func TestController_CustomCreateDecoder(t *testing.T) {
	decode := func(c router.Context) (*note, error) {
		var in struct {
			Title string `json:"title"`
		}
		if err := c.Bind(&in); err != nil {
			return nil, NewBadRequestError("invalid body", err)
		}
		return &note{Title: strings.ToUpper(in.Title)}, nil
	}
	r := newTestRouter(newNoteService(), WithCreateDecoder[note](decode))

	rec, env := do(t, r, http.MethodPost, "/api/v1/notes", `{"title":"shout"}`)
	var created note
	_ = json.Unmarshal(env.Data, &created)
	if rec.Code != http.StatusCreated || created.Title != "SHOUT" {
		t.Errorf("create = %d %s", rec.Code, rec.Body.String())
	}
}
