package contact

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nimburion/crudkit/pkg/controller"
	"github.com/nimburion/crudkit/pkg/docstore/memory"
	"github.com/nimburion/crudkit/pkg/middleware/requestid"
	"github.com/nimburion/crudkit/pkg/server/router"
	ginadapter "github.com/nimburion/crudkit/pkg/server/router/gin"
	"github.com/nimburion/crudkit/pkg/service"
)

type envelope struct {
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data"`
	Pagination struct {
		Data  json.RawMessage `json:"data"`
		Total int64           `json:"total"`
	} `json:"pagination"`
	Error   string         `json:"error"`
	Details map[string]any `json:"details"`
}

func newTestRouter(t *testing.T) router.Router {
	t.Helper()
	r := ginadapter.NewRouter()
	r.Use(requestid.RequestID(), controller.ErrorHandler(nil))
	svc := service.New[Contact](NewRepository(memory.New()))
	if err := New(svc).Register(r); err != nil {
		t.Fatalf("register: %v", err)
	}
	return r
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

const validBody = `{"firstName":"Ada","lastName":"Lovelace","email":"Ada@Example.COM","phone":"0123456789","city":"London"}`

func TestContact_CreateNormalizesEmail(t *testing.T) {
	r := newTestRouter(t)

	rec, env := do(t, r, http.MethodPost, BasePath, validBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", rec.Code, rec.Body.String())
	}
	var created Contact
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID == "" || created.Email != "ada@example.com" || !created.Active || created.City != "London" {
		t.Errorf("created = %+v", created)
	}
	if created.CreatedAt.IsZero() || created.DeletedAt != nil {
		t.Errorf("lifecycle fields = %+v", created.Base)
	}

	rec, env = do(t, r, http.MethodGet, BasePath+"/"+created.ID, "")
	var fetched Contact
	_ = json.Unmarshal(env.Data, &fetched)
	if rec.Code != http.StatusOK || fetched.Email != "ada@example.com" {
		t.Errorf("get = %d %s", rec.Code, rec.Body.String())
	}
}

func TestContact_CreateValidation(t *testing.T) {
	r := newTestRouter(t)

	tests := []struct {
		name   string
		body   string
		fields []string
	}{
		{
			name:   "missing names",
			body:   `{"email":"a@b.io","phone":"0123456789"}`,
			fields: []string{"firstName", "lastName"},
		},
		{
			name:   "bad email",
			body:   `{"firstName":"A","lastName":"B","email":"nope","phone":"0123456789"}`,
			fields: []string{"email"},
		},
		{
			name:   "short phone",
			body:   `{"firstName":"A","lastName":"B","email":"a@b.io","phone":"12345"}`,
			fields: []string{"phone"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := do(t, r, http.MethodPost, BasePath, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d %s", rec.Code, rec.Body.String())
			}
			if len(env.Details) != len(tt.fields) {
				t.Fatalf("details = %v", env.Details)
			}
			for _, f := range tt.fields {
				if _, ok := env.Details[f]; !ok {
					t.Errorf("expected %s in details %v", f, env.Details)
				}
			}
		})
	}
	if rec, env := do(t, r, http.MethodPost, BasePath, `{"firstName":"A","lastName":"B","email":"a@b.io","phone":"1"}`); env.Details["phone"] != "Phone must be at least 10 digits" {
		t.Errorf("phone message = %v (%d)", env.Details["phone"], rec.Code)
	}
}

func TestContact_Update(t *testing.T) {
	r := newTestRouter(t)
	_, env := do(t, r, http.MethodPost, BasePath, validBody)
	var created Contact
	_ = json.Unmarshal(env.Data, &created)
	path := BasePath + "/" + created.ID

	tests := []struct {
		name   string
		body   string
		status int
		check  func(t *testing.T, c Contact)
	}{
		{
			name:   "email lower-cased",
			body:   `{"email":"ADA@Lovelace.dev"}`,
			status: http.StatusOK,
			check: func(t *testing.T, c Contact) {
				if c.Email != "ada@lovelace.dev" || c.FirstName != "Ada" {
					t.Errorf("updated = %+v", c)
				}
			},
		},
		{
			name:   "unknown keys dropped",
			body:   `{"city":"Paris","role":"admin"}`,
			status: http.StatusOK,
			check: func(t *testing.T, c Contact) {
				if c.City != "Paris" {
					t.Errorf("city = %q", c.City)
				}
			},
		},
		{name: "only unknown keys", body: `{"role":"admin"}`, status: http.StatusBadRequest},
		{name: "bad phone", body: `{"phone":"123"}`, status: http.StatusBadRequest},
		{name: "empty first name", body: `{"firstName":""}`, status: http.StatusBadRequest},
		{name: "wrong type", body: `{"lastName":42}`, status: http.StatusBadRequest},
		{name: "active must be bool", body: `{"active":"no"}`, status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := do(t, r, http.MethodPatch, path, tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d %s", rec.Code, rec.Body.String())
			}
			if tt.check != nil {
				var c Contact
				if err := json.Unmarshal(env.Data, &c); err != nil {
					t.Fatalf("decode: %v", err)
				}
				tt.check(t, c)
			}
		})
	}
}

func TestContact_ListAndDelete(t *testing.T) {
	r := newTestRouter(t)
	for _, name := range []string{"Ada", "Grace", "Alan"} {
		body := strings.Replace(validBody, `"Ada"`, `"`+name+`"`, 1)
		if rec, _ := do(t, r, http.MethodPost, BasePath, body); rec.Code != http.StatusCreated {
			t.Fatalf("create %s = %d", name, rec.Code)
		}
	}

	rec, env := do(t, r, http.MethodPost, BasePath+"/search",
		`{"filters":[{"key":"firstName","operator":"in","value":["Ada","Alan"]}],"orderBy":{"field":"firstName"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("search = %d %s", rec.Code, rec.Body.String())
	}
	var found []Contact
	if err := json.Unmarshal(env.Pagination.Data, &found); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(found) != 2 || found[0].FirstName != "Ada" || found[1].FirstName != "Alan" {
		t.Fatalf("found = %+v", found)
	}

	if rec, _ := do(t, r, http.MethodDelete, BasePath+"/"+found[0].ID, ""); rec.Code != http.StatusOK {
		t.Fatalf("delete = %d", rec.Code)
	}
	rec, env = do(t, r, http.MethodGet, BasePath+"/paginate?limit=10", "")
	var live []Contact
	_ = json.Unmarshal(env.Pagination.Data, &live)
	if rec.Code != http.StatusOK || len(live) != 2 || env.Pagination.Total != 2 {
		t.Errorf("paginate = %d, %d contacts", rec.Code, len(live))
	}
}
