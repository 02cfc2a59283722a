package requestid

import (
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/nimburion/crudkit/pkg/server/router"
	ginadapter "github.com/nimburion/crudkit/pkg/server/router/gin"
)

var uuidPattern = regexp.MustCompile(`^[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}$`)

func serve(incoming string) (header, seen string) {
	r := ginadapter.NewRouter()
	r.Use(RequestID())
	r.GET("/test", func(c router.Context) error {
		seen = FromContext(c.Request().Context())
		return c.NoContent(http.StatusNoContent)
	})
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	if incoming != "" {
		req.Header.Set(HeaderName, incoming)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec.Header().Get(HeaderName), seen
}

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{name: "generated when absent"},
		{name: "kept when valid", incoming: "abc-123", keep: true},
		{name: "replaced when malformed", incoming: "bad id\n"},
		{name: "replaced when too long", incoming: strings.Repeat("a", 129)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header, seen := serve(tt.incoming)
			if header != seen {
				t.Fatalf("header %q != context %q", header, seen)
			}
			if tt.keep && header != tt.incoming {
				t.Errorf("header = %q, want %q", header, tt.incoming)
			}
			if !tt.keep && !uuidPattern.MatchString(header) {
				t.Errorf("header = %q, want generated UUID", header)
			}
		})
	}
}

func TestRequestID_PropagatesValidIDs(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("valid incoming IDs are echoed and stored", prop.ForAll(
		func(id string) bool {
			header, seen := serve(id)
			return header == id && seen == id
		},
		gen.AlphaString().SuchThat(func(s string) bool { return len(s) > 0 && len(s) <= 128 }),
	))

	properties.TestingRun(t)
}
