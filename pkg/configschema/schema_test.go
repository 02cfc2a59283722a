package configschema

import (
	"encoding/json"
	"testing"

	"github.com/nimburion/crudkit/pkg/config"
)

func TestBuildSchema_UsesConfigKeys(t *testing.T) {
	schema, err := BuildSchema()
	if err != nil {
		t.Fatalf("build schema: %v", err)
	}

	for _, key := range []string{"router_type", "service", "http", "database", "cache", "pagination", "observability"} {
		if _, ok := schema.Properties[key]; !ok {
			t.Errorf("expected %q root key in generated schema", key)
		}
	}
	if _, ok := schema.Properties["RouterType"]; ok {
		t.Error("did not expect Go field names in generated schema")
	}
	if schema.Title != "crudkit Configuration" {
		t.Errorf("title = %q", schema.Title)
	}
}

func TestBuildSchema_InjectsDefaults(t *testing.T) {
	schema, err := BuildSchema()
	if err != nil {
		t.Fatalf("build schema: %v", err)
	}

	tests := []struct {
		path string
		want string
	}{
		{"router_type", `"gin"`},
		{"http.port", `8080`},
		{"http.shutdown_timeout", `"15s"`},
		{"pagination.max_limit", `100`},
		{"pagination.soft_delete", `true`},
		{"cache.ttl", `"1m0s"`},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			prop := lookup(schema, tt.path)
			if prop == nil {
				t.Fatalf("missing property %s", tt.path)
			}
			if string(prop.Default) != tt.want {
				t.Errorf("default = %s, want %s", prop.Default, tt.want)
			}
		})
	}
}

func TestBuildSchema_DurationsAreStrings(t *testing.T) {
	schema, err := BuildSchema()
	if err != nil {
		t.Fatalf("build schema: %v", err)
	}
	prop := lookup(schema, "database.query_timeout")
	if prop == nil || prop.Type != "string" || prop.Pattern == "" {
		t.Fatalf("query_timeout schema = %+v", prop)
	}
}

func TestBuildSchema_Enums(t *testing.T) {
	schema, err := BuildSchema()
	if err != nil {
		t.Fatalf("build schema: %v", err)
	}
	prop := lookup(schema, "database.type")
	if prop == nil || len(prop.Enum) != 4 {
		t.Fatalf("database.type enum = %+v", prop)
	}
}

func TestBuildSchema_NothingRequiredWhenDefaulted(t *testing.T) {
	schema, err := BuildSchema()
	if err != nil {
		t.Fatalf("build schema: %v", err)
	}
	if len(schema.Required) != 0 {
		t.Errorf("root required = %v", schema.Required)
	}
	if req := lookup(schema, "http").Required; len(req) != 0 {
		t.Errorf("http required = %v", req)
	}
}

func TestBuildSchemaWithDefaults_UsesProvidedValues(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Service.Name = "contacts"
	cfg.HTTP.Port = 9000

	schema, err := BuildSchemaWithDefaults(cfg)
	if err != nil {
		t.Fatalf("build schema: %v", err)
	}
	if schema.Title != "contacts Configuration" {
		t.Errorf("title = %q", schema.Title)
	}
	var port int
	if err := json.Unmarshal(lookup(schema, "http.port").Default, &port); err != nil || port != 9000 {
		t.Errorf("port default = %d (%v)", port, err)
	}
}
