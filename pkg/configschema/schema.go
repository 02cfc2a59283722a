package configschema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/nimburion/crudkit/pkg/config"
)

// durationPattern accepts the strings time.ParseDuration understands.
const durationPattern = `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`

// enums constrains the enumerated keys, addressed by dotted path.
var enums = map[string][]any{
	"router_type":              {"gin", "gorilla"},
	"database.type":            {config.DatabaseTypeMemory, config.DatabaseTypeFirestore, config.DatabaseTypeMongoDB, config.DatabaseTypePostgres},
	"cache.type":               {config.CacheTypeNone, config.CacheTypeRedis},
	"observability.log_level":  {"debug", "info", "warn", "error"},
	"observability.log_format": {"json", "text"},
}

// BuildSchema returns a JSON Schema for config.Config with config.DefaultConfig
// values injected as defaults.
func BuildSchema() (*jsonschema.Schema, error) {
	return BuildSchemaWithDefaults(nil)
}

// BuildSchemaWithDefaults builds the schema and injects defaults.
// If defaults is nil, config.DefaultConfig() is used.
func BuildSchemaWithDefaults(defaults *config.Config) (*jsonschema.Schema, error) {
	opts := &jsonschema.ForOptions{
		IgnoreInvalidTypes: true,
		TypeSchemas: map[reflect.Type]*jsonschema.Schema{
			reflect.TypeOf(time.Duration(0)): {Type: "string", Pattern: durationPattern},
		},
	}

	schema, err := jsonschema.ForType(reflect.TypeOf(config.Config{}), opts)
	if err != nil {
		return nil, fmt.Errorf("build schema: %w", err)
	}

	if defaults == nil {
		defaults = config.DefaultConfig()
	}
	injectDefaults(schema, reflect.ValueOf(defaults))
	pruneRequiredWithDefaults(schema)
	for path, values := range enums {
		if prop := lookup(schema, path); prop != nil {
			prop.Enum = values
		}
	}

	serviceName := "Service"
	if name := strings.TrimSpace(defaults.Service.Name); name != "" {
		serviceName = name
	}
	schema.Title = serviceName + " Configuration"
	schema.Description = "Schema for " + serviceName + " configuration."
	schema.Schema = "https://json-schema.org/draft/2020-12/schema"
	return schema, nil
}

func lookup(schema *jsonschema.Schema, path string) *jsonschema.Schema {
	for _, part := range strings.Split(path, ".") {
		if schema == nil {
			return nil
		}
		schema = schema.Properties[part]
	}
	return schema
}

func injectDefaults(schema *jsonschema.Schema, value reflect.Value) {
	if schema == nil || !value.IsValid() {
		return
	}
	for value.Kind() == reflect.Pointer {
		if value.IsNil() {
			return
		}
		value = value.Elem()
	}

	if value.Kind() != reflect.Struct {
		if schema.Default == nil {
			if raw, ok := marshalDefault(schema, value); ok {
				schema.Default = raw
			}
		}
		return
	}

	t := value.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name, ok := jsonFieldName(field)
		if !ok {
			continue
		}
		prop, ok := schema.Properties[name]
		if !ok {
			continue
		}
		injectDefaults(prop, value.Field(i))
	}
}

func pruneRequiredWithDefaults(schema *jsonschema.Schema) {
	if schema == nil {
		return
	}
	for _, prop := range schema.Properties {
		pruneRequiredWithDefaults(prop)
	}
	if len(schema.Required) == 0 || len(schema.Properties) == 0 {
		return
	}
	kept := make([]string, 0, len(schema.Required))
	for _, name := range schema.Required {
		prop := schema.Properties[name]
		if prop == nil || (prop.Default == nil && prop.Type != "object") {
			kept = append(kept, name)
		}
	}
	schema.Required = kept
}

func marshalDefault(schema *jsonschema.Schema, value reflect.Value) (json.RawMessage, bool) {
	if value.Type() == reflect.TypeOf(time.Duration(0)) && schema.Type == "string" {
		payload, err := json.Marshal(time.Duration(value.Int()).String())
		if err != nil {
			return nil, false
		}
		return payload, true
	}
	payload, err := json.Marshal(value.Interface())
	if err != nil {
		return nil, false
	}
	return payload, true
}

func jsonFieldName(field reflect.StructField) (string, bool) {
	name := field.Name
	if tag, ok := field.Tag.Lookup("json"); ok {
		tagName, _, _ := strings.Cut(tag, ",")
		if tagName == "-" {
			return "", false
		}
		if tagName != "" {
			name = tagName
		}
	}
	return name, true
}
