package postgres

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/nimburion/crudkit/pkg/docstore"
)

func TestFieldExpr(t *testing.T) {
	tests := map[string]string{
		"status":            "data->'status'",
		"address.city":      "data->'address'->'city'",
		"o'brien":           "data->'o''brien'",
		docstore.DocumentID: "to_jsonb(id)",
	}
	for field, want := range tests {
		if got := fieldExpr(field); got != want {
			t.Errorf("fieldExpr(%q) = %q, want %q", field, got, want)
		}
	}
}

func TestPredicate(t *testing.T) {
	tests := []struct {
		name string
		p    docstore.Predicate
		sql  string
		args []any
	}{
		{"equal", docstore.Predicate{Field: "status", Op: docstore.OpEqual, Value: "active"},
			"data->'status' = $1::jsonb", []any{`"active"`}},
		{"equal nil", docstore.Predicate{Field: "deletedAt", Op: docstore.OpEqual},
			"(data->'deletedAt' IS NULL OR data->'deletedAt' = 'null'::jsonb)", nil},
		{"not equal", docstore.Predicate{Field: "n", Op: docstore.OpNotEqual, Value: 3},
			"(data->'n' IS NOT NULL AND data->'n' <> 'null'::jsonb AND data->'n' <> $1::jsonb)", []any{"3"}},
		{"range", docstore.Predicate{Field: "age", Op: docstore.OpLess, Value: 30},
			"(jsonb_typeof(data->'age') = jsonb_typeof($1::jsonb) AND data->'age' < $1::jsonb)", []any{"30"}},
		{"range nil", docstore.Predicate{Field: "age", Op: docstore.OpLess}, "FALSE", nil},
		{"array contains", docstore.Predicate{Field: "tags", Op: docstore.OpArrayContains, Value: "vip"},
			"(jsonb_typeof(data->'tags') = 'array' AND data->'tags' @> $1::jsonb)", []any{`["vip"]`}},
		{"array contains any", docstore.Predicate{Field: "tags", Op: docstore.OpArrayContainsAny, Value: []string{"a", "b"}},
			"(jsonb_typeof(data->'tags') = 'array' AND (data->'tags' @> $1::jsonb OR data->'tags' @> $2::jsonb))",
			[]any{`["a"]`, `["b"]`}},
		{"in id", docstore.Predicate{Field: docstore.DocumentID, Op: docstore.OpIn, Value: []any{"x", "y"}},
			"to_jsonb(id) IN ($1::jsonb, $2::jsonb)", []any{`"x"`, `"y"`}},
		{"in empty", docstore.Predicate{Field: "a", Op: docstore.OpIn, Value: []any{}}, "FALSE", nil},
		{"not in", docstore.Predicate{Field: "plan", Op: docstore.OpNotIn, Value: []string{"free"}},
			"(data->'plan' IS NOT NULL AND data->'plan' <> 'null'::jsonb AND data->'plan' NOT IN ($1::jsonb))", []any{`"free"`}},
		{"time", docstore.Predicate{Field: "createdAt", Op: docstore.OpGreaterOrEqual, Value: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
			"(jsonb_typeof(data->'createdAt') = jsonb_typeof($1::jsonb) AND data->'createdAt' >= $1::jsonb)",
			[]any{`"2024-05-01T00:00:00.000000000Z"`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &sqlBuilder{}
			got, err := b.predicate(tt.p)
			if err != nil {
				t.Fatalf("predicate: %v", err)
			}
			if got != tt.sql {
				t.Errorf("sql\n got  %s\n want %s", got, tt.sql)
			}
			if !reflect.DeepEqual(b.args, tt.args) {
				t.Errorf("args = %#v, want %#v", b.args, tt.args)
			}
		})
	}
}

func TestPredicate_Errors(t *testing.T) {
	b := &sqlBuilder{}
	if _, err := b.predicate(docstore.Predicate{Field: "a", Op: "like"}); !errors.Is(err, docstore.ErrUnsupported) {
		t.Errorf("unknown operator error = %v", err)
	}
	if _, err := b.predicate(docstore.Predicate{Field: "a", Op: docstore.OpNotIn, Value: 1}); !errors.Is(err, docstore.ErrUnsupported) {
		t.Errorf("scalar not-in error = %v", err)
	}
	if _, err := b.predicate(docstore.Predicate{Field: "a", Op: docstore.OpEqual, Value: make(chan int)}); !errors.Is(err, docstore.ErrUnsupported) {
		t.Errorf("unencodable value error = %v", err)
	}
}

func TestSelectSQL(t *testing.T) {
	s := New(nil, "")
	q := docstore.Query{
		Collection: "contacts",
		Where:      []docstore.Predicate{{Field: "deletedAt", Op: docstore.OpEqual}},
		AnyOf: [][]docstore.Predicate{{
			{Field: "firstName", Op: docstore.OpEqual, Value: "Ada"},
			{Field: "lastName", Op: docstore.OpEqual, Value: "Ada"},
		}},
		OrderBy: []docstore.Order{{Field: "createdAt", Direction: docstore.Desc}},
		Limit:   11,
		Offset:  5,
	}
	anchor := &docstore.Document{ID: "c9", Fields: map[string]any{"createdAt": "2024-05-01T00:00:00.000000000Z"}}

	got, args, err := s.selectSQL(q, anchor)
	if err != nil {
		t.Fatal(err)
	}
	want := `SELECT id, data FROM "documents" WHERE collection = $1` +
		` AND (data->'deletedAt' IS NULL OR data->'deletedAt' = 'null'::jsonb)` +
		` AND (data->'firstName' = $2::jsonb OR data->'lastName' = $3::jsonb)` +
		` AND ((COALESCE(data->'createdAt', 'null'::jsonb) < $4::jsonb)` +
		` OR (COALESCE(data->'createdAt', 'null'::jsonb) = $4::jsonb AND id < $5))` +
		` ORDER BY COALESCE(data->'createdAt', 'null'::jsonb) DESC, id DESC LIMIT $6 OFFSET $7`
	if got != want {
		t.Errorf("sql\n got  %s\n want %s", got, want)
	}
	wantArgs := []any{"contacts", `"Ada"`, `"Ada"`, `"2024-05-01T00:00:00.000000000Z"`, "c9", 11, 5}
	if !reflect.DeepEqual(args, wantArgs) {
		t.Errorf("args = %#v", args)
	}
}

func TestCountSQL_IgnoresPaging(t *testing.T) {
	s := New(nil, "docs")
	got, args, err := s.countSQL(docstore.Query{
		Collection: "contacts",
		Where:      []docstore.Predicate{{Field: "status", Op: docstore.OpEqual, Value: "active"}},
		OrderBy:    []docstore.Order{{Field: "createdAt"}},
		Limit:      10,
	})
	if err != nil {
		t.Fatal(err)
	}
	want := `SELECT COUNT(*) FROM "docs" WHERE collection = $1 AND data->'status' = $2::jsonb`
	if got != want || len(args) != 2 {
		t.Errorf("sql = %s args = %v", got, args)
	}
}

func TestSortKeys_IDOrder(t *testing.T) {
	keys := sortKeys([]docstore.Order{{Field: docstore.DocumentID, Direction: docstore.Desc}})
	if len(keys) != 1 || keys[0].expr != "id" || !keys[0].desc {
		t.Errorf("keys = %+v", keys)
	}
	if got := orderClause(sortKeys(nil)); got != "id ASC" {
		t.Errorf("default order = %q", got)
	}
}
