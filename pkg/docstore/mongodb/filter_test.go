package mongodb

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/nimburion/crudkit/pkg/docstore"
)

func TestPredicate(t *testing.T) {
	tests := []struct {
		name string
		p    docstore.Predicate
		want bson.D
	}{
		{"equal", docstore.Predicate{Field: "status", Op: docstore.OpEqual, Value: "active"},
			bson.D{{Key: "status", Value: bson.D{{Key: "$eq", Value: "active"}}}}},
		{"equal nil", docstore.Predicate{Field: "deletedAt", Op: docstore.OpEqual},
			bson.D{{Key: "deletedAt", Value: nil}}},
		{"not equal", docstore.Predicate{Field: "status", Op: docstore.OpNotEqual, Value: "gone"},
			bson.D{{Key: "status", Value: bson.D{{Key: "$nin", Value: bson.A{"gone", nil}}}}}},
		{"not equal nil", docstore.Predicate{Field: "deletedAt", Op: docstore.OpNotEqual},
			bson.D{{Key: "deletedAt", Value: bson.D{{Key: "$ne", Value: nil}}}}},
		{"range", docstore.Predicate{Field: "age", Op: docstore.OpGreaterOrEqual, Value: 18},
			bson.D{{Key: "age", Value: bson.D{{Key: "$gte", Value: 18}}}}},
		{"array contains", docstore.Predicate{Field: "tags", Op: docstore.OpArrayContains, Value: "vip"},
			bson.D{{Key: "tags", Value: bson.D{{Key: "$elemMatch", Value: bson.D{{Key: "$eq", Value: "vip"}}}}}}},
		{"array contains any", docstore.Predicate{Field: "tags", Op: docstore.OpArrayContainsAny, Value: []string{"a", "b"}},
			bson.D{{Key: "tags", Value: bson.D{{Key: "$elemMatch", Value: bson.D{{Key: "$in", Value: bson.A{"a", "b"}}}}}}}},
		{"in on id", docstore.Predicate{Field: docstore.DocumentID, Op: docstore.OpIn, Value: []any{"x", "y"}},
			bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: bson.A{"x", "y"}}}}}},
		{"not in", docstore.Predicate{Field: "plan", Op: docstore.OpNotIn, Value: []any{"free"}},
			bson.D{{Key: "plan", Value: bson.D{{Key: "$nin", Value: bson.A{"free", nil}}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := predicate(tt.p)
			if err != nil {
				t.Fatalf("predicate: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("predicate(%v)\n got  %v\n want %v", tt.p, got, tt.want)
			}
		})
	}
}

func TestPredicate_Errors(t *testing.T) {
	if _, err := predicate(docstore.Predicate{Field: "a", Op: "like"}); !errors.Is(err, docstore.ErrUnsupported) {
		t.Errorf("unknown operator error = %v", err)
	}
	if _, err := predicate(docstore.Predicate{Field: "a", Op: docstore.OpIn, Value: "x"}); !errors.Is(err, docstore.ErrUnsupported) {
		t.Errorf("scalar in error = %v", err)
	}
}

func TestBuildFilter(t *testing.T) {
	got, err := buildFilter(docstore.Query{})
	if err != nil || len(got) != 0 {
		t.Fatalf("empty filter = %v, %v", got, err)
	}

	got, err = buildFilter(docstore.Query{
		Where: []docstore.Predicate{{Field: "deletedAt", Op: docstore.OpEqual}},
		AnyOf: [][]docstore.Predicate{{
			{Field: "firstName", Op: docstore.OpEqual, Value: "Ada"},
			{Field: "lastName", Op: docstore.OpEqual, Value: "Ada"},
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := bson.D{{Key: "$and", Value: bson.A{
		bson.D{{Key: "deletedAt", Value: nil}},
		bson.D{{Key: "$or", Value: bson.A{
			bson.D{{Key: "firstName", Value: bson.D{{Key: "$eq", Value: "Ada"}}}},
			bson.D{{Key: "lastName", Value: bson.D{{Key: "$eq", Value: "Ada"}}}},
		}}},
	}}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("filter\n got  %v\n want %v", got, want)
	}
}

func TestSortKeys(t *testing.T) {
	keys := sortKeys([]docstore.Order{{Field: "createdAt", Direction: docstore.Desc}})
	want := []sortKey{{field: "createdAt", desc: true}, {field: "_id", desc: true}}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("keys = %v", keys)
	}
	spec := sortSpec(keys)
	if !reflect.DeepEqual(spec, bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}) {
		t.Errorf("spec = %v", spec)
	}

	keys = sortKeys([]docstore.Order{{Field: docstore.DocumentID, Direction: docstore.Asc}})
	if len(keys) != 1 || keys[0].field != "_id" {
		t.Errorf("id ordering should not be duplicated: %v", keys)
	}
	if keys := sortKeys(nil); len(keys) != 1 || keys[0].desc {
		t.Errorf("unordered keys = %v", keys)
	}
}

func TestAfterFilter(t *testing.T) {
	anchor := docstore.Document{ID: "c7", Fields: map[string]any{"rank": 3}}

	got := afterFilter([]sortKey{{field: "rank"}, {field: "_id"}}, anchor)
	want := bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "rank", Value: bson.D{{Key: "$gt", Value: 3}}}},
		bson.D{{Key: "$and", Value: bson.A{
			bson.D{{Key: "rank", Value: 3}},
			bson.D{{Key: "_id", Value: bson.D{{Key: "$gt", Value: "c7"}}}},
		}}},
	}}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ascending\n got  %v\n want %v", got, want)
	}

	got = afterFilter([]sortKey{{field: "missing", desc: true}, {field: "_id", desc: true}}, anchor)
	want = bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "$and", Value: bson.A{
			bson.D{{Key: "missing", Value: nil}},
			bson.D{{Key: "$or", Value: bson.A{
				bson.D{{Key: "_id", Value: bson.D{{Key: "$lt", Value: "c7"}}}},
				bson.D{{Key: "_id", Value: nil}},
			}}},
		}}},
	}}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("descending with null anchor\n got  %v\n want %v", got, want)
	}
}

func TestNormalize(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	raw := bson.M{
		"_id":     "c1",
		"profile": primitive.M{"city": "Turin", "tags": primitive.A{"a", primitive.D{{Key: "k", Value: 1}}}},
		"created": primitive.NewDateTimeFromTime(at),
	}
	doc := toDocument(raw)
	if doc.ID != "c1" {
		t.Fatalf("id = %q", doc.ID)
	}
	if _, ok := doc.Fields["_id"]; ok {
		t.Error("_id should not leak into fields")
	}
	want := map[string]any{
		"profile": map[string]any{"city": "Turin", "tags": []any{"a", map[string]any{"k": 1}}},
		"created": at,
	}
	if !reflect.DeepEqual(doc.Fields, want) {
		t.Errorf("fields = %#v", doc.Fields)
	}
}

func TestTimeEncoding(t *testing.T) {
	s := &Store{}
	at := time.Date(2024, 1, 2, 3, 4, 5, 123456789, time.FixedZone("X", 7200))
	enc := s.EncodeTime(at).(time.Time)
	if enc.Nanosecond() != 123000000 || enc.Location() != time.UTC {
		t.Errorf("encoded = %v", enc)
	}
	got, ok := s.DecodeTime(primitive.NewDateTimeFromTime(enc))
	if !ok || !got.Equal(enc) {
		t.Errorf("decoded = %v, %v", got, ok)
	}
	if _, ok := s.DecodeTime(int64(1)); ok {
		t.Error("integers are not times")
	}
}
