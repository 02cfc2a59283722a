package pagination

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/nimburion/crudkit/pkg/docstore"
)

func TestValidate(t *testing.T) {
	eleven := make([]string, 11)
	for i := range eleven {
		eleven[i] = "x"
	}
	var nilTime *time.Time

	tests := []struct {
		name    string
		filter  FilterCondition
		wantErr bool
	}{
		{"scalar equality", FilterCondition{Key: "status", Operator: "==", Value: "active"}, false},
		{"null value", FilterCondition{Key: "status", Operator: "==", Value: nil}, true},
		{"typed nil pointer", FilterCondition{Key: "createdAt", Operator: "<", Value: nilTime}, true},
		{"missing key", FilterCondition{Operator: "==", Value: 1}, true},
		{"unknown operator", FilterCondition{Key: "a", Operator: "like", Value: "x"}, true},
		{"array-contains scalar", FilterCondition{Key: "tags", Operator: "array-contains", Value: "go"}, false},
		{"array-contains array", FilterCondition{Key: "tags", Operator: "array-contains", Value: []string{"go"}}, true},
		{"in with list", FilterCondition{Key: "status", Operator: "in", Value: []any{"a", "b"}}, false},
		{"in with scalar", FilterCondition{Key: "status", Operator: "in", Value: "a"}, true},
		{"in empty", FilterCondition{Key: "status", Operator: "in", Value: []string{}}, true},
		{"in eleven values", FilterCondition{Key: "status", Operator: "in", Value: eleven}, true},
		{"in ten values", FilterCondition{Key: "status", Operator: "in", Value: eleven[:10]}, false},
		{"not-in scalar", FilterCondition{Key: "status", Operator: "not-in", Value: 3}, true},
		{"array-contains-any empty", FilterCondition{Key: "tags", Operator: "array-contains-any", Value: []any{}}, true},
		{"range on date", FilterCondition{Key: "createdAt", Operator: ">=", Value: time.Now()}, false},
		{"document id", FilterCondition{Key: docstore.DocumentID, Operator: "in", Value: []string{"a"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.filter)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				return
			}
			if !errors.Is(err, ErrInvalidFilterValue) {
				t.Errorf("error %v does not match ErrInvalidFilterValue", err)
			}
			var fe *FilterError
			if !errors.As(err, &fe) || fe.Filter.Key != tt.filter.Key {
				t.Errorf("error %v is not a *FilterError for key %q", err, tt.filter.Key)
			}
		})
	}
}

func TestValidateOptions(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"empty", Options{}, false},
		{
			"invalid condition inside composite",
			Options{CompositeFilters: []CompositeFilter{{Type: CompositeAnd, Conditions: []FilterCondition{{Key: "a", Operator: "in", Value: []int{}}}}}},
			true,
		},
		{"unknown composite type", Options{CompositeFilters: []CompositeFilter{{Type: "xor"}}}, true},
		{"empty or group", Options{CompositeFilters: []CompositeFilter{{Type: CompositeOr}}}, true},
		{"empty and group", Options{CompositeFilters: []CompositeFilter{{Type: CompositeAnd}}}, false},
		{"date range without field", Options{DateRange: &DateRange{Start: ptrTime(time.Now())}}, true},
		{"orderBy asc and desc", Options{OrderBy: OrderList{{Field: "a", Direction: "asc"}, {Field: "b", Direction: "desc"}}}, false},
		{"orderBy without direction", Options{OrderBy: OrderList{{Field: "a"}}}, false},
		{"orderBy uppercase direction", Options{OrderBy: OrderList{{Field: "a", Direction: "DESC"}}}, true},
		{"orderBy unknown direction", Options{OrderBy: OrderList{{Field: "a", Direction: "descending"}}}, true},
		{"orderBy without field", Options{OrderBy: OrderList{{Direction: "desc"}}}, true},
		{"page offset overflows", Options{Page: math.MaxInt/16 + 2, Limit: 16}, true},
		{"last page before overflow", Options{Page: math.MaxInt/16 + 1, Limit: 16}, false},
		{"huge page with cursor", Options{Page: math.MaxInt, Limit: 16, LastVisible: "x"}, false},
		{"huge page with all", Options{Page: math.MaxInt, Limit: 16, All: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOptions(tt.opts)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateOptions() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !IsValidation(err) {
				t.Errorf("IsValidation(%v) = false", err)
			}
		})
	}
}

func TestOffset(t *testing.T) {
	tests := []struct {
		page, limit int
		want        int
		ok          bool
	}{
		{1, 10, 0, true},
		{0, 10, 0, true},
		{3, 25, 50, true},
		{2, 0, 0, true},
		{math.MaxInt, 2, 0, false},
		{1<<60 + 1, 16, 0, false},
	}
	for _, tt := range tests {
		got, ok := Offset(tt.page, tt.limit)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Offset(%d, %d) = %d, %v; want %d, %v", tt.page, tt.limit, got, ok, tt.want, tt.ok)
		}
	}
}

func ptrTime(t time.Time) *time.Time {
	return &t
}
