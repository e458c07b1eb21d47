package codec

import (
	"reflect"
	"testing"

	"github.com/smartsuite/cachebridge/internal/model"
)

func roundTrip(t *testing.T, ft model.FieldType, value any) any {
	t.Helper()
	f := model.Field{Slug: "f", Label: "F", Type: ft}
	raw, err := Encode(f, value)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(ft, raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return got
}

func TestEncodeDecodeDate(t *testing.T) {
	in := map[string]any{"date": "2024-01-02", "include_time": true}
	got := roundTrip(t, model.FieldDate, in)
	if !reflect.DeepEqual(got, in) {
		t.Fatalf("got %#v, want %#v", got, in)
	}
}

func TestEncodeDecodeDateRange(t *testing.T) {
	in := map[string]any{
		"from_date": map[string]any{"date": "2024-01-01", "include_time": false},
		"to_date":   map[string]any{"date": "2024-01-31", "include_time": true},
	}
	got := roundTrip(t, model.FieldDateRange, in)
	if !reflect.DeepEqual(got, in) {
		t.Fatalf("got %#v, want %#v", got, in)
	}
}

func TestEncodeDecodeDueDate(t *testing.T) {
	in := map[string]any{
		"from_date":    map[string]any{"date": "2024-01-01", "include_time": false},
		"to_date":      map[string]any{"date": "2024-01-31", "include_time": false},
		"is_overdue":   true,
		"is_completed": false,
	}
	got := roundTrip(t, model.FieldDueDate, in)
	if !reflect.DeepEqual(got, in) {
		t.Fatalf("got %#v, want %#v", got, in)
	}
}

func TestEncodeDecodeDeletedDate(t *testing.T) {
	in := map[string]any{"date": "2024-03-01T00:00:00Z", "by": "user-42"}
	got := roundTrip(t, model.FieldDeletedDate, in)
	if !reflect.DeepEqual(got, in) {
		t.Fatalf("got %#v, want %#v", got, in)
	}
}

func TestColumnsDeletedDateEmitsFixedOnByNames(t *testing.T) {
	cols := Columns(model.FieldDeletedDate)
	if len(cols) != 2 {
		t.Fatalf("expected 2 columns, got %d", len(cols))
	}
	if cols[0].FixedName != "deleted_on" || cols[1].FixedName != "deleted_by" {
		t.Fatalf("unexpected fixed names: %#v", cols)
	}
}

func TestEncodeJSONArrayFieldEmptyIsLiteralBrackets(t *testing.T) {
	f := model.Field{Slug: "tags", Label: "Tags", Type: model.FieldTag}
	raw, err := Encode(f, []any{})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if raw[""] != "[]" {
		t.Fatalf("expected literal [], got %v", raw[""])
	}

	got, err := Decode(model.FieldTag, raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	arr, ok := got.([]any)
	if !ok || len(arr) != 0 {
		t.Fatalf("expected empty slice, got %#v", got)
	}
}

func TestEncodeMissingValueProducesNullColumns(t *testing.T) {
	f := model.Field{Slug: "d", Label: "D", Type: model.FieldDateRange}
	raw, err := Encode(f, nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for _, c := range Columns(model.FieldDateRange) {
		if raw[c.Suffix] != nil {
			t.Fatalf("suffix %q: expected nil, got %v", c.Suffix, raw[c.Suffix])
		}
	}
}

func TestEncodeStatus(t *testing.T) {
	in := map[string]any{"value": "Done", "updated_on": "2024-02-01T00:00:00Z"}
	got := roundTrip(t, model.FieldStatus, in)
	if !reflect.DeepEqual(got, in) {
		t.Fatalf("got %#v, want %#v", got, in)
	}
}

func TestEncodeChecklistCounts(t *testing.T) {
	f := model.Field{Slug: "c", Label: "C", Type: model.FieldChecklist}
	items := []any{
		map[string]any{"text": "a", "completed": true},
		map[string]any{"text": "b", "completed": false},
	}
	raw, err := Encode(f, items)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if raw["_total"] != 2 || raw["_completed"] != 1 {
		t.Fatalf("unexpected counts: %#v", raw)
	}
}

func TestEncodeNumberRejectsNonNumeric(t *testing.T) {
	f := model.Field{Slug: "n", Label: "N", Type: model.FieldNumber}
	if _, err := Encode(f, "not-a-number"); err == nil {
		t.Fatalf("expected error for non-numeric value")
	}
}

func TestSanitizeIdent(t *testing.T) {
	cases := map[string]string{
		"Due Date":   "due_date",
		"123abc":     "t_123abc",
		"select":     "select_col",
		"Café Name!": "caf_name",
	}
	for in, want := range cases {
		if got := SanitizeIdent(in, "fallback"); got != want {
			t.Fatalf("SanitizeIdent(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDedupe(t *testing.T) {
	seen := map[string]bool{}
	a := Dedupe("status", seen)
	b := Dedupe("status", seen)
	c := Dedupe("status", seen)
	if a != "status" || b != "status_2" || c != "status_3" {
		t.Fatalf("got %q %q %q", a, b, c)
	}
}
