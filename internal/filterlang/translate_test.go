package filterlang

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/smartsuite/cachebridge/internal/localdb"
	"github.com/smartsuite/cachebridge/internal/model"
	"github.com/smartsuite/cachebridge/internal/query"
	"github.com/smartsuite/cachebridge/internal/records"
	"github.com/smartsuite/cachebridge/internal/schema"
	"go.uber.org/zap"
)

func setup(t *testing.T) (*localdb.DB, *schema.Entry) {
	t.Helper()
	db, err := localdb.Open(filepath.Join(t.TempDir(), "cache.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	reg := schema.New(db, zap.NewNop())
	ctx := context.Background()
	if err := reg.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	structure := model.Structure{
		{Slug: "status", Label: "Status", Type: model.FieldStatus},
		{Slug: "due", Label: "Due", Type: model.FieldDueDate},
	}
	if _, err := reg.Ensure(ctx, "tbl1", "Orders", structure); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	entry, _ := reg.Get(ctx, "tbl1")
	store := records.New(db)
	recs := []model.Record{
		{ID: "r1", Fields: map[string]any{"status": map[string]any{"value": "Open"}}},
		{ID: "r2", Fields: map[string]any{"status": map[string]any{"value": "Done"}}},
	}
	if err := store.ReplaceAll(ctx, entry, recs, time.Hour); err != nil {
		t.Fatalf("replace_all: %v", err)
	}
	return db, entry
}

func queryIDs(t *testing.T, db *localdb.DB, q string, args []any) []string {
	t.Helper()
	rows, err := db.Query(context.Background(), q, args...)
	if err != nil {
		t.Fatalf("query: %v (sql=%s)", err, q)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			t.Fatalf("scan: %v", err)
		}
		out = append(out, id)
	}
	return out
}

func TestApplyLeafCondition(t *testing.T) {
	db, entry := setup(t)
	b := query.New(entry, time.UTC)
	g := &model.FilterGroup{Field: "status", Compare: "is", Value: "Open"}
	Apply(b, g)
	q, args, err := b.Build([]string{"id"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	got := queryIDs(t, db, q, args)
	if len(got) != 1 || got[0] != "r1" {
		t.Fatalf("got %v, want [r1]", got)
	}
}

func TestApplyNestedOrGroup(t *testing.T) {
	db, entry := setup(t)
	b := query.New(entry, time.UTC)
	g := &model.FilterGroup{
		Operator: "or",
		Fields: []model.FilterGroup{
			{Field: "status", Compare: "is", Value: "Open"},
			{Field: "status", Compare: "is", Value: "Done"},
		},
	}
	Apply(b, g)
	q, args, err := b.Build([]string{"id"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	got := queryIDs(t, db, q, args)
	if len(got) != 2 {
		t.Fatalf("got %v, want 2 rows", got)
	}
}

func TestApplyDateEnvelopeUnwrapped(t *testing.T) {
	_, entry := setup(t)
	b := query.New(entry, time.UTC)
	g := &model.FilterGroup{
		Field:   "due.to_date",
		Compare: "is_on_or_after",
		Value:   map[string]any{"date_mode": "exact_date", "date_mode_value": "2026-06-15"},
	}
	Apply(b, g)
	_, args, err := b.Build([]string{"id"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(args) != 1 {
		t.Fatalf("expected one bound arg, got %v", args)
	}
}

func TestApplyIsEmptyNormalizesValueToNil(t *testing.T) {
	_, entry := setup(t)
	b := query.New(entry, time.UTC)
	g := &model.FilterGroup{Field: "status", Compare: "is_empty", Value: ""}
	Apply(b, g)
	_, args, err := b.Build([]string{"id"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(args) != 0 {
		t.Fatalf("is_empty should bind no args, got %v", args)
	}
}

func TestApplyNilGroupIsNoop(t *testing.T) {
	_, entry := setup(t)
	b := query.New(entry, time.UTC)
	Apply(b, nil)
	q, args, err := b.Build([]string{"id"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(args) != 0 || q == "" {
		t.Fatalf("expected unfiltered select, got q=%q args=%v", q, args)
	}
}
