package records

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/smartsuite/cachebridge/internal/localdb"
	"github.com/smartsuite/cachebridge/internal/model"
	"github.com/smartsuite/cachebridge/internal/schema"
	"go.uber.org/zap"
)

func newTestEntry(t *testing.T) (*localdb.DB, *schema.Registry, *schema.Entry) {
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
		{Slug: "amount", Label: "Amount", Type: model.FieldCurrency},
		{Slug: "tags", Label: "Tags", Type: model.FieldTag},
	}
	if _, err := reg.Ensure(ctx, "tbl1", "Orders", structure); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	entry, err := reg.Get(ctx, "tbl1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	return db, reg, entry
}

func TestReplaceAllAndGetOne(t *testing.T) {
	db, _, entry := newTestEntry(t)
	store := New(db)
	ctx := context.Background()

	recs := []model.Record{
		{
			ID: "r1", Title: "Order 1",
			Fields: map[string]any{
				"status": map[string]any{"value": "Open", "updated_on": "2024-01-01T00:00:00Z"},
				"amount": float64(42.5),
				"tags":   []any{"a", "b"},
			},
		},
	}
	if err := store.ReplaceAll(ctx, entry, recs, time.Hour); err != nil {
		t.Fatalf("replace_all: %v", err)
	}

	valid, err := store.Valid(ctx, entry)
	if err != nil || !valid {
		t.Fatalf("expected valid cache, err=%v valid=%v", err, valid)
	}

	got, err := store.GetOne(ctx, entry, "r1")
	if err != nil {
		t.Fatalf("get_one: %v", err)
	}
	if got.Title != "Order 1" {
		t.Fatalf("title = %q", got.Title)
	}
	status, ok := got.Fields["status"].(map[string]any)
	if !ok || status["value"] != "Open" {
		t.Fatalf("status = %#v", got.Fields["status"])
	}
	if got.Fields["amount"] != 42.5 {
		t.Fatalf("amount = %#v", got.Fields["amount"])
	}
	tags, ok := got.Fields["tags"].([]any)
	if !ok || len(tags) != 2 {
		t.Fatalf("tags = %#v", got.Fields["tags"])
	}
}

func TestReplaceAllClearsPreviousSnapshot(t *testing.T) {
	db, _, entry := newTestEntry(t)
	store := New(db)
	ctx := context.Background()

	first := []model.Record{{ID: "r1", Title: "First", Fields: map[string]any{}}}
	if err := store.ReplaceAll(ctx, entry, first, time.Hour); err != nil {
		t.Fatalf("replace 1: %v", err)
	}
	second := []model.Record{{ID: "r2", Title: "Second", Fields: map[string]any{}}}
	if err := store.ReplaceAll(ctx, entry, second, time.Hour); err != nil {
		t.Fatalf("replace 2: %v", err)
	}

	if _, err := store.GetOne(ctx, entry, "r1"); err == nil {
		t.Fatalf("expected r1 to be gone after replace_all")
	}
	got, err := store.GetOne(ctx, entry, "r2")
	if err != nil || got.Title != "Second" {
		t.Fatalf("expected r2 present, err=%v got=%#v", err, got)
	}
}

func TestUpsertAndDeleteOne(t *testing.T) {
	db, _, entry := newTestEntry(t)
	store := New(db)
	ctx := context.Background()

	rec := model.Record{ID: "r1", Title: "Solo", Fields: map[string]any{"amount": float64(1)}}
	if err := store.UpsertOne(ctx, entry, rec, time.Hour); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := store.GetOne(ctx, entry, "r1"); err != nil {
		t.Fatalf("get_one after upsert: %v", err)
	}

	if err := store.DeleteOne(ctx, entry, "r1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetOne(ctx, entry, "r1"); err == nil {
		t.Fatalf("expected row gone after delete_one")
	}
}

func TestValidReportsFalseWhenExpired(t *testing.T) {
	db, _, entry := newTestEntry(t)
	store := New(db)
	ctx := context.Background()

	recs := []model.Record{{ID: "r1", Fields: map[string]any{}}}
	if err := store.ReplaceAll(ctx, entry, recs, -time.Hour); err != nil {
		t.Fatalf("replace_all: %v", err)
	}
	valid, err := store.Valid(ctx, entry)
	if err != nil {
		t.Fatalf("valid: %v", err)
	}
	if valid {
		t.Fatalf("expected cache to be considered expired")
	}
}
