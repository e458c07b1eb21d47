package schema

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/smartsuite/cachebridge/internal/localdb"
	"github.com/smartsuite/cachebridge/internal/model"
	"go.uber.org/zap"
)

func newTestRegistry(t *testing.T) (*Registry, context.Context) {
	t.Helper()
	db, err := localdb.Open(filepath.Join(t.TempDir(), "cache.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	r := New(db, zap.NewNop())
	ctx := context.Background()
	if err := r.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	return r, ctx
}

func TestEnsureCreatesTable(t *testing.T) {
	r, ctx := newTestRegistry(t)
	structure := model.Structure{
		{Slug: "s1", Label: "Status", Type: model.FieldStatus},
		{Slug: "n1", Label: "Amount", Type: model.FieldCurrency},
	}
	name, err := r.Ensure(ctx, "tbl1", "Orders", structure)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if name != "orders" {
		t.Fatalf("got sql table name %q", name)
	}

	entry, err := r.Get(ctx, "tbl1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(entry.FieldMapping) != 2 {
		t.Fatalf("expected 2 mapped fields, got %d", len(entry.FieldMapping))
	}
}

func TestEnsureIsIdempotent(t *testing.T) {
	r, ctx := newTestRegistry(t)
	structure := model.Structure{{Slug: "s1", Label: "Status", Type: model.FieldStatus}}
	name1, err := r.Ensure(ctx, "tbl1", "Orders", structure)
	if err != nil {
		t.Fatalf("ensure 1: %v", err)
	}
	name2, err := r.Ensure(ctx, "tbl1", "Orders", structure)
	if err != nil {
		t.Fatalf("ensure 2: %v", err)
	}
	if name1 != name2 {
		t.Fatalf("expected stable table name, got %q then %q", name1, name2)
	}
}

func TestEvolveAddsNewColumnsWithoutDroppingOld(t *testing.T) {
	r, ctx := newTestRegistry(t)
	structure := model.Structure{{Slug: "s1", Label: "Status", Type: model.FieldStatus}}
	if _, err := r.Ensure(ctx, "tbl1", "Orders", structure); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	structure = append(structure, model.Field{Slug: "n1", Label: "Amount", Type: model.FieldCurrency})
	if _, err := r.Ensure(ctx, "tbl1", "Orders", structure); err != nil {
		t.Fatalf("evolve: %v", err)
	}

	entry, err := r.Get(ctx, "tbl1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(entry.FieldMapping) != 2 {
		t.Fatalf("expected 2 fields after evolve, got %d", len(entry.FieldMapping))
	}
	if _, ok := entry.FieldMapping["s1"]; !ok {
		t.Fatalf("expected original field s1 to survive evolution")
	}
}

func TestDeletedDateUsesFixedColumnNamesRegardlessOfLabel(t *testing.T) {
	r, ctx := newTestRegistry(t)
	structure := model.Structure{
		{Slug: "archived", Label: "Archived At", Type: model.FieldDeletedDate},
	}
	if _, err := r.Ensure(ctx, "tbl1", "Orders", structure); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	entry, err := r.Get(ctx, "tbl1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	m := entry.FieldMapping["archived"]
	if m.Columns["_on"].Name != "deleted_on" || m.Columns["_by"].Name != "deleted_by" {
		t.Fatalf("expected fixed deleted_on/deleted_by columns, got %#v", m.Columns)
	}
}

func TestGetUnknownTableReturnsNotFound(t *testing.T) {
	r, ctx := newTestRegistry(t)
	_, err := r.Get(ctx, "missing")
	if err == nil {
		t.Fatalf("expected error for unregistered table")
	}
}
