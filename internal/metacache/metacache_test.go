package metacache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/smartsuite/cachebridge/internal/localdb"
)

func newTestCache(t *testing.T) (*Cache, context.Context) {
	t.Helper()
	db, err := localdb.Open(filepath.Join(t.TempDir(), "cache.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	c := New(db)
	ctx := context.Background()
	if err := c.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	return c, ctx
}

func TestPutAllGetAllGetOne(t *testing.T) {
	c, ctx := newTestCache(t)
	items := []map[string]any{
		{"id": "s1", "name": "Marketing Workspace"},
		{"id": "s2", "name": "Engineering Workspace"},
	}
	if err := c.PutAll(ctx, KindSolution, items, time.Hour); err != nil {
		t.Fatalf("put_all: %v", err)
	}
	all, err := c.GetAll(ctx, KindSolution)
	if err != nil || len(all) != 2 {
		t.Fatalf("get_all: err=%v len=%d", err, len(all))
	}
	one, err := c.GetOne(ctx, KindSolution, "s1")
	if err != nil || one["name"] != "Marketing Workspace" {
		t.Fatalf("get_one: err=%v one=%#v", err, one)
	}
}

func TestValidAndInvalidate(t *testing.T) {
	c, ctx := newTestCache(t)
	valid, err := c.Valid(ctx, KindTable)
	if err != nil || valid {
		t.Fatalf("expected invalid before first put_all, err=%v valid=%v", err, valid)
	}
	if err := c.PutAll(ctx, KindTable, nil, time.Hour); err != nil {
		t.Fatalf("put_all: %v", err)
	}
	valid, err = c.Valid(ctx, KindTable)
	if err != nil || !valid {
		t.Fatalf("expected valid after put_all, err=%v valid=%v", err, valid)
	}
	if err := c.Invalidate(ctx, KindTable); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	valid, err = c.Valid(ctx, KindTable)
	if err != nil || valid {
		t.Fatalf("expected invalid after invalidate, err=%v valid=%v", err, valid)
	}
}

func TestSearchSolutionsFuzzy(t *testing.T) {
	c, ctx := newTestCache(t)
	items := []map[string]any{
		{"id": "s1", "name": "Marketing Workspace"},
		{"id": "s2", "name": "Engineering Workspace"},
	}
	if err := c.PutAll(ctx, KindSolution, items, time.Hour); err != nil {
		t.Fatalf("put_all: %v", err)
	}
	got, err := c.SearchSolutions(ctx, "marketng")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 || got[0]["id"] != "s1" {
		t.Fatalf("got %#v", got)
	}
}

func TestActiveMembersFiltersDeleted(t *testing.T) {
	all := []map[string]any{
		{"id": "m1", "deleted": false},
		{"id": "m2", "deleted": true},
	}
	active := ActiveMembers(all)
	if len(active) != 1 || active[0]["id"] != "m1" {
		t.Fatalf("got %#v", active)
	}
}

func TestTeamSummariesHidesMembers(t *testing.T) {
	all := []map[string]any{
		{"id": "t1", "name": "Core", "members": []any{"u1", "u2", "u3"}},
	}
	summaries := TeamSummaries(all)
	if summaries[0]["member_count"] != 3 {
		t.Fatalf("member_count = %#v", summaries[0]["member_count"])
	}
	if _, ok := summaries[0]["members"]; ok {
		t.Fatalf("expected members list stripped from summary")
	}
}
