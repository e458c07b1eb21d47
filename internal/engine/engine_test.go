package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/smartsuite/cachebridge/internal/config"
	"github.com/smartsuite/cachebridge/internal/localdb"
	"github.com/smartsuite/cachebridge/internal/model"
)

type fakeUpstream struct {
	tables    map[string]map[string]any
	records   map[string][]map[string]any
	solutions []map[string]any
	members   []map[string]any
	teams     []map[string]any

	createCalls int
	updateCalls int
	deleteCalls int
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		tables:  map[string]map[string]any{},
		records: map[string][]map[string]any{},
	}
}

func (f *fakeUpstream) ListSolutions(ctx context.Context) ([]map[string]any, error) {
	return f.solutions, nil
}
func (f *fakeUpstream) GetTable(ctx context.Context, tableID string) (map[string]any, error) {
	return f.tables[tableID], nil
}
func (f *fakeUpstream) ListTables(ctx context.Context, solutionID string) ([]map[string]any, error) {
	var out []map[string]any
	for _, t := range f.tables {
		out = append(out, t)
	}
	return out, nil
}
func (f *fakeUpstream) ListRecords(ctx context.Context, tableID string, offset, limit int, hydrated bool) ([]map[string]any, int, error) {
	all := f.records[tableID]
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	hi := offset + limit
	if hi > total {
		hi = total
	}
	return all[offset:hi], total, nil
}
func (f *fakeUpstream) GetRecord(ctx context.Context, tableID, recordID string) (map[string]any, error) {
	for _, r := range f.records[tableID] {
		if r["id"] == recordID {
			return r, nil
		}
	}
	return nil, nil
}
func (f *fakeUpstream) CreateRecord(ctx context.Context, tableID string, fields map[string]any) (map[string]any, error) {
	f.createCalls++
	rec := map[string]any{"id": "new1", "title": "New"}
	for k, v := range fields {
		rec[k] = v
	}
	f.records[tableID] = append(f.records[tableID], rec)
	return rec, nil
}
func (f *fakeUpstream) UpdateRecord(ctx context.Context, tableID, recordID string, fields map[string]any) (map[string]any, error) {
	f.updateCalls++
	rec := map[string]any{"id": recordID}
	for k, v := range fields {
		rec[k] = v
	}
	return rec, nil
}
func (f *fakeUpstream) DeleteRecord(ctx context.Context, tableID, recordID string) error {
	f.deleteCalls++
	return nil
}
func (f *fakeUpstream) BulkRecords(ctx context.Context, tableID, op string, items []map[string]any) ([]map[string]any, error) {
	return items, nil
}
func (f *fakeUpstream) AddField(ctx context.Context, tableID string, field map[string]any) (map[string]any, error) {
	return field, nil
}
func (f *fakeUpstream) UpdateField(ctx context.Context, tableID, fieldSlug string, field map[string]any) (map[string]any, error) {
	return field, nil
}
func (f *fakeUpstream) DeleteField(ctx context.Context, tableID, fieldSlug string) error { return nil }
func (f *fakeUpstream) ListMembers(ctx context.Context) ([]map[string]any, error)        { return f.members, nil }
func (f *fakeUpstream) ListTeams(ctx context.Context) ([]map[string]any, error)           { return f.teams, nil }
func (f *fakeUpstream) ListComments(ctx context.Context, tableID, recordID string) ([]map[string]any, error) {
	return nil, nil
}
func (f *fakeUpstream) AddComment(ctx context.Context, tableID, recordID, body string) (map[string]any, error) {
	return map[string]any{"id": "c1", "text": body}, nil
}
func (f *fakeUpstream) ListViews(ctx context.Context, tableID string) ([]map[string]any, error) {
	return nil, nil
}
func (f *fakeUpstream) GetView(ctx context.Context, tableID, viewID string) (map[string]any, error) {
	return nil, nil
}
func (f *fakeUpstream) ListDeletedRecords(ctx context.Context, tableID string) ([]map[string]any, error) {
	return nil, nil
}
func (f *fakeUpstream) RestoreRecord(ctx context.Context, tableID, recordID string) error { return nil }

func setupEngine(t *testing.T) (*Engine, *fakeUpstream) {
	t.Helper()
	db, err := localdb.Open(filepath.Join(t.TempDir(), "cache.sqlite"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	up := newFakeUpstream()
	up.tables["tbl1"] = map[string]any{
		"id":   "tbl1",
		"name": "Orders",
		"structure": []any{
			map[string]any{"slug": "status", "label": "Status", "type": "status"},
			map[string]any{"slug": "amount", "label": "Amount", "type": "currency"},
		},
	}
	up.records["tbl1"] = []map[string]any{
		{"id": "r1", "title": "A", "status": map[string]any{"value": "Open"}, "amount": float64(10)},
		{"id": "r2", "title": "B", "status": map[string]any{"value": "Done"}, "amount": float64(20)},
	}

	cfg := &config.Config{
		CacheFilePath: "unused",
		TTLRecords:    time.Hour, TTLSolutions: time.Hour, TTLTables: time.Hour,
		TTLMembers: time.Hour, TTLTeams: time.Hour, TTLViews: time.Hour, TTLLowChurn: time.Hour,
		Timezone: "utc",
	}

	e, err := New(cfg, db, up, zap.NewNop(), "20260731_120000_abcdefgh")
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e, up
}

func TestListRecordsRefillsOnFirstCall(t *testing.T) {
	e, _ := setupEngine(t)
	ctx := context.Background()

	env, err := e.ListRecords(ctx, "user1", "tbl1", model.ListParams{})
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if env.TotalCount != 2 || env.Count != 2 {
		t.Fatalf("unexpected envelope: %#v", env)
	}
}

func TestListRecordsSecondCallIsCacheHit(t *testing.T) {
	e, up := setupEngine(t)
	ctx := context.Background()

	if _, err := e.ListRecords(ctx, "user1", "tbl1", model.ListParams{}); err != nil {
		t.Fatalf("first list: %v", err)
	}
	// Mutate upstream without invalidating: a cache hit must not see it.
	up.records["tbl1"] = append(up.records["tbl1"], map[string]any{"id": "r3", "title": "C"})

	env, err := e.ListRecords(ctx, "user1", "tbl1", model.ListParams{})
	if err != nil {
		t.Fatalf("second list: %v", err)
	}
	if env.TotalCount != 2 {
		t.Fatalf("expected cached total of 2, got %d", env.TotalCount)
	}
}

func TestCreateRecordAppliesUpstreamAndCache(t *testing.T) {
	e, up := setupEngine(t)
	ctx := context.Background()

	env, err := e.CreateRecord(ctx, "user1", "tbl1", map[string]any{"amount": float64(99)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !env.Success || env.ID != "new1" {
		t.Fatalf("unexpected mutation envelope: %#v", env)
	}
	if up.createCalls != 1 {
		t.Fatalf("expected exactly one upstream create call, got %d", up.createCalls)
	}

	rec, err := e.GetRecord(ctx, "user1", "tbl1", "new1", nil)
	if err != nil {
		t.Fatalf("get after create: %v", err)
	}
	if rec.ID != "new1" {
		t.Fatalf("expected newly created record visible locally, got %#v", rec)
	}
}

func TestDeleteRecordCallsUpstreamAndLocalStore(t *testing.T) {
	e, up := setupEngine(t)
	ctx := context.Background()

	if _, err := e.ListRecords(ctx, "user1", "tbl1", model.ListParams{}); err != nil {
		t.Fatalf("prime cache: %v", err)
	}
	if _, err := e.DeleteRecord(ctx, "user1", "tbl1", "r1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if up.deleteCalls != 1 {
		t.Fatalf("expected one upstream delete call, got %d", up.deleteCalls)
	}
	if _, err := e.GetRecord(ctx, "user1", "tbl1", "r1", nil); err == nil {
		t.Fatalf("expected deleted record to be gone locally")
	}
}

func TestFilteredListHonoursStatusFilter(t *testing.T) {
	e, _ := setupEngine(t)
	ctx := context.Background()

	env, err := e.ListRecords(ctx, "user1", "tbl1", model.ListParams{
		Filter: &model.FilterGroup{Field: "status", Compare: "is", Value: "Open"},
	})
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if env.TotalCount != 1 || env.Records[0].ID != "r1" {
		t.Fatalf("expected only r1 to match, got %#v", env)
	}
}

func TestUsageReportTracksLoggedCalls(t *testing.T) {
	e, _ := setupEngine(t)
	ctx := context.Background()

	if _, err := e.ListRecords(ctx, "user1", "tbl1", model.ListParams{}); err != nil {
		t.Fatalf("list: %v", err)
	}
	rep, err := e.UsageReport(ctx, "user1")
	if err != nil {
		t.Fatalf("usage report: %v", err)
	}
	if rep.TotalCalls != 1 {
		t.Fatalf("expected 1 logged call, got %d", rep.TotalCalls)
	}
}

func TestBulkRecordsUpsertsEachResult(t *testing.T) {
	e, _ := setupEngine(t)
	ctx := context.Background()

	if _, err := e.ListRecords(ctx, "user1", "tbl1", model.ListParams{}); err != nil {
		t.Fatalf("prime cache: %v", err)
	}
	envs, err := e.BulkRecords(ctx, "user1", "tbl1", "update", []map[string]any{
		{"id": "r1", "title": "A-updated"},
	})
	if err != nil {
		t.Fatalf("bulk: %v", err)
	}
	if len(envs) != 1 || !envs[0].Success || envs[0].ID != "r1" {
		t.Fatalf("unexpected bulk envelopes: %#v", envs)
	}
	rec, err := e.GetRecord(ctx, "user1", "tbl1", "r1", nil)
	if err != nil {
		t.Fatalf("get after bulk: %v", err)
	}
	if rec.Title != "A-updated" {
		t.Fatalf("expected bulk update applied locally, got %#v", rec)
	}
}

func TestGetViewDelegatesToUpstream(t *testing.T) {
	e, _ := setupEngine(t)
	ctx := context.Background()

	if _, err := e.GetView(ctx, "user1", "tbl1", "view1"); err != nil {
		t.Fatalf("get view: %v", err)
	}
}

func TestPerfReportTracksHitsAndMisses(t *testing.T) {
	e, _ := setupEngine(t)
	ctx := context.Background()

	if _, err := e.ListRecords(ctx, "user1", "tbl1", model.ListParams{}); err != nil {
		t.Fatalf("list (miss): %v", err)
	}
	if _, err := e.ListRecords(ctx, "user1", "tbl1", model.ListParams{}); err != nil {
		t.Fatalf("list (hit): %v", err)
	}
	if err := e.perf.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	rep, err := e.PerfReport(ctx)
	if err != nil {
		t.Fatalf("perf report: %v", err)
	}
	if rep.TotalHits != 1 || rep.TotalMisses != 1 {
		t.Fatalf("expected 1 hit and 1 miss, got %d hits, %d misses", rep.TotalHits, rep.TotalMisses)
	}
	if err := e.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
}
