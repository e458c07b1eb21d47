// Package engine is the orchestration layer (§2/§5): it decides cache-first
// vs upstream-first per operation, hydrates the local store from upstream
// responses, cascades invalidation on structural change, and shapes
// responses before returning them to the tool dispatcher. Every other
// internal package is a narrow concern the engine wires together; nothing
// outside this package talks to internal/upstream directly.
package engine

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/smartsuite/cachebridge/internal/config"
	"github.com/smartsuite/cachebridge/internal/engineerr"
	"github.com/smartsuite/cachebridge/internal/filterlang"
	"github.com/smartsuite/cachebridge/internal/invalidate"
	"github.com/smartsuite/cachebridge/internal/localdb"
	"github.com/smartsuite/cachebridge/internal/metacache"
	"github.com/smartsuite/cachebridge/internal/model"
	"github.com/smartsuite/cachebridge/internal/perf"
	"github.com/smartsuite/cachebridge/internal/query"
	"github.com/smartsuite/cachebridge/internal/records"
	"github.com/smartsuite/cachebridge/internal/schema"
	"github.com/smartsuite/cachebridge/internal/session"
	"github.com/smartsuite/cachebridge/internal/shape"
	"github.com/smartsuite/cachebridge/internal/upstream"
)

// recordPageSize is how many rows the engine asks for per upstream page
// when refilling a table's cache (§6 "paged, hydration flag").
const recordPageSize = 500

// pageFetchConcurrency bounds how many pages a table refill fetches from
// upstream at once (§5 "page-parallel fetch ... bounded to a small
// degree, e.g., 4").
const pageFetchConcurrency = 4

// Engine wires the Schema Registry, Record Store, Metadata Caches,
// Invalidation Coordinator, Performance Tracker, Filter Translator,
// Response Shaper and session logger against one upstream.Client and one
// local sqlite file.
type Engine struct {
	cfg *config.Config
	log *zap.Logger

	db      *localdb.DB
	up      upstream.Client
	schema  *schema.Registry
	store   *records.Store
	meta    *metacache.Cache
	invalid *invalidate.Coordinator
	perf    *perf.Tracker
	sess    *session.Logger
	loc     *time.Location
}

// New constructs an Engine against an already-open local store, creating
// every bookkeeping table the sub-packages need (§6 "Persistent store
// layout"). sessionID is the process's session.NewID value.
func New(cfg *config.Config, db *localdb.DB, up upstream.Client, log *zap.Logger, sessionID string) (*Engine, error) {
	loc, err := loadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	reg := schema.New(db, log)
	store := records.New(db)
	meta := metacache.New(db)
	coord := invalidate.New(db, reg, meta)
	tracker, err := perf.New(db, 256)
	if err != nil {
		return nil, err
	}
	sess := session.NewLogger(db, sessionID)

	e := &Engine{
		cfg: cfg, log: log, db: db, up: up,
		schema: reg, store: store, meta: meta, invalid: coord, perf: tracker, sess: sess,
		loc: loc,
	}

	ctx := context.Background()
	for _, initer := range []func(context.Context) error{
		reg.Init, meta.Init, tracker.Init, sess.Init,
	} {
		if err := initer(ctx); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func loadLocation(name string) (*time.Location, error) {
	switch name {
	case "", "system":
		return time.Local, nil
	case "utc":
		return time.UTC, nil
	default:
		if t, err := time.Parse("-0700", name); err == nil {
			_, off := t.Zone()
			return time.FixedZone(name, off), nil
		}
		loc, err := time.LoadLocation(name)
		if err != nil {
			return nil, engineerr.Validationf("engine: unknown timezone %q: %v", name, err)
		}
		return loc, nil
	}
}

// Close flushes the performance tracker and releases the local store.
func (e *Engine) Close(ctx context.Context) error {
	if err := e.perf.Close(ctx); err != nil {
		return err
	}
	return e.db.Close()
}

// ensureTable loads the registry entry and field catalogue for tableID,
// fetching the table from upstream and registering it only when no entry
// exists yet; an existing entry is returned as stored.
func (e *Engine) ensureTable(ctx context.Context, tableID string) (*schema.Entry, error) {
	entry, err := e.schema.Get(ctx, tableID)
	if err == nil {
		return entry, nil
	}
	if !engineerr.IsNotFound(err) {
		return nil, err
	}

	table, uerr := e.up.GetTable(ctx, tableID)
	if uerr != nil {
		return nil, uerr
	}
	name, _ := table["name"].(string)
	structure, derr := decodeStructure(table)
	if derr != nil {
		return nil, derr
	}
	if _, err := e.schema.Ensure(ctx, tableID, name, structure); err != nil {
		return nil, err
	}
	return e.schema.Get(ctx, tableID)
}

// ListRecords answers one list-records tool call: cache-first if the
// table's rows are still valid, otherwise a full upstream refetch and
// replace_all before compiling and running the caller's filter (§2 "cache
// decision flow", §4.3, §4.4, §4.8, §4.9).
func (e *Engine) ListRecords(ctx context.Context, userHash, tableID string, params model.ListParams) (model.ListEnvelope, error) {
	entry, err := e.ensureTable(ctx, tableID)
	if err != nil {
		return model.ListEnvelope{}, err
	}

	valid, err := e.store.Valid(ctx, entry)
	if err != nil {
		return model.ListEnvelope{}, err
	}
	if valid {
		_ = e.perf.RecordHit(ctx, tableID)
	} else {
		_ = e.perf.RecordMiss(ctx, tableID)
		if err := e.refillTable(ctx, entry); err != nil {
			return model.ListEnvelope{}, err
		}
		entry, err = e.schema.Get(ctx, tableID)
		if err != nil {
			return model.ListEnvelope{}, err
		}
	}

	ids, err := e.queryIDs(entry, params)
	if err != nil {
		return model.ListEnvelope{}, err
	}

	total := len(ids)
	page := ids
	if params.Limit > 0 {
		lo := params.Offset
		if lo > len(page) {
			lo = len(page)
		}
		hi := lo + params.Limit
		if hi > len(page) {
			hi = len(page)
		}
		page = page[lo:hi]
	}

	recs := make([]model.Record, 0, len(page))
	for _, id := range page {
		rec, err := e.store.GetOne(ctx, entry, id)
		if err != nil {
			return model.ListEnvelope{}, err
		}
		recs = append(recs, shape.Project(*rec, params.Fields))
	}

	e.sess.LogCall(ctx, userHash, "LIST", "/records", "", tableID)
	return shape.BuildListEnvelope(shape.ListResult{
		Records: recs, TotalCount: total, Fields: params.Fields,
		Compact: params.Compact, Summary: params.Summary,
	}), nil
}

// queryIDs compiles params against entry via the Filter Translator and
// Query Builder, selecting just the id column; callers hydrate full rows
// through the Record Store afterwards (§4.4's builder and §4.3's store
// are deliberately kept separate: the builder never reconstructs field
// values itself).
func (e *Engine) queryIDs(entry *schema.Entry, params model.ListParams) ([]string, error) {
	b := query.New(entry, e.loc)
	b = filterlang.Apply(b, params.Filter)
	for _, s := range params.Sort {
		b = b.Order(s.Field, s.Ascending)
	}
	sql, args, err := b.Build([]string{"id"})
	if err != nil {
		return nil, err
	}
	rows, err := e.db.Query(context.Background(), sql, args...)
	if err != nil {
		return nil, engineerr.CacheInternalf(err, "engine: list query on %q", entry.TableID)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, engineerr.CacheInternalf(err, "engine: scan list row")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// refillTable fetches every page of tableID from upstream and swaps it
// into the local store atomically (§4.3 replace_all), hydrating linked
// records as it goes. The first page is fetched alone to learn the total
// row count; any remaining pages are then fetched concurrently, bounded to
// pageFetchConcurrency in flight at once (§5).
func (e *Engine) refillTable(ctx context.Context, entry *schema.Entry) error {
	first, total, err := e.up.ListRecords(ctx, entry.TableID, 0, recordPageSize, true)
	if err != nil {
		return err
	}
	pages := [][]map[string]any{first}
	for offset := len(first); offset < total; offset += recordPageSize {
		pages = append(pages, nil)
	}

	if len(pages) > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(pageFetchConcurrency)
		for i := 1; i < len(pages); i++ {
			i := i
			offset := i * recordPageSize
			g.Go(func() error {
				page, _, err := e.up.ListRecords(gctx, entry.TableID, offset, recordPageSize, true)
				if err != nil {
					return err
				}
				pages[i] = page
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	var all []model.Record
	for _, page := range pages {
		for _, raw := range page {
			all = append(all, decodeRecord(raw))
		}
	}
	return e.store.ReplaceAll(ctx, entry, all, e.cfg.TTLRecords)
}

// GetRecord answers a single-record read, refilling the whole table first
// if its cache has expired — the engine never fetches one row at a time
// from upstream for a cache-miss read (§4.3's get_one always reads local
// storage; refill happens at the table level).
func (e *Engine) GetRecord(ctx context.Context, userHash, tableID, recordID string, fields []string) (model.Record, error) {
	entry, err := e.ensureTable(ctx, tableID)
	if err != nil {
		return model.Record{}, err
	}
	valid, err := e.store.Valid(ctx, entry)
	if err != nil {
		return model.Record{}, err
	}
	if valid {
		_ = e.perf.RecordHit(ctx, tableID)
	} else {
		_ = e.perf.RecordMiss(ctx, tableID)
		if err := e.refillTable(ctx, entry); err != nil {
			return model.Record{}, err
		}
	}
	rec, err := e.store.GetOne(ctx, entry, recordID)
	if err != nil {
		return model.Record{}, err
	}
	e.sess.LogCall(ctx, userHash, "GET", "/records", "", tableID)
	return shape.Project(*rec, fields), nil
}

// CreateRecord, UpdateRecord and DeleteRecord are the single-record
// mutation shortcut (§4.6): upstream is the source of truth for the
// write, and the local store is patched directly afterwards without
// triggering the table-wide invalidation cascade.
func (e *Engine) CreateRecord(ctx context.Context, userHash, tableID string, fields map[string]any) (model.MutationEnvelope, error) {
	entry, err := e.ensureTable(ctx, tableID)
	if err != nil {
		return model.MutationEnvelope{}, err
	}
	raw, err := e.up.CreateRecord(ctx, tableID, fields)
	if err != nil {
		return model.MutationEnvelope{}, err
	}
	rec := decodeRecord(raw)
	if err := e.store.UpsertOne(ctx, entry, rec, e.cfg.TTLRecords); err != nil {
		return model.MutationEnvelope{}, err
	}
	_ = e.invalid.TouchRecord(ctx, tableID, rec.ID)
	e.sess.LogCall(ctx, userHash, "CREATE", "/records", "", tableID)
	return model.NewMutationEnvelope("create", rec.ID, rec.Title, true), nil
}

func (e *Engine) UpdateRecord(ctx context.Context, userHash, tableID, recordID string, fields map[string]any) (model.MutationEnvelope, error) {
	entry, err := e.ensureTable(ctx, tableID)
	if err != nil {
		return model.MutationEnvelope{}, err
	}
	raw, err := e.up.UpdateRecord(ctx, tableID, recordID, fields)
	if err != nil {
		return model.MutationEnvelope{}, err
	}
	rec := decodeRecord(raw)
	if rec.ID == "" {
		rec.ID = recordID
	}
	if err := e.store.UpsertOne(ctx, entry, rec, e.cfg.TTLRecords); err != nil {
		return model.MutationEnvelope{}, err
	}
	_ = e.invalid.TouchRecord(ctx, tableID, rec.ID)
	e.sess.LogCall(ctx, userHash, "UPDATE", "/records", "", tableID)
	return model.NewMutationEnvelope("update", rec.ID, rec.Title, true), nil
}

func (e *Engine) DeleteRecord(ctx context.Context, userHash, tableID, recordID string) (model.MutationEnvelope, error) {
	entry, err := e.ensureTable(ctx, tableID)
	if err != nil {
		return model.MutationEnvelope{}, err
	}
	if err := e.up.DeleteRecord(ctx, tableID, recordID); err != nil {
		return model.MutationEnvelope{}, err
	}
	if err := e.store.DeleteOne(ctx, entry, recordID); err != nil {
		return model.MutationEnvelope{}, err
	}
	_ = e.invalid.TouchRecord(ctx, tableID, recordID)
	e.sess.LogCall(ctx, userHash, "DELETE", "/records", "", tableID)
	return model.NewMutationEnvelope("delete", recordID, "", true), nil
}

// BulkRecords performs a batched create/update/delete against tableID and
// folds the result into the local store one record at a time, the same
// way a sequence of single-record mutations would (§6 "bulk record
// operations"; §4.6 "create/update/delete of a single record ... upsert_one
// /delete_one instead of invalidating the whole table" applies per item).
func (e *Engine) BulkRecords(ctx context.Context, userHash, tableID, op string, items []map[string]any) ([]model.MutationEnvelope, error) {
	entry, err := e.ensureTable(ctx, tableID)
	if err != nil {
		return nil, err
	}
	results, err := e.up.BulkRecords(ctx, tableID, op, items)
	if err != nil {
		return nil, err
	}

	envs := make([]model.MutationEnvelope, 0, len(results))
	for _, raw := range results {
		rec := decodeRecord(raw)
		if op == "delete" {
			if err := e.store.DeleteOne(ctx, entry, rec.ID); err != nil {
				return nil, err
			}
		} else {
			if err := e.store.UpsertOne(ctx, entry, rec, e.cfg.TTLRecords); err != nil {
				return nil, err
			}
		}
		_ = e.invalid.TouchRecord(ctx, tableID, rec.ID)
		envs = append(envs, model.NewMutationEnvelope(op, rec.ID, rec.Title, true))
	}
	e.sess.LogCall(ctx, userHash, "BULK_"+op, "/records/bulk", "", tableID)
	return envs, nil
}

// AddField, UpdateField and DeleteField mutate a table's field catalogue
// upstream, then cascade invalidation with structureChanged=true so the
// next table-list or record read re-derives the physical schema (§4.1,
// §4.6).
func (e *Engine) AddField(ctx context.Context, userHash, tableID string, field map[string]any) (map[string]any, error) {
	result, err := e.up.AddField(ctx, tableID, field)
	if err != nil {
		return nil, err
	}
	if err := e.invalid.InvalidateTable(ctx, tableID, true); err != nil {
		return nil, err
	}
	e.sess.LogCall(ctx, userHash, "ADD_FIELD", "/fields", "", tableID)
	return result, nil
}

func (e *Engine) UpdateField(ctx context.Context, userHash, tableID, fieldSlug string, field map[string]any) (map[string]any, error) {
	result, err := e.up.UpdateField(ctx, tableID, fieldSlug, field)
	if err != nil {
		return nil, err
	}
	if err := e.invalid.InvalidateTable(ctx, tableID, true); err != nil {
		return nil, err
	}
	e.sess.LogCall(ctx, userHash, "UPDATE_FIELD", "/fields", "", tableID)
	return result, nil
}

func (e *Engine) DeleteField(ctx context.Context, userHash, tableID, fieldSlug string) error {
	if err := e.up.DeleteField(ctx, tableID, fieldSlug); err != nil {
		return err
	}
	if err := e.invalid.InvalidateTable(ctx, tableID, true); err != nil {
		return err
	}
	e.sess.LogCall(ctx, userHash, "DELETE_FIELD", "/fields", "", tableID)
	return nil
}

// Solutions answers the solutions metadata read (§4.5), refreshing from
// upstream when the solutions cache has gone stale.
func (e *Engine) Solutions(ctx context.Context, userHash string) ([]map[string]any, error) {
	valid, err := e.meta.Valid(ctx, metacache.KindSolution)
	if err != nil {
		return nil, err
	}
	if !valid {
		items, err := e.up.ListSolutions(ctx)
		if err != nil {
			return nil, err
		}
		if err := e.meta.PutAll(ctx, metacache.KindSolution, items, e.cfg.TTLSolutions); err != nil {
			return nil, err
		}
	}
	e.sess.LogCall(ctx, userHash, "LIST", "/solutions", "", "")
	return e.meta.GetAll(ctx, metacache.KindSolution)
}

// SearchSolutions fuzzy-matches a query string against the cached
// solutions list, refreshing first if stale.
func (e *Engine) SearchSolutions(ctx context.Context, userHash, q string) ([]map[string]any, error) {
	if _, err := e.Solutions(ctx, userHash); err != nil {
		return nil, err
	}
	return e.meta.SearchSolutions(ctx, q)
}

// Tables answers the table-list metadata read for one solution (§4.5),
// refreshing from upstream when stale.
func (e *Engine) Tables(ctx context.Context, userHash, solutionID string) ([]map[string]any, error) {
	valid, err := e.meta.Valid(ctx, metacache.KindTable)
	if err != nil {
		return nil, err
	}
	if !valid {
		items, err := e.up.ListTables(ctx, solutionID)
		if err != nil {
			return nil, err
		}
		if err := e.meta.PutAll(ctx, metacache.KindTable, items, e.cfg.TTLTables); err != nil {
			return nil, err
		}
	}
	e.sess.LogCall(ctx, userHash, "LIST", "/tables", solutionID, "")
	all, err := e.meta.GetAll(ctx, metacache.KindTable)
	if err != nil {
		return nil, err
	}
	if solutionID == "" {
		return all, nil
	}
	out := make([]map[string]any, 0, len(all))
	for _, t := range all {
		if sid, _ := t["solution_id"].(string); sid == solutionID {
			out = append(out, t)
		}
	}
	return out, nil
}

// Members answers the members metadata read, filtering out soft-deleted
// rows from the listing per §4.5.
func (e *Engine) Members(ctx context.Context, userHash string) ([]map[string]any, error) {
	valid, err := e.meta.Valid(ctx, metacache.KindMember)
	if err != nil {
		return nil, err
	}
	if !valid {
		items, err := e.up.ListMembers(ctx)
		if err != nil {
			return nil, err
		}
		if err := e.meta.PutAll(ctx, metacache.KindMember, items, e.cfg.TTLMembers); err != nil {
			return nil, err
		}
	}
	e.sess.LogCall(ctx, userHash, "LIST", "/members", "", "")
	all, err := e.meta.GetAll(ctx, metacache.KindMember)
	if err != nil {
		return nil, err
	}
	return metacache.ActiveMembers(all), nil
}

// Teams answers the teams metadata read, reduced to member-count
// summaries per §4.5 ("teams list shows member counts only").
func (e *Engine) Teams(ctx context.Context, userHash string) ([]map[string]any, error) {
	valid, err := e.meta.Valid(ctx, metacache.KindTeam)
	if err != nil {
		return nil, err
	}
	if !valid {
		items, err := e.up.ListTeams(ctx)
		if err != nil {
			return nil, err
		}
		if err := e.meta.PutAll(ctx, metacache.KindTeam, items, e.cfg.TTLTeams); err != nil {
			return nil, err
		}
	}
	e.sess.LogCall(ctx, userHash, "LIST", "/teams", "", "")
	all, err := e.meta.GetAll(ctx, metacache.KindTeam)
	if err != nil {
		return nil, err
	}
	return metacache.TeamSummaries(all), nil
}

// TeamDetail returns one team's full hydrated record (with its member
// list intact), bypassing the list-level summary reduction. Each member id
// found in the members cache is replaced by that cached member record;
// ids not in the members cache stay as plain ids.
func (e *Engine) TeamDetail(ctx context.Context, userHash, teamID string) (map[string]any, error) {
	if _, err := e.Teams(ctx, userHash); err != nil {
		return nil, err
	}
	team, err := e.meta.GetOne(ctx, metacache.KindTeam, teamID)
	if err != nil {
		return nil, err
	}
	if ids, ok := team["members"].([]any); ok {
		members := make([]any, 0, len(ids))
		for _, id := range ids {
			sid, _ := id.(string)
			if m, merr := e.meta.GetOne(ctx, metacache.KindMember, sid); merr == nil {
				members = append(members, m)
			} else {
				members = append(members, id)
			}
		}
		team["members"] = members
	}
	return team, nil
}

// Views answers the views metadata read for one table (§4.5).
func (e *Engine) Views(ctx context.Context, userHash, tableID string) ([]map[string]any, error) {
	valid, err := e.meta.Valid(ctx, metacache.KindView)
	if err != nil {
		return nil, err
	}
	if !valid {
		items, err := e.up.ListViews(ctx, tableID)
		if err != nil {
			return nil, err
		}
		if err := e.meta.PutAll(ctx, metacache.KindView, items, e.cfg.TTLViews); err != nil {
			return nil, err
		}
	}
	e.sess.LogCall(ctx, userHash, "LIST", "/views", "", tableID)
	return e.meta.GetAll(ctx, metacache.KindView)
}

// GetView answers a single-view read, bypassing the views list cache since
// a view's own configuration (filters/sorts) is small and changes
// independently of the rest of the list (§6 "view list/get").
func (e *Engine) GetView(ctx context.Context, userHash, tableID, viewID string) (map[string]any, error) {
	view, err := e.up.GetView(ctx, tableID, viewID)
	if err != nil {
		return nil, err
	}
	e.sess.LogCall(ctx, userHash, "GET", "/views", "", tableID)
	return view, nil
}

// Comments answers the comments metadata read for one record. Comments
// churn with the record they're attached to, so every call fetches them
// from upstream and writes them to the comments cache (with the low-churn
// TTL); the cached copy is never read back here.
func (e *Engine) Comments(ctx context.Context, userHash, tableID, recordID string) ([]map[string]any, error) {
	items, err := e.up.ListComments(ctx, tableID, recordID)
	if err != nil {
		return nil, err
	}
	if err := e.meta.PutAll(ctx, metacache.KindComment, items, e.cfg.TTLLowChurn); err != nil {
		return nil, err
	}
	e.sess.LogCall(ctx, userHash, "LIST", "/comments", "", tableID)
	return items, nil
}

func (e *Engine) AddComment(ctx context.Context, userHash, tableID, recordID, body string) (map[string]any, error) {
	item, err := e.up.AddComment(ctx, tableID, recordID, body)
	if err != nil {
		return nil, err
	}
	_ = e.meta.PutOne(ctx, metacache.KindComment, item)
	e.sess.LogCall(ctx, userHash, "CREATE", "/comments", "", tableID)
	return item, nil
}

// DeletedRecords answers the deleted-records metadata read for one table.
func (e *Engine) DeletedRecords(ctx context.Context, userHash, tableID string) ([]map[string]any, error) {
	items, err := e.up.ListDeletedRecords(ctx, tableID)
	if err != nil {
		return nil, err
	}
	if err := e.meta.PutAll(ctx, metacache.KindDeletedRecord, items, e.cfg.TTLLowChurn); err != nil {
		return nil, err
	}
	e.sess.LogCall(ctx, userHash, "LIST", "/deleted_records", "", tableID)
	return items, nil
}

// RestoreRecord restores a previously deleted record upstream, then
// forces a refill of tableID's cache on next read since the restored row
// would otherwise be invisible until the current TTL lapses.
func (e *Engine) RestoreRecord(ctx context.Context, userHash, tableID, recordID string) error {
	if err := e.up.RestoreRecord(ctx, tableID, recordID); err != nil {
		return err
	}
	if err := e.invalid.InvalidateTable(ctx, tableID, false); err != nil {
		return err
	}
	_ = e.meta.DeleteOne(ctx, metacache.KindDeletedRecord, recordID)
	e.sess.LogCall(ctx, userHash, "RESTORE", "/records", "", tableID)
	return nil
}

// UsageReport answers the §6 usage-report tool call for userHash.
func (e *Engine) UsageReport(ctx context.Context, userHash string) (model.UsageReport, error) {
	return e.sess.Report(ctx, userHash)
}

// PerfReport answers the §4.7 performance-report tool call.
func (e *Engine) PerfReport(ctx context.Context) (perf.Report, error) {
	return e.perf.Snapshot(ctx)
}

// InvalidateSolution, InvalidateTableList and InvalidateSolutions expose
// the §4.6 cascade operations directly for the explicit cache-invalidation
// tool calls.
func (e *Engine) InvalidateSolution(ctx context.Context, solutionID string) error {
	return e.invalid.InvalidateSolution(ctx, solutionID)
}

func (e *Engine) InvalidateTableList(ctx context.Context, solutionID string) error {
	return e.invalid.InvalidateTableList(ctx, solutionID)
}

func (e *Engine) InvalidateSolutions(ctx context.Context) error {
	return e.invalid.InvalidateSolutions(ctx)
}

func decodeStructure(table map[string]any) (model.Structure, error) {
	raw, ok := table["structure"].([]any)
	if !ok {
		return nil, engineerr.Upstreamf(nil, "engine: table descriptor missing structure")
	}
	out := make(model.Structure, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		slug, _ := m["slug"].(string)
		label, _ := m["label"].(string)
		typ, _ := m["type"].(string)
		if slug == "" || typ == "" {
			continue
		}
		f := model.Field{Slug: slug, Label: label, Type: model.FieldType(typ)}
		if primary, ok := m["primary"].(bool); ok {
			f.Params.Primary = primary
		}
		if params, ok := m["params"].(map[string]any); ok {
			decodeFieldParams(params, &f.Params)
		}
		out = append(out, f)
	}
	return out, nil
}

// decodeFieldParams fills in the type-specific parameters a field
// descriptor may carry (§3 "Field descriptor"): primary flag (also settable
// at the top level for older table payloads), choice list, linked-target
// table id, and the include-time flag used by date-shaped fields.
func decodeFieldParams(params map[string]any, out *model.FieldParams) {
	if primary, ok := params["primary"].(bool); ok {
		out.Primary = primary
	}
	if linked, ok := params["linked_target_id"].(string); ok {
		out.LinkedTargetID = linked
	}
	if includeTime, ok := params["include_time"].(bool); ok {
		out.IncludeTime = includeTime
	}
	if raw, ok := params["choices"].([]any); ok {
		out.Choices = make([]model.Choice, 0, len(raw))
		for _, c := range raw {
			cm, ok := c.(map[string]any)
			if !ok {
				continue
			}
			id, _ := cm["id"].(string)
			label, _ := cm["label"].(string)
			color, _ := cm["color"].(string)
			out.Choices = append(out.Choices, model.Choice{ID: id, Label: label, Color: color})
		}
	}
}

func decodeRecord(raw map[string]any) model.Record {
	rec := model.Record{Fields: map[string]any{}}
	for k, v := range raw {
		switch k {
		case "id":
			rec.ID, _ = v.(string)
		case "title":
			rec.Title, _ = v.(string)
		default:
			rec.Fields[k] = v
		}
	}
	return rec
}
