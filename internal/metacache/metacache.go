// Package metacache implements the Metadata Caches (§4.5): fixed-schema
// caches for solutions, tables, members, teams, deleted records, views and
// comments. Each cache is a JSON-blob table keyed by (kind, id) plus a
// single refresh-timestamp row per kind, so valid?/invalidate operate at
// whole-kind granularity the way §4.5 describes metadata caching (as
// opposed to the Record Store's per-table TTL).
package metacache

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/smartsuite/cachebridge/internal/engineerr"
	"github.com/smartsuite/cachebridge/internal/fuzzy"
	"github.com/smartsuite/cachebridge/internal/localdb"
)

// Cache stores JSON-blob metadata rows grouped by kind ("solution",
// "table", "member", "team", "deleted_record", "view", "comment").
type Cache struct {
	db *localdb.DB
}

func New(db *localdb.DB) *Cache { return &Cache{db: db} }

// Init creates the two bookkeeping tables if absent.
func (c *Cache) Init(ctx context.Context) error {
	if _, err := c.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS cache_meta_items (
			kind TEXT NOT NULL,
			id   TEXT NOT NULL,
			data TEXT NOT NULL,
			PRIMARY KEY (kind, id)
		)`); err != nil {
		return engineerr.CacheInternalf(err, "metacache: create items table")
	}
	if _, err := c.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS cache_meta_refresh (
			kind         TEXT PRIMARY KEY,
			refreshed_at TEXT NOT NULL,
			ttl_seconds  INTEGER NOT NULL
		)`); err != nil {
		return engineerr.CacheInternalf(err, "metacache: create refresh table")
	}
	return nil
}

// PutAll replaces every row of kind with items (keyed by each item's "id"
// field) inside one transaction, and stamps the kind's refresh time.
func (c *Cache) PutAll(ctx context.Context, kind string, items []map[string]any, ttl time.Duration) error {
	return c.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM cache_meta_items WHERE kind = ?`, kind); err != nil {
			return err
		}
		stmt, err := tx.Prepare(`INSERT INTO cache_meta_items (kind, id, data) VALUES (?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, item := range items {
			id, _ := item["id"].(string)
			if id == "" {
				continue
			}
			raw, err := json.Marshal(item)
			if err != nil {
				return err
			}
			if _, err := stmt.Exec(kind, id, string(raw)); err != nil {
				return err
			}
		}
		_, err = tx.Exec(`
			INSERT INTO cache_meta_refresh (kind, refreshed_at, ttl_seconds)
			VALUES (?, ?, ?)
			ON CONFLICT(kind) DO UPDATE SET refreshed_at = excluded.refreshed_at, ttl_seconds = excluded.ttl_seconds`,
			kind, time.Now().UTC().Format(time.RFC3339), int64(ttl.Seconds()))
		return err
	})
}

// PutOne upserts a single item without touching the rest of kind's rows,
// the metadata-cache analogue of the Record Store's single-record
// mutation shortcut (§4.5/§4.3).
func (c *Cache) PutOne(ctx context.Context, kind string, item map[string]any) error {
	id, _ := item["id"].(string)
	if id == "" {
		return engineerr.Validationf("metacache: item missing id for kind %q", kind)
	}
	raw, err := json.Marshal(item)
	if err != nil {
		return engineerr.CacheInternalf(err, "metacache: marshal item")
	}
	_, err = c.db.Exec(ctx, `
		INSERT INTO cache_meta_items (kind, id, data) VALUES (?, ?, ?)
		ON CONFLICT(kind, id) DO UPDATE SET data = excluded.data`, kind, id, string(raw))
	if err != nil {
		return engineerr.CacheInternalf(err, "metacache: put_one %q/%q", kind, id)
	}
	return nil
}

// DeleteOne removes a single item, used for the deleted-records and
// comments caches' row-level mutation paths.
func (c *Cache) DeleteOne(ctx context.Context, kind, id string) error {
	_, err := c.db.Exec(ctx, `DELETE FROM cache_meta_items WHERE kind = ? AND id = ?`, kind, id)
	if err != nil {
		return engineerr.CacheInternalf(err, "metacache: delete %q/%q", kind, id)
	}
	return nil
}

// GetAll returns every item of kind, unmarshalled.
func (c *Cache) GetAll(ctx context.Context, kind string) ([]map[string]any, error) {
	rows, err := c.db.Query(ctx, `SELECT data FROM cache_meta_items WHERE kind = ?`, kind)
	if err != nil {
		return nil, engineerr.CacheInternalf(err, "metacache: get_all %q", kind)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, engineerr.CacheInternalf(err, "metacache: scan %q", kind)
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, engineerr.CacheInternalf(err, "metacache: decode %q", kind)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetOne returns a single item by id, or a NotFound error.
func (c *Cache) GetOne(ctx context.Context, kind, id string) (map[string]any, error) {
	row := c.db.QueryRow(ctx, `SELECT data FROM cache_meta_items WHERE kind = ? AND id = ?`, kind, id)
	var raw string
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return nil, engineerr.NotFoundf("metacache: %q/%q not cached", kind, id)
		}
		return nil, engineerr.CacheInternalf(err, "metacache: get_one %q/%q", kind, id)
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, engineerr.CacheInternalf(err, "metacache: decode %q/%q", kind, id)
	}
	return m, nil
}

// Valid reports whether kind was refreshed within its stored TTL.
func (c *Cache) Valid(ctx context.Context, kind string) (bool, error) {
	row := c.db.QueryRow(ctx, `SELECT refreshed_at, ttl_seconds FROM cache_meta_refresh WHERE kind = ?`, kind)
	var refreshedAt string
	var ttlSeconds int64
	if err := row.Scan(&refreshedAt, &ttlSeconds); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, engineerr.CacheInternalf(err, "metacache: valid? %q", kind)
	}
	t, err := time.Parse(time.RFC3339, refreshedAt)
	if err != nil {
		return false, engineerr.CacheInternalf(err, "metacache: parse refresh time")
	}
	return time.Now().UTC().Before(t.Add(time.Duration(ttlSeconds) * time.Second)), nil
}

// Invalidate forces kind to be considered stale without deleting its
// rows, so the next read triggers a refetch while still answering from
// the old snapshot if the caller chooses stale-while-revalidate semantics.
func (c *Cache) Invalidate(ctx context.Context, kind string) error {
	_, err := c.db.Exec(ctx, `DELETE FROM cache_meta_refresh WHERE kind = ?`, kind)
	if err != nil {
		return engineerr.CacheInternalf(err, "metacache: invalidate %q", kind)
	}
	return nil
}

// SearchSolutions fuzzy-matches query against every cached solution's
// "name" field (§4.5), loading the bounded-cardinality solutions list and
// filtering in Go rather than registering a SQL scalar function.
func (c *Cache) SearchSolutions(ctx context.Context, query string) ([]map[string]any, error) {
	all, err := c.GetAll(ctx, KindSolution)
	if err != nil {
		return nil, err
	}
	if query == "" {
		return all, nil
	}
	var out []map[string]any
	for _, s := range all {
		name, _ := s["name"].(string)
		if fuzzy.Match(name, query) {
			out = append(out, s)
		}
	}
	return out, nil
}

// Kind constants for the metadata caches §4.5 names.
const (
	KindSolution      = "solution"
	KindTable         = "table"
	KindMember        = "member"
	KindTeam          = "team"
	KindDeletedRecord = "deleted_record"
	KindView          = "view"
	KindComment       = "comment"
)

// ActiveMembers filters out members flagged deleted, the soft-delete rule
// §4.5 describes for the members cache: deleted rows stay cached (so a
// historical lookup by id still resolves) but are excluded from listings.
func ActiveMembers(all []map[string]any) []map[string]any {
	out := make([]map[string]any, 0, len(all))
	for _, m := range all {
		if deleted, _ := m["deleted"].(bool); deleted {
			continue
		}
		out = append(out, m)
	}
	return out
}

// TeamSummaries strips each team's full member list down to a count, per
// §4.5's "teams list shows member counts only" rule; GetOne on a specific
// team id returns the full stored team record (member ids included), and
// the engine's TeamDetail resolves those ids against the members cache.
func TeamSummaries(all []map[string]any) []map[string]any {
	out := make([]map[string]any, 0, len(all))
	for _, t := range all {
		summary := map[string]any{}
		for k, v := range t {
			if k == "members" {
				continue
			}
			summary[k] = v
		}
		if members, ok := t["members"].([]any); ok {
			summary["member_count"] = len(members)
		}
		out = append(out, summary)
	}
	return out
}
