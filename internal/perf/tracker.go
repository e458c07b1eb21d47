// Package perf implements the Performance Tracker (§4.7): in-memory
// cache hit/miss counters per table, flushed to a persistent row either
// after a fixed number of operations or on a time interval, whichever
// comes first, plus a final flush on Close. Grounded on the teacher's
// internal/metrics copy-on-write atomic counter idiom (replaced here with
// a mutex-guarded, size-bounded LRU of per-table counters so a workspace
// with many tables can't grow the map unboundedly), with a Prometheus
// export added for live observability.
package perf

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/smartsuite/cachebridge/internal/engineerr"
	"github.com/smartsuite/cachebridge/internal/localdb"
)

// FlushOpThreshold and FlushInterval are the two triggers §4.7 describes
// for draining in-memory counters to the persistent store.
const (
	FlushOpThreshold = 100
	FlushInterval    = 5 * time.Minute
)

type counts struct {
	hits   int64
	misses int64
}

// Tracker accumulates hit/miss counts per table in memory and persists
// them to perf_stats on flush.
type Tracker struct {
	db  *localdb.DB
	mu  sync.Mutex
	lru *lru.Cache[string, *counts]

	opsSinceFlush int
	lastFlush     time.Time

	hitVec  *prometheus.CounterVec
	missVec *prometheus.CounterVec
}

// New creates a Tracker bounded to track at most maxTables distinct
// table ids between flushes. A workspace with more concurrently-active
// tables than maxTables will have its least-recently-used counters
// evicted (and their counts lost) before the next scheduled flush; this
// is an accepted approximation for the in-memory layer, not a bug — the
// persistent perf_stats rows are only ever additive and never the sole
// source of truth for a single request's hit/miss decision.
func New(db *localdb.DB, maxTables int) (*Tracker, error) {
	cache, err := lru.New[string, *counts](maxTables)
	if err != nil {
		return nil, engineerr.CacheInternalf(err, "perf: create lru")
	}
	t := &Tracker{
		db:        db,
		lru:       cache,
		lastFlush: time.Now(),
		hitVec: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cachebridge_cache_hits_total",
			Help: "Cache hits per table.",
		}, []string{"table_id"}),
		missVec: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cachebridge_cache_misses_total",
			Help: "Cache misses per table.",
		}, []string{"table_id"}),
	}
	return t, nil
}

// Collectors exposes the tracker's Prometheus vectors for registration.
func (t *Tracker) Collectors() []prometheus.Collector {
	return []prometheus.Collector{t.hitVec, t.missVec}
}

// Init creates the persistent perf_stats table.
func (t *Tracker) Init(ctx context.Context) error {
	_, err := t.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS perf_stats (
			table_id   TEXT PRIMARY KEY,
			hits       INTEGER NOT NULL DEFAULT 0,
			misses     INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL
		)`)
	if err != nil {
		return engineerr.CacheInternalf(err, "perf: create perf_stats")
	}
	return nil
}

// RecordHit increments tableID's in-memory hit counter.
func (t *Tracker) RecordHit(ctx context.Context, tableID string) error {
	return t.record(ctx, tableID, true)
}

// RecordMiss increments tableID's in-memory miss counter.
func (t *Tracker) RecordMiss(ctx context.Context, tableID string) error {
	return t.record(ctx, tableID, false)
}

func (t *Tracker) record(ctx context.Context, tableID string, hit bool) error {
	t.mu.Lock()
	c, ok := t.lru.Get(tableID)
	if !ok {
		c = &counts{}
		t.lru.Add(tableID, c)
	}
	if hit {
		c.hits++
		t.hitVec.WithLabelValues(tableID).Inc()
	} else {
		c.misses++
		t.missVec.WithLabelValues(tableID).Inc()
	}
	t.opsSinceFlush++
	due := t.opsSinceFlush >= FlushOpThreshold || time.Since(t.lastFlush) >= FlushInterval
	t.mu.Unlock()

	if due {
		return t.Flush(ctx)
	}
	return nil
}

// Flush drains every in-memory counter to perf_stats, resetting the
// in-memory state for the tables it persisted (§4.7's two flush triggers).
func (t *Tracker) Flush(ctx context.Context) error {
	t.mu.Lock()
	keys := t.lru.Keys()
	snapshot := make(map[string]*counts, len(keys))
	for _, k := range keys {
		if c, ok := t.lru.Peek(k); ok {
			snapshot[k] = &counts{hits: c.hits, misses: c.misses}
		}
	}
	t.lru.Purge()
	t.opsSinceFlush = 0
	t.lastFlush = time.Now()
	t.mu.Unlock()

	for tableID, c := range snapshot {
		if err := t.persistOne(ctx, tableID, c); err != nil {
			return err
		}
	}
	return nil
}

// Close performs a final flush; callers invoke it during shutdown so no
// in-memory counts are lost.
func (t *Tracker) Close(ctx context.Context) error {
	return t.Flush(ctx)
}

// estimatedTokensPerHit is the fixed constant §4.7's report uses to
// derive a rough "tokens saved" figure from a raw hit count: each cache
// hit avoids re-fetching and re-serialising one upstream page, which the
// reference deployment measured at roughly this many tokens on average.
const estimatedTokensPerHit = 450

// TableBreakdown is one row of Report's per-table section.
type TableBreakdown struct {
	TableID  string  `json:"table_id"`
	Hits     int64   `json:"hits"`
	Misses   int64   `json:"misses"`
	HitRate  float64 `json:"hit_rate"`
}

// Report is the §4.7 "hit-rate, per-table breakdown, totals, and derived
// metrics" snapshot. It reads the persisted perf_stats table, so it
// reflects counts as of the last Flush, not any not-yet-flushed
// in-memory deltas (flush them first with Flush if up-to-the-call
// freshness matters).
type Report struct {
	Tables              []TableBreakdown `json:"tables"`
	TotalHits           int64            `json:"total_hits"`
	TotalMisses         int64            `json:"total_misses"`
	HitRate             float64          `json:"hit_rate"`
	EstimatedTokensSaved int64           `json:"estimated_tokens_saved"`
}

// Snapshot reads perf_stats and assembles a Report.
func (t *Tracker) Snapshot(ctx context.Context) (Report, error) {
	rows, err := t.db.Query(ctx, `SELECT table_id, hits, misses FROM perf_stats ORDER BY table_id`)
	if err != nil {
		return Report{}, engineerr.CacheInternalf(err, "perf: snapshot")
	}
	defer rows.Close()

	var rep Report
	for rows.Next() {
		var tb TableBreakdown
		if err := rows.Scan(&tb.TableID, &tb.Hits, &tb.Misses); err != nil {
			return Report{}, engineerr.CacheInternalf(err, "perf: scan snapshot row")
		}
		if total := tb.Hits + tb.Misses; total > 0 {
			tb.HitRate = float64(tb.Hits) / float64(total)
		}
		rep.Tables = append(rep.Tables, tb)
		rep.TotalHits += tb.Hits
		rep.TotalMisses += tb.Misses
	}
	if err := rows.Err(); err != nil {
		return Report{}, engineerr.CacheInternalf(err, "perf: iterate snapshot rows")
	}
	if total := rep.TotalHits + rep.TotalMisses; total > 0 {
		rep.HitRate = float64(rep.TotalHits) / float64(total)
	}
	rep.EstimatedTokensSaved = rep.TotalHits * estimatedTokensPerHit
	return rep, nil
}

func (t *Tracker) persistOne(ctx context.Context, tableID string, c *counts) error {
	_, err := t.db.Exec(ctx, `
		INSERT INTO perf_stats (table_id, hits, misses, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(table_id) DO UPDATE SET
			hits = hits + excluded.hits,
			misses = misses + excluded.misses,
			updated_at = excluded.updated_at`,
		tableID, c.hits, c.misses, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return engineerr.CacheInternalf(err, "perf: persist %q", tableID)
	}
	return nil
}
