// Package invalidate implements the Invalidation Coordinator (§4.6):
// cascading invalidation from a solution down to its tables' cached
// records, plus the single-record mutation shortcut that bypasses the
// cascade entirely.
package invalidate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smartsuite/cachebridge/internal/engineerr"
	"github.com/smartsuite/cachebridge/internal/localdb"
	"github.com/smartsuite/cachebridge/internal/metacache"
	"github.com/smartsuite/cachebridge/internal/schema"
)

// epoch is a stored expires_at value guaranteed to be in the past,
// forcing the Record Store's Valid() check to fail without deleting rows
// (the cascade's "force refetch on next read" semantics, §4.6).
var epoch = time.Unix(0, 0).UTC().Format(time.RFC3339)

// Coordinator wires the Schema Registry, Record Store table and Metadata
// Caches together to apply §4.6's cascade rules.
type Coordinator struct {
	db     *localdb.DB
	schema *schema.Registry
	meta   *metacache.Cache
}

func New(db *localdb.DB, reg *schema.Registry, meta *metacache.Cache) *Coordinator {
	return &Coordinator{db: db, schema: reg, meta: meta}
}

// InvalidateTable forces every cached row of tableID to be considered
// expired without deleting it (§4.6 invalidate_table). If structureChanged
// is true, the whole table-list metadata cache (every table row) is
// invalidated too, so a subsequent table-list read re-fetches it.
func (co *Coordinator) InvalidateTable(ctx context.Context, tableID string, structureChanged bool) error {
	entry, err := co.schema.Get(ctx, tableID)
	if err != nil {
		if engineerr.IsNotFound(err) {
			// Never synced locally; nothing to invalidate.
			return nil
		}
		return err
	}
	if _, err := co.db.Exec(ctx, fmt.Sprintf(
		`UPDATE %s SET expires_at = ?`, quoteIdent(entry.SQLTableName)), epoch); err != nil {
		return engineerr.CacheInternalf(err, "invalidate: table %q", tableID)
	}
	if structureChanged {
		return co.meta.Invalidate(ctx, metacache.KindTable)
	}
	return nil
}

// InvalidateTableList cascades (§4.6 invalidate_table_list): every record
// cache belonging to solutionID is invalidated first (every table, if
// solutionID is empty), then the table-list metadata row itself.
func (co *Coordinator) InvalidateTableList(ctx context.Context, solutionID string) error {
	tables, err := co.meta.GetAll(ctx, metacache.KindTable)
	if err != nil {
		return err
	}
	for _, t := range tables {
		if solutionID != "" {
			if sid, _ := t["solution_id"].(string); sid != solutionID {
				continue
			}
		}
		tableID, _ := t["id"].(string)
		if tableID == "" {
			continue
		}
		if err := co.InvalidateTable(ctx, tableID, false); err != nil {
			return err
		}
	}
	return co.meta.Invalidate(ctx, metacache.KindTable)
}

// InvalidateSolutions cascades (§4.6 invalidate_solutions): table-list
// invalidation runs first across every solution, then the solutions
// metadata cache itself is marked stale.
func (co *Coordinator) InvalidateSolutions(ctx context.Context) error {
	if err := co.InvalidateTableList(ctx, ""); err != nil {
		return err
	}
	return co.meta.Invalidate(ctx, metacache.KindSolution)
}

// InvalidateSolution is the single-solution form of InvalidateSolutions:
// every table belonging to solutionID is invalidated, then the solutions
// metadata cache itself is marked stale (§4.6 "solution -> tables ->
// records").
func (co *Coordinator) InvalidateSolution(ctx context.Context, solutionID string) error {
	if err := co.InvalidateTableList(ctx, solutionID); err != nil {
		return err
	}
	return co.meta.Invalidate(ctx, metacache.KindSolution)
}

// TouchRecord is the single-record mutation shortcut (§4.6): a create,
// update or delete on one record is applied directly by the Record Store
// (internal/records) and does not need InvalidateTable/InvalidateSolution
// — this method exists only to document that the cascade is intentionally
// skipped for single-row mutations, and to give callers one place to
// record the decision rather than re-deriving it at each call site.
func (co *Coordinator) TouchRecord(ctx context.Context, tableID, recordID string) error {
	return nil
}

func quoteIdent(name string) string { return `"` + strings.ReplaceAll(name, `"`, `""`) + `"` }
