// Package records implements the Record Store (§4.3): bulk replace_all,
// single-row upsert_one/delete_one, and get_one/valid? reads, all scoped to
// one upstream table's physical SQLite table as named by the Schema
// Registry. Bulk replace is transactional and atomic so a crash mid-sync
// never leaves half the rows from the new snapshot mixed with the old one.
package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/smartsuite/cachebridge/internal/codec"
	"github.com/smartsuite/cachebridge/internal/engineerr"
	"github.com/smartsuite/cachebridge/internal/localdb"
	"github.com/smartsuite/cachebridge/internal/model"
	"github.com/smartsuite/cachebridge/internal/schema"
)

// Store performs row-level reads and writes against one registered table.
type Store struct {
	db *localdb.DB
}

func New(db *localdb.DB) *Store { return &Store{db: db} }

// ReplaceAll atomically replaces every row of entry.SQLTableName with
// records, stamping each row's expires_at ttl-from-now (§4.3: "a full
// table snapshot is swapped in as a single transaction").
func (s *Store) ReplaceAll(ctx context.Context, entry *schema.Entry, recs []model.Record, ttl time.Duration) error {
	cols := orderedColumns(entry)
	cachedAt := time.Now().UTC().Format(time.RFC3339)
	expiresAt := time.Now().UTC().Add(ttl).Format(time.RFC3339)

	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec(fmt.Sprintf(`DELETE FROM %s`, quoteIdent(entry.SQLTableName))); err != nil {
			return err
		}
		stmt, err := tx.Prepare(insertSQL(entry.SQLTableName, cols))
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, rec := range recs {
			args, err := rowArgs(entry, cols, rec, cachedAt, expiresAt)
			if err != nil {
				return err
			}
			if _, err := stmt.Exec(args...); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpsertOne inserts or replaces a single row without touching the rest of
// the table (§4.3 "single-record mutation shortcut").
func (s *Store) UpsertOne(ctx context.Context, entry *schema.Entry, rec model.Record, ttl time.Duration) error {
	cols := orderedColumns(entry)
	cachedAt := time.Now().UTC().Format(time.RFC3339)
	expiresAt := time.Now().UTC().Add(ttl).Format(time.RFC3339)
	args, err := rowArgs(entry, cols, rec, cachedAt, expiresAt)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, insertSQL(entry.SQLTableName, cols), args...)
	if err != nil {
		return engineerr.CacheInternalf(err, "records: upsert %q in %q", rec.ID, entry.SQLTableName)
	}
	return nil
}

// DeleteOne removes a single row by id.
func (s *Store) DeleteOne(ctx context.Context, entry *schema.Entry, id string) error {
	_, err := s.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, quoteIdent(entry.SQLTableName)), id)
	if err != nil {
		return engineerr.CacheInternalf(err, "records: delete %q from %q", id, entry.SQLTableName)
	}
	return nil
}

// Valid reports whether entry's table currently holds any unexpired rows,
// i.e. whether it's safe to answer reads from cache without refetching.
func (s *Store) Valid(ctx context.Context, entry *schema.Entry) (bool, error) {
	row := s.db.QueryRow(ctx, fmt.Sprintf(
		`SELECT count(*) FROM %s WHERE expires_at > ?`, quoteIdent(entry.SQLTableName)),
		time.Now().UTC().Format(time.RFC3339))
	var n int
	if err := row.Scan(&n); err != nil {
		return false, engineerr.CacheInternalf(err, "records: validity check on %q", entry.SQLTableName)
	}
	return n > 0, nil
}

// GetOne reconstructs a single record's full field map from storage.
func (s *Store) GetOne(ctx context.Context, entry *schema.Entry, id string) (*model.Record, error) {
	cols := orderedColumns(entry)
	selectCols := make([]string, 0, len(cols)+2)
	selectCols = append(selectCols, "id", "title")
	for _, c := range cols {
		selectCols = append(selectCols, c.colName)
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`,
		strings.Join(quoteIdents(selectCols), ", "), quoteIdent(entry.SQLTableName))

	row := s.db.QueryRow(ctx, query, id)
	dest := make([]any, len(selectCols))
	dest[0] = new(string)
	dest[1] = new(sql.NullString)
	for i := range cols {
		dest[i+2] = new(sql.NullString)
	}
	if err := row.Scan(dest...); err != nil {
		if err == sql.ErrNoRows {
			return nil, engineerr.NotFoundf("records: %q not found in %q", id, entry.SQLTableName)
		}
		return nil, engineerr.CacheInternalf(err, "records: get_one %q", id)
	}

	rec := &model.Record{ID: *dest[0].(*string), Fields: map[string]any{}}
	if ns := dest[1].(*sql.NullString); ns.Valid {
		rec.Title = ns.String
	}

	byField := map[string]map[string]any{}
	for i, c := range cols {
		var v any
		if ns, ok := dest[i+2].(*sql.NullString); ok && ns.Valid {
			v = scanNative(c.sqlType, ns.String)
		}
		if byField[c.slug] == nil {
			byField[c.slug] = map[string]any{}
		}
		byField[c.slug][c.suffix] = v
	}
	for _, f := range entry.Structure {
		raw, ok := byField[f.Slug]
		if !ok {
			continue
		}
		val, err := codec.Decode(f.Type, raw)
		if err != nil {
			return nil, engineerr.CacheInternalf(err, "records: decode field %q", f.Slug)
		}
		rec.Fields[f.Slug] = val
	}
	return rec, nil
}

type orderedCol struct {
	colName string
	slug    string
	suffix  string
	sqlType codec.SQLType
}

func orderedColumns(entry *schema.Entry) []orderedCol {
	var out []orderedCol
	for _, f := range entry.Structure {
		m, ok := entry.FieldMapping[f.Slug]
		if !ok {
			continue
		}
		for suffix, col := range m.Columns {
			out = append(out, orderedCol{colName: col.Name, slug: f.Slug, suffix: suffix, sqlType: col.Type})
		}
	}
	return out
}

func insertSQL(table string, cols []orderedCol) string {
	names := make([]string, 0, len(cols)+5)
	placeholders := make([]string, 0, len(cols)+5)
	names = append(names, "id", "title", "cached_at", "expires_at")
	placeholders = append(placeholders, "?", "?", "?", "?")
	for _, c := range cols {
		names = append(names, c.colName)
		placeholders = append(placeholders, "?")
	}
	names = append(names, "raw_json")
	placeholders = append(placeholders, "?")
	return fmt.Sprintf(`INSERT OR REPLACE INTO %s (%s) VALUES (%s)`,
		quoteIdent(table), strings.Join(quoteIdents(names), ", "), strings.Join(placeholders, ", "))
}

// rowArgs builds the positional argument list matching insertSQL's column
// order: id, title, cached_at, expires_at, one value per field column, and
// finally raw_json — the record's full upstream field map marshaled
// verbatim, kept alongside the decomposed columns so a row is never left
// with a NULL in a NOT NULL column (§3 "Physical table").
func rowArgs(entry *schema.Entry, cols []orderedCol, rec model.Record, cachedAt, expiresAt string) ([]any, error) {
	args := make([]any, 0, len(cols)+5)
	args = append(args, rec.ID, nullIfEmpty(rec.Title), cachedAt, expiresAt)

	encoded := make(map[string]map[string]any, len(entry.Structure))
	for _, f := range entry.Structure {
		val, err := codec.Encode(f, rec.Fields[f.Slug])
		if err != nil {
			return nil, engineerr.Validationf("records: encode field %q on %q: %v", f.Slug, rec.ID, err)
		}
		encoded[f.Slug] = val
	}
	for _, c := range cols {
		args = append(args, encoded[c.slug][c.suffix])
	}

	raw, err := json.Marshal(rec.Fields)
	if err != nil {
		return nil, engineerr.Validationf("records: marshal raw_json for %q: %v", rec.ID, err)
	}
	args = append(args, string(raw))
	return args, nil
}

func scanNative(t codec.SQLType, s string) any {
	switch t {
	case codec.TypeInt:
		var n int64
		if _, err := fmt.Sscanf(s, "%d", &n); err == nil {
			return n
		}
		return nil
	case codec.TypeReal:
		var f float64
		if _, err := fmt.Sscanf(s, "%g", &f); err == nil {
			return f
		}
		return nil
	default:
		return s
	}
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func quoteIdent(name string) string { return `"` + strings.ReplaceAll(name, `"`, `""`) + `"` }

func quoteIdents(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = quoteIdent(n)
	}
	return out
}
