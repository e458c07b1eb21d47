// Package schema implements the Schema Registry (§4.1): it turns an
// upstream table's field catalogue into a physical SQLite table, keeping
// the mapping between upstream slugs and sanitised SQL column names in a
// persistent registry so the mapping survives process restarts.
package schema

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
	"go.uber.org/zap"
)

// ColumnMapping records, for one upstream field, the physical columns it
// was assigned and their SQL types, so the Record Store and Query Builder
// can translate slugs into column names without re-deriving them.
type ColumnMapping struct {
	Slug    string              `json:"slug"`
	Type    model.FieldType     `json:"type"`
	Columns map[string]ColumnOf `json:"columns"` // suffix -> column
}

// ColumnOf names the physical column for one Suffix of a field.
type ColumnOf struct {
	Name string      `json:"name"`
	Type codec.SQLType `json:"type"`
}

// Entry is the persisted registry row for one upstream table.
type Entry struct {
	TableID       string
	SQLTableName  string
	TableName     string
	Structure     model.Structure
	FieldMapping  map[string]ColumnMapping // slug -> mapping
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Registry owns the cache_table_registry bookkeeping table plus the
// physical per-upstream-table tables it creates and evolves.
type Registry struct {
	db  *localdb.DB
	log *zap.Logger
}

func New(db *localdb.DB, log *zap.Logger) *Registry {
	return &Registry{db: db, log: log}
}

// Init creates the registry bookkeeping table if absent.
func (r *Registry) Init(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS cache_table_registry (
			table_id       TEXT PRIMARY KEY,
			sql_table_name TEXT UNIQUE NOT NULL,
			table_name     TEXT NOT NULL,
			structure      TEXT NOT NULL,
			field_mapping  TEXT NOT NULL,
			created_at     TEXT NOT NULL,
			updated_at     TEXT NOT NULL
		)`)
	if err != nil {
		return engineerr.CacheInternalf(err, "schema: create registry table")
	}
	return nil
}

// Ensure returns the physical table name for tableID, creating or evolving
// it to match structure if needed (§4.1 schema evolution: new slugs get
// ALTER TABLE ADD COLUMN; slugs no longer present are left in place).
func (r *Registry) Ensure(ctx context.Context, tableID, tableName string, structure model.Structure) (string, error) {
	existing, err := r.Get(ctx, tableID)
	if err != nil && !engineerr.IsNotFound(err) {
		return "", err
	}
	if existing == nil {
		return r.create(ctx, tableID, tableName, structure)
	}
	return existing.SQLTableName, r.evolve(ctx, existing, structure)
}

// Get loads the registry entry for tableID, or a NotFound-flavoured
// CacheInternal error if absent.
func (r *Registry) Get(ctx context.Context, tableID string) (*Entry, error) {
	row := r.db.QueryRow(ctx, `
		SELECT sql_table_name, table_name, structure, field_mapping, created_at, updated_at
		FROM cache_table_registry WHERE table_id = ?`, tableID)

	var sqlName, tableName, structureJSON, mappingJSON, createdAt, updatedAt string
	if err := row.Scan(&sqlName, &tableName, &structureJSON, &mappingJSON, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, engineerr.NotFoundf("schema: table %q not registered", tableID)
		}
		return nil, engineerr.CacheInternalf(err, "schema: load registry entry")
	}

	var structure model.Structure
	if err := json.Unmarshal([]byte(structureJSON), &structure); err != nil {
		return nil, engineerr.CacheInternalf(err, "schema: decode structure")
	}
	var mapping map[string]ColumnMapping
	if err := json.Unmarshal([]byte(mappingJSON), &mapping); err != nil {
		return nil, engineerr.CacheInternalf(err, "schema: decode field mapping")
	}
	createdT, _ := time.Parse(time.RFC3339, createdAt)
	updatedT, _ := time.Parse(time.RFC3339, updatedAt)

	return &Entry{
		TableID: tableID, SQLTableName: sqlName, TableName: tableName,
		Structure: structure, FieldMapping: mapping, CreatedAt: createdT, UpdatedAt: updatedT,
	}, nil
}

func (r *Registry) create(ctx context.Context, tableID, tableName string, structure model.Structure) (string, error) {
	sqlTable := codec.SanitizeIdent(tableName, "table_"+codec.SanitizeIdent(tableID, "x"))
	mapping, ddlCols := buildMapping(structure)

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", quoteIdent(sqlTable))
	b.WriteString("  id TEXT PRIMARY KEY,\n")
	b.WriteString("  title TEXT,\n")
	b.WriteString("  cached_at TEXT NOT NULL,\n")
	b.WriteString("  expires_at TEXT NOT NULL,\n")
	for _, c := range ddlCols {
		fmt.Fprintf(&b, "  %s %s,\n", quoteIdent(c.Name), c.Type)
	}
	b.WriteString("  raw_json TEXT NOT NULL\n)")

	if err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec(b.String()); err != nil {
			return err
		}
		if _, err := tx.Exec(fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s(expires_at)`,
			quoteIdent(sqlTable+"_expires_idx"), quoteIdent(sqlTable))); err != nil {
			return err
		}
		if _, err := tx.Exec(fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s(title)`,
			quoteIdent(sqlTable+"_title_idx"), quoteIdent(sqlTable))); err != nil {
			return err
		}
		for _, c := range ddlCols {
			if !c.Index {
				continue
			}
			idxName := quoteIdent(sqlTable + "_" + c.Name + "_idx")
			if _, err := tx.Exec(fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s(%s)`,
				idxName, quoteIdent(sqlTable), quoteIdent(c.Name))); err != nil {
				return err
			}
		}

		structureJSON, err := json.Marshal(structure)
		if err != nil {
			return err
		}
		mappingJSON, err := json.Marshal(mapping)
		if err != nil {
			return err
		}
		now := time.Now().UTC().Format(time.RFC3339)
		_, err = tx.Exec(`
			INSERT INTO cache_table_registry
				(table_id, sql_table_name, table_name, structure, field_mapping, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			tableID, sqlTable, tableName, string(structureJSON), string(mappingJSON), now, now)
		return err
	}); err != nil {
		return "", engineerr.CacheInternalf(err, "schema: create table %q", tableID)
	}

	r.log.Info("schema: created table", zap.String("table_id", tableID), zap.String("sql_table", sqlTable))
	return sqlTable, nil
}

// evolve adds columns for any field slugs not already present in the
// stored mapping; it never drops columns for removed slugs (§4.1: "left
// in place so historical rows remain readable").
func (r *Registry) evolve(ctx context.Context, entry *Entry, structure model.Structure) error {
	known := entry.Structure.SlugSet()
	var newFields model.Structure
	for _, f := range structure {
		if !known[f.Slug] {
			newFields = append(newFields, f)
		}
	}
	if len(newFields) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	for _, m := range entry.FieldMapping {
		for _, c := range m.Columns {
			seen[c.Name] = true
		}
	}
	addMapping, addCols := buildMappingSeeded(newFields, seen)

	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		for _, c := range addCols {
			if _, err := tx.Exec(fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`,
				quoteIdent(entry.SQLTableName), quoteIdent(c.Name), c.Type)); err != nil {
				return err
			}
			if c.Index {
				idxName := quoteIdent(entry.SQLTableName + "_" + c.Name + "_idx")
				if _, err := tx.Exec(fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s(%s)`,
					idxName, quoteIdent(entry.SQLTableName), quoteIdent(c.Name))); err != nil {
					return err
				}
			}
		}

		merged := append(append(model.Structure{}, entry.Structure...), newFields...)
		for slug, m := range addMapping {
			entry.FieldMapping[slug] = m
		}
		structureJSON, err := json.Marshal(merged)
		if err != nil {
			return err
		}
		mappingJSON, err := json.Marshal(entry.FieldMapping)
		if err != nil {
			return err
		}
		_, err = tx.Exec(`
			UPDATE cache_table_registry SET structure = ?, field_mapping = ?, updated_at = ?
			WHERE table_id = ?`,
			string(structureJSON), string(mappingJSON), time.Now().UTC().Format(time.RFC3339), entry.TableID)
		return err
	})
}

type ddlColumn struct {
	Name  string
	Type  codec.SQLType
	Index bool
}

func buildMapping(structure model.Structure) (map[string]ColumnMapping, []ddlColumn) {
	return buildMappingSeeded(structure, map[string]bool{})
}

func buildMappingSeeded(structure model.Structure, seen map[string]bool) (map[string]ColumnMapping, []ddlColumn) {
	mapping := make(map[string]ColumnMapping, len(structure))
	var cols []ddlColumn

	for _, f := range structure {
		base := codec.SanitizeIdent(f.Label, codec.SanitizeIdent(f.Slug, "field"))
		colCols := codec.Columns(f.Type)
		m := ColumnMapping{Slug: f.Slug, Type: f.Type, Columns: map[string]ColumnOf{}}
		for _, c := range colCols {
			want := base + c.Suffix
			if c.FixedName != "" {
				want = c.FixedName
			}
			name := codec.Dedupe(want, seen)
			m.Columns[c.Suffix] = ColumnOf{Name: name, Type: c.Type}
			// §4.1's indexing policy always indexes the primary field's
			// principal column(s) in addition to whatever the type itself
			// always indexes.
			cols = append(cols, ddlColumn{Name: name, Type: c.Type, Index: c.Index || f.Params.Primary})
		}
		mapping[f.Slug] = m
	}
	return mapping, cols
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
