// Package query implements the Query Builder (§4.4): a chainable
// where/where_raw/order/limit/offset builder that compiles the closed
// operator grammar into parameterized SQL against one registered table,
// using the Schema Registry's field-to-column mapping for type-aware
// column selection.
package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/smartsuite/cachebridge/internal/codec"
	"github.com/smartsuite/cachebridge/internal/engineerr"
	"github.com/smartsuite/cachebridge/internal/model"
	"github.com/smartsuite/cachebridge/internal/schema"
)

// defaultSuffix is the column a field type exposes for comparison/sort
// when the caller addresses it bare (no ".from_date"/".to_date" suffix).
var defaultSuffix = map[model.FieldType]string{
	model.FieldDateRange:    "_to",
	model.FieldDueDate:      "_to",
	model.FieldAddress:      "_text",
	model.FieldRichDocument: "_preview",
	model.FieldChecklist:    "_total",
	model.FieldVote:         "_count",
	model.FieldTimeTracking: "_total",
}

// Builder accumulates where/order/limit/offset state and compiles it to
// SQL against entry's physical table. A Builder is not reusable across
// goroutines and carries its first error until Build, per the chainable
// builder idiom used throughout the pack's SQL-adjacent code.
type Builder struct {
	entry *schema.Entry
	loc   *time.Location

	wheres []string
	args   []any
	order  []string
	limit  int
	offset int
	err    error
}

// New starts a builder against entry's table. loc is the timezone used to
// normalize date-only comparison values to day boundaries (§4.4); pass
// time.UTC when no caller timezone hint is available.
func New(entry *schema.Entry, loc *time.Location) *Builder {
	if loc == nil {
		loc = time.UTC
	}
	return &Builder{entry: entry, loc: loc, limit: -1, offset: -1}
}

// Where adds one leaf condition, resolving field (optionally
// "slug.from_date"/"slug.to_date", or the built-in "id") to its physical
// column and compiling op against value.
func (b *Builder) Where(field string, op model.Operator, value any) *Builder {
	if b.err != nil {
		return b
	}
	frag, args, err := b.compile(field, op.Normalize(), value)
	if err != nil {
		b.err = err
		return b
	}
	b.wheres = append(b.wheres, frag)
	b.args = append(b.args, args...)
	return b
}

// WhereRaw appends a pre-compiled SQL fragment (used by the Filter
// Translator to splice in nested AND/OR groups) verbatim.
func (b *Builder) WhereRaw(frag string, args ...any) *Builder {
	if frag == "" {
		return b
	}
	b.wheres = append(b.wheres, frag)
	b.args = append(b.args, args...)
	return b
}

// WhereGroup compiles a whole filter tree (leaf condition or nested
// AND/OR group, §4.8) and adds it as one parenthesized WHERE fragment.
// A nil group is a no-op, matching an absent filter.
func (b *Builder) WhereGroup(g *model.FilterGroup) *Builder {
	if g == nil || b.err != nil {
		return b
	}
	frag, args, err := b.compileNode(*g)
	if err != nil {
		b.err = err
		return b
	}
	return b.WhereRaw(frag, args...)
}

func (b *Builder) compileNode(g model.FilterGroup) (string, []any, error) {
	if g.IsLeaf() {
		return b.compile(g.Field, model.Operator(g.Compare).Normalize(), g.Value)
	}
	if len(g.Fields) == 0 {
		return "1 = 1", nil, nil
	}
	joiner := " AND "
	if strings.EqualFold(g.Operator, "or") {
		joiner = " OR "
	}
	var parts []string
	var args []any
	for _, child := range g.Fields {
		frag, childArgs, err := b.compileNode(child)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, frag)
		args = append(args, childArgs...)
	}
	return "(" + strings.Join(parts, joiner) + ")", args, nil
}

// Order appends a sort key. Field follows the same resolution as Where.
func (b *Builder) Order(field string, ascending bool) *Builder {
	if b.err != nil {
		return b
	}
	col, _, err := b.resolveColumn(field)
	if err != nil {
		b.err = err
		return b
	}
	dir := "ASC"
	if !ascending {
		dir = "DESC"
	}
	b.order = append(b.order, fmt.Sprintf("%s %s", quoteIdent(col), dir))
	return b
}

func (b *Builder) Limit(n int) *Builder  { b.limit = n; return b }
func (b *Builder) Offset(n int) *Builder { b.offset = n; return b }

// Build renders the accumulated state into a SELECT statement's WHERE/
// ORDER BY/LIMIT/OFFSET clause plus its bound arguments. selectCols names
// the columns to project; Build does not itself choose them (the caller
// passes them).
func (b *Builder) Build(selectCols []string) (string, []any, error) {
	if b.err != nil {
		return "", nil, b.err
	}
	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(quoteIdents(selectCols), ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(quoteIdent(b.entry.SQLTableName))
	if len(b.wheres) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(b.wheres, " AND "))
	}
	if len(b.order) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(b.order, ", "))
	}
	if b.limit >= 0 {
		fmt.Fprintf(&sb, " LIMIT %d", b.limit)
	}
	if b.offset >= 0 {
		fmt.Fprintf(&sb, " OFFSET %d", b.offset)
	}
	return sb.String(), b.args, nil
}

// resolveColumn maps a caller-facing field address to its physical
// column name and SQL type. "id" is the built-in primary key. A
// "slug.from_date"/"slug.to_date" address overrides a compound date
// field's default column.
func (b *Builder) resolveColumn(field string) (string, codec.SQLType, error) {
	if field == "id" {
		return "id", codec.TypeText, nil
	}
	base, sub, hasSub := strings.Cut(field, ".")
	mapping, ok := b.entry.FieldMapping[base]
	if !ok {
		return "", "", engineerr.Validationf("query: unknown field %q", base)
	}
	suffix := defaultSuffix[mapping.Type]
	if hasSub {
		switch sub {
		case "from_date":
			suffix = "_from"
		case "to_date":
			suffix = "_to"
		default:
			return "", "", engineerr.Validationf("query: unsupported sub-field %q on %q", sub, base)
		}
	}
	col, ok := mapping.Columns[suffix]
	if !ok {
		return "", "", engineerr.Validationf("query: field %q has no %q column", base, suffix)
	}
	return col.Name, col.Type, nil
}

// isEmptyClause implements §4.4's three-way is_empty branch: JSON-array
// fields treat the literal "[]" as empty (never NULL, per §4.2's encoding
// rule), plain text fields treat '' as empty, and everything else is a bare
// NULL test. field is the caller-facing slug (stripped of any sub-field
// suffix) used to look up the underlying field type; quoted is the already
// quoted+resolved column.
func (b *Builder) isEmptyClause(field, quoted string) string {
	base, _, _ := strings.Cut(field, ".")
	if mapping, ok := b.entry.FieldMapping[base]; ok {
		if model.IsJSONArrayField(mapping.Type) {
			return fmt.Sprintf("(%s IS NULL OR %s = '[]')", quoted, quoted)
		}
		if model.IsTextField(mapping.Type) {
			return fmt.Sprintf("(%s IS NULL OR %s = '')", quoted, quoted)
		}
	}
	return fmt.Sprintf("%s IS NULL", quoted)
}

// fieldTypeOf returns the upstream field type backing field (stripped of
// any ".from_date"/".to_date" sub-field suffix), or "" if field isn't a
// known mapped slug (e.g. the built-in "id").
func (b *Builder) fieldTypeOf(field string) model.FieldType {
	base, _, _ := strings.Cut(field, ".")
	if mapping, ok := b.entry.FieldMapping[base]; ok {
		return mapping.Type
	}
	return ""
}

// isDateColumnType reports whether t stores its principal column as an
// ISO 8601 date/timestamp string subject to the date-only eq/compare
// normalisation in §4.4.
func isDateColumnType(t model.FieldType) bool {
	return t == model.FieldDate || model.IsCompoundDateField(t)
}

// dateOnlyEqBounds reports whether value is a bare "YYYY-MM-DD" string and,
// if so, the local-calendar-day UTC boundary pair an eq filter against it
// should expand to (§4.4, §8 "Date-only filter eq ... returns a record
// whose stored timestamp is ... (boundary inside local day)"). A value
// already carrying a time component (or a non-string) reports ok=false so
// the caller falls back to a plain equality compare.
func dateOnlyEqBounds(value any, loc *time.Location) (lo, hi any, ok bool) {
	s, isStr := value.(string)
	if !isStr {
		return nil, nil, false
	}
	if _, err := time.Parse("2006-01-02", s); err != nil {
		return nil, nil, false
	}
	return normalizeDateBound(s, loc, false), normalizeDateBound(s, loc, true), true
}

// overdueColumn resolves the _is_overdue/_is_completed companion column
// for a due-date field, used by the is_overdue/is_not_overdue operators.
func (b *Builder) overdueColumn(field string) (string, error) {
	mapping, ok := b.entry.FieldMapping[field]
	if !ok || mapping.Type != model.FieldDueDate {
		return "", engineerr.Validationf("query: is_overdue only applies to due-date fields, got %q", field)
	}
	col, ok := mapping.Columns["_is_overdue"]
	if !ok {
		return "", engineerr.Validationf("query: due-date field %q missing overdue column", field)
	}
	return col.Name, nil
}

func (b *Builder) compile(field string, op model.Operator, value any) (string, []any, error) {
	if op == model.OpIsOverdue || op == model.OpIsNotOverdue {
		col, err := b.overdueColumn(field)
		if err != nil {
			return "", nil, err
		}
		want := 1
		if op == model.OpIsNotOverdue {
			want = 0
		}
		return fmt.Sprintf("%s = ?", quoteIdent(col)), []any{want}, nil
	}

	col, sqlType, err := b.resolveColumn(field)
	if err != nil {
		return "", nil, err
	}
	quoted := quoteIdent(col)

	switch op {
	case model.OpEq:
		if sqlType == codec.TypeText && isDateColumnType(b.fieldTypeOf(field)) {
			if lo, hi, ok := dateOnlyEqBounds(value, b.loc); ok {
				return fmt.Sprintf("%s BETWEEN ? AND ?", quoted), []any{lo, hi}, nil
			}
		}
		return fmt.Sprintf("%s = ?", quoted), []any{value}, nil
	case model.OpIsExactly:
		return jsonExactlyClause(quoted, value)
	case model.OpNe:
		return fmt.Sprintf("%s IS NOT ?", quoted), []any{value}, nil
	case model.OpGt:
		return fmt.Sprintf("%s > ?", quoted), []any{value}, nil
	case model.OpGte:
		return fmt.Sprintf("%s >= ?", quoted), []any{value}, nil
	case model.OpLt:
		return fmt.Sprintf("%s < ?", quoted), []any{value}, nil
	case model.OpLte:
		return fmt.Sprintf("%s <= ?", quoted), []any{value}, nil
	case model.OpContains:
		return fmt.Sprintf("%s LIKE ? ESCAPE '\\'", quoted), []any{"%" + escapeLike(fmt.Sprint(value)) + "%"}, nil
	case model.OpStartsWith:
		return fmt.Sprintf("%s LIKE ? ESCAPE '\\'", quoted), []any{escapeLike(fmt.Sprint(value)) + "%"}, nil
	case model.OpEndsWith:
		return fmt.Sprintf("%s LIKE ? ESCAPE '\\'", quoted), []any{"%" + escapeLike(fmt.Sprint(value))}, nil
	case model.OpFileNameHas:
		return fmt.Sprintf("%s LIKE ? ESCAPE '\\'", quoted), []any{"%" + escapeLike(fmt.Sprint(value)) + "%"}, nil
	case model.OpFileTypeIs:
		return fmt.Sprintf("%s LIKE ? ESCAPE '\\'", quoted), []any{"%." + escapeLike(fmt.Sprint(value))}, nil
	case model.OpIn:
		return inClause(quoted, value, false)
	case model.OpNotIn:
		return inClause(quoted, value, true)
	case model.OpBetween, model.OpNotBetween:
		return betweenClause(quoted, value, op == model.OpNotBetween, b.loc, sqlType)
	case model.OpIsNull:
		return fmt.Sprintf("%s IS NULL", quoted), nil, nil
	case model.OpIsNotNull:
		return fmt.Sprintf("%s IS NOT NULL", quoted), nil, nil
	case model.OpIsEmpty:
		return b.isEmptyClause(field, quoted), nil, nil
	case model.OpIsNotEmpty:
		return "NOT " + b.isEmptyClause(field, quoted), nil, nil
	case model.OpHasAnyOf:
		return jsonAnyClause(quoted, value)
	case model.OpHasAllOf:
		return jsonAllClause(quoted, value)
	case model.OpHasNoneOf:
		frag, args, err := jsonAnyClause(quoted, value)
		if err != nil {
			return "", nil, err
		}
		return "NOT " + frag, args, nil
	case model.OpIsBefore, model.OpIsOnOrBefore, model.OpIsAfter, model.OpIsOnOrAfter:
		return dateCompareClause(quoted, op, value, b.loc)
	default:
		return "", nil, engineerr.Validationf("query: unsupported operator %q on field %q", op, field)
	}
}

func escapeLike(s string) string {
	r := strings.NewReplacer("\\", "\\\\", "%", "\\%", "_", "\\_")
	return r.Replace(s)
}

func inClause(col string, value any, negate bool) (string, []any, error) {
	items, ok := value.([]any)
	if !ok {
		return "", nil, engineerr.Validationf("query: %s expects a list value", col)
	}
	if len(items) == 0 {
		if negate {
			return "1 = 1", nil, nil
		}
		return "1 = 0", nil, nil
	}
	placeholders := make([]string, len(items))
	for i := range items {
		placeholders[i] = "?"
	}
	verb := "IN"
	if negate {
		verb = "NOT IN"
	}
	return fmt.Sprintf("%s %s (%s)", col, verb, strings.Join(placeholders, ", ")), items, nil
}

func betweenClause(col string, value any, negate bool, loc *time.Location, sqlType codec.SQLType) (string, []any, error) {
	pair, ok := value.([]any)
	if !ok || len(pair) != 2 {
		return "", nil, engineerr.Validationf("query: between expects a 2-element [low, high] value")
	}
	lo, hi := pair[0], pair[1]
	if sqlType == codec.TypeText {
		lo = normalizeDateBound(lo, loc, false)
		hi = normalizeDateBound(hi, loc, true)
	}
	verb := "BETWEEN"
	if negate {
		return fmt.Sprintf("%s NOT BETWEEN ? AND ?", col), []any{lo, hi}, nil
	}
	return fmt.Sprintf("%s %s ? AND ?", col, verb), []any{lo, hi}, nil
}

func jsonAnyClause(col string, value any) (string, []any, error) {
	items, ok := value.([]any)
	if !ok {
		return "", nil, engineerr.Validationf("query: %s expects a list value", col)
	}
	if len(items) == 0 {
		return "1 = 0", nil, nil
	}
	placeholders := make([]string, len(items))
	for i := range items {
		placeholders[i] = "?"
	}
	frag := fmt.Sprintf(
		"EXISTS (SELECT 1 FROM json_each(%s) WHERE json_each.value IN (%s))",
		col, strings.Join(placeholders, ", "))
	return frag, items, nil
}

func jsonAllClause(col string, value any) (string, []any, error) {
	items, ok := value.([]any)
	if !ok {
		return "", nil, engineerr.Validationf("query: %s expects a list value", col)
	}
	if len(items) == 0 {
		return "1 = 1", nil, nil
	}
	var parts []string
	var args []any
	for _, item := range items {
		parts = append(parts, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM json_each(%s) WHERE json_each.value = ?)", col))
		args = append(args, item)
	}
	return "(" + strings.Join(parts, " AND ") + ")", args, nil
}

// jsonExactlyClause implements is_exactly (§4.4: "JSON-array length equals
// N AND all N values present"): an order-independent multiset check, not a
// string-equality compare on the stored JSON text, so ["a","b"] and
// ["b","a"] match the same is_exactly filter.
func jsonExactlyClause(col string, value any) (string, []any, error) {
	items, ok := value.([]any)
	if !ok {
		return "", nil, engineerr.Validationf("query: %s expects a list value", col)
	}
	lengthFrag := fmt.Sprintf("json_array_length(%s) = ?", col)
	args := []any{len(items)}
	if len(items) == 0 {
		return lengthFrag, args, nil
	}
	allFrag, allArgs, err := jsonAllClause(col, value)
	if err != nil {
		return "", nil, err
	}
	return "(" + lengthFrag + " AND " + allFrag + ")", append(args, allArgs...), nil
}

func dateCompareClause(col string, op model.Operator, value any, loc *time.Location) (string, []any, error) {
	s := fmt.Sprint(value)
	var bound string
	switch op {
	case model.OpIsBefore, model.OpIsOnOrAfter:
		bound = normalizeDateBound(s, loc, false)
	default:
		bound = normalizeDateBound(s, loc, true)
	}
	var verb string
	switch op {
	case model.OpIsBefore:
		verb = "<"
	case model.OpIsOnOrBefore:
		verb = "<="
	case model.OpIsAfter:
		verb = ">"
	case model.OpIsOnOrAfter:
		verb = ">="
	}
	return fmt.Sprintf("%s %s ?", col, verb), []any{bound}, nil
}

// normalizeDateBound expands a date-only string ("2024-01-02") to the
// local-day UTC boundary (start-of-day for a lower/exclusive-upper bound,
// end-of-day for an upper/inclusive bound); a value already carrying a
// time component is returned unchanged. This is the DST-aware half of
// §4.4's "date-only values normalize to local-day boundaries" rule: the
// offset is computed from loc at the date in question, not a fixed
// offset, so it's correct across a DST transition.
func normalizeDateBound(value any, loc *time.Location, endOfDay bool) any {
	s, ok := value.(string)
	if !ok {
		return value
	}
	d, err := time.ParseInLocation("2006-01-02", s, loc)
	if err != nil {
		return s
	}
	if endOfDay {
		d = d.Add(24*time.Hour - time.Nanosecond)
	}
	return d.UTC().Format(time.RFC3339Nano)
}

func quoteIdent(name string) string { return `"` + strings.ReplaceAll(name, `"`, `""`) + `"` }

func quoteIdents(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = quoteIdent(n)
	}
	return out
}
