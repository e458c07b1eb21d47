// Package filterlang implements the Filter Translator (§4.8): it converts
// upstream's portable filter-tree JSON (operator/field/value, nested
// AND/OR groups, date-mode envelopes, sub-field addressing) into calls
// against a internal/query.Builder. It never touches SQL directly — that
// stays the Query Builder's job — it only normalises the wire shape into
// the Builder's (field, operator, value) vocabulary.
package filterlang

import (
	"github.com/smartsuite/cachebridge/internal/model"
	"github.com/smartsuite/cachebridge/internal/query"
)

// comparisonToOperator maps the wire-level comparison token to the Query
// Builder's closed operator grammar (§4.4). Most tokens pass through
// unchanged; this table exists because upstream uses a few different
// spellings for the same operator depending on endpoint version.
var comparisonToOperator = map[string]model.Operator{
	"is":                 model.OpEq,
	"eq":                 model.OpEq,
	"is_not":             model.OpNe,
	"ne":                 model.OpNe,
	"gt":                 model.OpGt,
	"gte":                model.OpGte,
	"lt":                 model.OpLt,
	"lte":                model.OpLte,
	"contains":           model.OpContains,
	"starts_with":        model.OpStartsWith,
	"ends_with":          model.OpEndsWith,
	"is_any_of":          model.OpIsAnyOf,
	"in":                 model.OpIn,
	"is_none_of":         model.OpIsNoneOf,
	"not_in":             model.OpNotIn,
	"between":            model.OpBetween,
	"not_between":        model.OpNotBetween,
	"is_null":            model.OpIsNull,
	"is_not_null":        model.OpIsNotNull,
	"is_empty":           model.OpIsEmpty,
	"is_not_empty":       model.OpIsNotEmpty,
	"has_any_of":         model.OpHasAnyOf,
	"has_all_of":         model.OpHasAllOf,
	"has_none_of":        model.OpHasNoneOf,
	"is_exactly":         model.OpIsExactly,
	"is_before":          model.OpIsBefore,
	"is_after":           model.OpIsAfter,
	"is_on_or_before":    model.OpIsOnOrBefore,
	"is_on_or_after":     model.OpIsOnOrAfter,
	"is_overdue":         model.OpIsOverdue,
	"is_not_overdue":     model.OpIsNotOverdue,
	"file_name_contains": model.OpFileNameHas,
	"file_type_is":       model.OpFileTypeIs,
}

// Apply translates g (which may be nil) into calls against b, returning b
// for chaining. A leaf condition is applied via Where; a nested AND/OR
// group is compiled into one WhereRaw fragment via Builder.WhereGroup so
// the group's boolean structure is preserved inside a single parenthesized
// clause, per §4.8 "Nested AND/OR groups compile to where_raw(...)".
func Apply(b *query.Builder, g *model.FilterGroup) *query.Builder {
	if g == nil {
		return b
	}
	if g.IsLeaf() {
		op, value := normalizeLeaf(*g)
		return b.Where(g.Field, op, value)
	}
	translated := translateGroup(*g)
	return b.WhereGroup(&translated)
}

// translateGroup recursively rewrites every leaf's comparison token and
// value (date envelopes unwrapped, is_empty/is_not_empty normalised),
// leaving the group/field tree shape intact for Builder.WhereGroup to
// compile.
func translateGroup(g model.FilterGroup) model.FilterGroup {
	if g.IsLeaf() {
		op, value := normalizeLeaf(g)
		g.Compare = string(op)
		g.Value = value
		return g
	}
	out := g
	out.Fields = make([]model.FilterGroup, len(g.Fields))
	for i, child := range g.Fields {
		out.Fields[i] = translateGroup(child)
	}
	return out
}

// normalizeLeaf resolves a leaf condition's comparison token to its
// canonical operator and unwraps/normalises its value per §4.8:
//   - a nested date-mode envelope {date_mode, date_mode_value} collapses
//     to its concrete date string;
//   - is_empty/is_not_empty values are forced to nil before forwarding,
//     since upstream rejects an empty-string bound for those operators.
func normalizeLeaf(g model.FilterGroup) (model.Operator, any) {
	op, ok := comparisonToOperator[g.Compare]
	if !ok {
		op = model.Operator(g.Compare)
	}
	op = op.Normalize()

	switch op {
	case model.OpIsEmpty, model.OpIsNotEmpty, model.OpIsNull, model.OpIsNotNull,
		model.OpIsOverdue, model.OpIsNotOverdue:
		return op, nil
	}
	return op, unwrapValue(g.Value)
}

// unwrapValue extracts the concrete value from a date-mode envelope if
// present; any other shape (scalar, list, nested between-pair) passes
// through unchanged.
func unwrapValue(value any) any {
	m, ok := value.(map[string]any)
	if !ok {
		return value
	}
	if dateMode, ok := m["date_mode"]; ok && dateMode != nil {
		if v, ok := m["date_mode_value"]; ok {
			return v
		}
	}
	return value
}
