// Package codec implements the Field Codec (§4.2): per field-type
// translation between the upstream JSON value shape and one-or-more
// storage columns with explicit SQL types. It is organised as a
// `(FieldType) -> (encode, decode, columns)` dispatch table rather than
// an open type hierarchy, per the design note in §9 that favours a closed
// enum over subtyping to avoid the substring-match bugs the source
// suffered from.
package codec

import "github.com/smartsuite/cachebridge/internal/model"

// SQLType is the explicit column SQL type the codec assigns; kept as a
// small closed set rather than importing a DB-specific type system.
type SQLType string

const (
	TypeText SQLType = "TEXT"
	TypeInt  SQLType = "INT"
	TypeReal SQLType = "REAL"
)

// Column describes one physical column a field type contributes.
type Column struct {
	// Suffix is appended to the sanitised field label to form the column
	// name; empty means the column name is the label itself.
	Suffix string
	Type   SQLType
	// Index marks whether the Schema Registry's indexing policy (§4.1)
	// should create an index on this column.
	Index bool
	// FixedName, when non-empty, overrides the usual label+Suffix naming
	// with a literal column name that ignores the field's label entirely.
	// Used for the handful of §4.2 columns the authoritative table pins
	// to a specific name regardless of how the upstream field is labelled.
	FixedName string
}

// Columns returns the authoritative column list for a field type, per the
// mapping table in §4.2. The returned slice is ordered; callers append
// Suffix to the sanitised label to get the physical column name.
func Columns(t model.FieldType) []Column {
	switch t {
	case model.FieldFirstCreated, model.FieldLastUpdated:
		return []Column{{Suffix: "_on", Type: TypeText, Index: true}, {Suffix: "_by", Type: TypeText}}
	case model.FieldDeletedDate:
		// Fixed column names regardless of label, per §4.2's authoritative table.
		return []Column{
			{Suffix: "_on", Type: TypeText, Index: true, FixedName: "deleted_on"},
			{Suffix: "_by", Type: TypeText, FixedName: "deleted_by"},
		}
	case model.FieldDate:
		return []Column{{Suffix: "", Type: TypeText, Index: true}, {Suffix: "_include_time", Type: TypeInt}}
	case model.FieldDateRange:
		return []Column{
			{Suffix: "_from", Type: TypeText, Index: true},
			{Suffix: "_to", Type: TypeText, Index: true},
			{Suffix: "_from_include_time", Type: TypeInt},
			{Suffix: "_to_include_time", Type: TypeInt},
		}
	case model.FieldDueDate:
		return []Column{
			{Suffix: "_from", Type: TypeText, Index: true},
			{Suffix: "_to", Type: TypeText, Index: true},
			{Suffix: "_from_include_time", Type: TypeInt},
			{Suffix: "_to_include_time", Type: TypeInt},
			{Suffix: "_is_overdue", Type: TypeInt},
			{Suffix: "_is_completed", Type: TypeInt},
		}
	case model.FieldStatus:
		return []Column{{Suffix: "", Type: TypeText, Index: true}, {Suffix: "_updated_on", Type: TypeText}}
	case model.FieldAddress:
		return []Column{{Suffix: "_text", Type: TypeText}, {Suffix: "_json", Type: TypeText}}
	case model.FieldFullName:
		return []Column{{Suffix: "", Type: TypeText}, {Suffix: "_json", Type: TypeText}}
	case model.FieldRichDocument:
		return []Column{{Suffix: "_preview", Type: TypeText}, {Suffix: "_json", Type: TypeText}}
	case model.FieldChecklist:
		return []Column{{Suffix: "_json", Type: TypeText}, {Suffix: "_total", Type: TypeInt}, {Suffix: "_completed", Type: TypeInt}}
	case model.FieldVote:
		return []Column{{Suffix: "_count", Type: TypeInt}, {Suffix: "_json", Type: TypeText}}
	case model.FieldTimeTracking:
		return []Column{{Suffix: "_json", Type: TypeText}, {Suffix: "_total", Type: TypeReal}}
	case model.FieldNumber, model.FieldCurrency, model.FieldPercent:
		return []Column{{Suffix: "", Type: TypeReal, Index: t == model.FieldCurrency}}
	case model.FieldDuration:
		return []Column{{Suffix: "", Type: TypeReal}}
	case model.FieldYesNo:
		return []Column{{Suffix: "", Type: TypeInt, Index: true}}
	case model.FieldSingleSelect:
		return []Column{{Suffix: "", Type: TypeText, Index: true}}
	default:
		if model.IsJSONArrayField(t) {
			return []Column{{Suffix: "", Type: TypeText, Index: model.AlwaysIndexed(t)}}
		}
		// Plain text fields (text/email/phone/link/ip) and anything
		// otherwise unrecognised: one TEXT column, stored verbatim.
		return []Column{{Suffix: "", Type: TypeText}}
	}
}
