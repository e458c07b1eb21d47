// Package model holds the data-transfer types shared across the cache
// engine: field descriptors, record values, filter trees and the envelopes
// tool operations exchange. These are intentionally lightweight DTOs and do
// not embed any SQL driver types, keeping the upstream/local boundary clean.
package model

// FieldType is the closed enum of upstream field types the Field Codec
// knows how to store. New upstream types must be added here and in
// internal/codec before they round-trip through the cache.
type FieldType string

const (
	FieldText          FieldType = "text"
	FieldEmail         FieldType = "email"
	FieldPhone         FieldType = "phone"
	FieldLink          FieldType = "link"
	FieldIP            FieldType = "ip"
	FieldNumber        FieldType = "number"
	FieldCurrency      FieldType = "currency"
	FieldPercent       FieldType = "percent"
	FieldDuration      FieldType = "duration"
	FieldYesNo         FieldType = "yes-no"
	FieldDate          FieldType = "date"
	FieldDateRange     FieldType = "date-range"
	FieldDueDate       FieldType = "due-date"
	FieldFirstCreated  FieldType = "first-created"
	FieldLastUpdated   FieldType = "last-updated"
	FieldDeletedDate   FieldType = "deleted-date"
	FieldStatus        FieldType = "status"
	FieldSingleSelect  FieldType = "single-select"
	FieldMultiSelect   FieldType = "multi-select"
	FieldUser          FieldType = "user"
	FieldAssignedTo    FieldType = "assigned-to"
	FieldLinkedRecord  FieldType = "linked-record"
	FieldTag           FieldType = "tag"
	FieldFiles         FieldType = "files"
	FieldImages        FieldType = "images"
	FieldSignature     FieldType = "signature"
	FieldColour        FieldType = "colour"
	FieldSocial        FieldType = "social"
	FieldAddress       FieldType = "address"
	FieldFullName      FieldType = "full-name"
	FieldRichDocument  FieldType = "rich-document"
	FieldChecklist     FieldType = "checklist"
	FieldVote          FieldType = "vote"
	FieldTimeTracking  FieldType = "time-tracking"
)

// jsonArrayFields is the exact-match set of types whose storage column
// holds a JSON array/object, never a scalar. §4.4 requires exact-match sets
// instead of regex/substring classification to avoid false matches such as
// "linkedrecord" containing "link".
var jsonArrayFields = map[FieldType]bool{
	FieldUser:         true,
	FieldAssignedTo:   true,
	FieldMultiSelect:  true,
	FieldLinkedRecord: true,
	FieldTag:          true,
	FieldFiles:        true,
	FieldImages:       true,
	FieldSignature:    true,
	FieldColour:       true,
	FieldSocial:       true,
}

// alwaysIndexed is the exact-match set of field types the Schema
// Registry's indexing policy (§4.1) always indexes, regardless of
// whether the type's storage is otherwise indexed by default.
var alwaysIndexed = map[FieldType]bool{
	FieldStatus:       true,
	FieldSingleSelect: true,
	FieldDate:         true,
	FieldDueDate:      true,
	FieldDateRange:    true,
	FieldCurrency:     true,
	FieldLastUpdated:  true,
	FieldAssignedTo:   true,
	FieldYesNo:        true,
}

// AlwaysIndexed reports whether t is in the Schema Registry's
// always-index set (§4.1).
func AlwaysIndexed(t FieldType) bool { return alwaysIndexed[t] }

// textFields is the exact-match set of types stored as a single plain-text
// column (as opposed to JSON, numeric or multi-column compound storage).
var textFields = map[FieldType]bool{
	FieldText:  true,
	FieldEmail: true,
	FieldPhone: true,
	FieldLink:  true,
	FieldIP:    true,
}

// IsJSONArrayField reports whether t stores its value as JSON text holding
// an array/object, per the exact-match set in §4.4.
func IsJSONArrayField(t FieldType) bool { return jsonArrayFields[t] }

// IsTextField reports whether t stores its value as a single plain-text
// column, per the exact-match set in §4.4.
func IsTextField(t FieldType) bool { return textFields[t] }

// IsCompoundDateField reports whether t is a date-range-shaped field
// (date-range or due-date) whose default comparison/sort column is `_to`
// unless a sub-field suffix says otherwise.
func IsCompoundDateField(t FieldType) bool {
	return t == FieldDateRange || t == FieldDueDate
}

// FieldParams carries the type-specific parameters a field descriptor may
// declare: primary-field flag, choice list for select/status types, the
// linked table id for linked-record fields, and an include-time flag for
// date fields.
type FieldParams struct {
	Primary        bool     `json:"primary,omitempty"`
	Choices        []Choice `json:"choices,omitempty"`
	LinkedTargetID string   `json:"linked_target_id,omitempty"`
	IncludeTime    bool     `json:"include_time,omitempty"`
}

// Choice is one entry of a single-select/status/multi-select choice list.
type Choice struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Color string `json:"color,omitempty"`
}

// Field is one entry of a table's field catalogue (§3 "Field descriptor").
// Slug is the stable upstream identifier; Label is the display name used
// to derive column names per §4.1.
type Field struct {
	Slug   string      `json:"slug"`
	Label  string      `json:"label"`
	Type   FieldType   `json:"type"`
	Params FieldParams `json:"params,omitempty"`
}

// Structure is the ordered field catalogue of a table (§3 "Field
// descriptor / structure"). Order matters: it determines column creation
// order and is compared slug-by-slug during schema evolution (§4.1).
type Structure []Field

// SlugSet returns the set of field slugs in s, used by schema evolution to
// diff the stored structure against an incoming one.
func (s Structure) SlugSet() map[string]bool {
	out := make(map[string]bool, len(s))
	for _, f := range s {
		out[f.Slug] = true
	}
	return out
}

// BySlug returns the field descriptor for slug, or false if absent.
func (s Structure) BySlug(slug string) (Field, bool) {
	for _, f := range s {
		if f.Slug == slug {
			return f, true
		}
	}
	return Field{}, false
}

// Primary returns the table's primary field, if one is marked.
func (s Structure) Primary() (Field, bool) {
	for _, f := range s {
		if f.Params.Primary {
			return f, true
		}
	}
	return Field{}, false
}

// Table is an upstream table descriptor (§3 "Table descriptor").
type Table struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Structure Structure `json:"structure"`
}

// Record is a single upstream row, keyed by id, with its field values
// addressed by slug. Value shapes vary by field type: scalars for
// text/number-ish fields, and structured maps for compound fields (dates,
// due-dates, address, etc.) following the reconstruction rules in §4.2.
type Record struct {
	ID     string         `json:"id"`
	Title  string         `json:"title,omitempty"`
	Fields map[string]any `json:"fields"`
}
