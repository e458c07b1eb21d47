package codec

import (
	"encoding/json"
	"fmt"

	"github.com/smartsuite/cachebridge/internal/model"
)

// Encode extracts the storage column values for one field of one record,
// per §4.2's encoding rules: JSON-array fields store the raw JSON text
// literally (empty arrays as the literal "[]", never NULL); timestamps are
// parsed for validation only and the original string is stored verbatim;
// a missing value produces NULL for every column the field contributes.
//
// The returned map is keyed by the same Suffix values Columns(f.Type)
// reports, so callers zip the two to build column-name -> value pairs.
func Encode(f model.Field, value any) (map[string]any, error) {
	cols := Columns(f.Type)
	out := make(map[string]any, len(cols))

	if value == nil {
		for _, c := range cols {
			out[c.Suffix] = nil
		}
		return out, nil
	}

	switch f.Type {
	case model.FieldFirstCreated, model.FieldLastUpdated:
		return encodeUserStamp(value)
	case model.FieldDeletedDate:
		return encodeUserStamp(value)
	case model.FieldDate:
		return encodeDateEnvelope(value, "")
	case model.FieldDateRange:
		return encodeDateRange(value)
	case model.FieldDueDate:
		return encodeDueDate(value)
	case model.FieldStatus:
		return encodeStatus(value)
	case model.FieldAddress:
		return encodeAddress(value)
	case model.FieldFullName:
		return encodeFullName(value)
	case model.FieldRichDocument:
		return encodeRichDocument(value)
	case model.FieldChecklist:
		return encodeChecklist(value)
	case model.FieldVote:
		return encodeVote(value)
	case model.FieldTimeTracking:
		return encodeTimeTracking(value)
	case model.FieldNumber, model.FieldCurrency, model.FieldPercent, model.FieldDuration:
		n, err := toFloat(value)
		if err != nil {
			return nil, err
		}
		return map[string]any{"": n}, nil
	case model.FieldYesNo:
		b, _ := value.(bool)
		n := 0
		if b {
			n = 1
		}
		return map[string]any{"": n}, nil
	case model.FieldSingleSelect:
		s, _ := value.(string)
		return map[string]any{"": nullIfEmpty(s)}, nil
	default:
		if model.IsJSONArrayField(f.Type) {
			raw, err := encodeJSONArray(value)
			if err != nil {
				return nil, err
			}
			return map[string]any{"": raw}, nil
		}
		s, _ := value.(string)
		return map[string]any{"": nullIfEmpty(s)}, nil
	}
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// encodeJSONArray re-marshals value verbatim, substituting the literal
// "[]" for a nil/absent array rather than storing NULL, per §4.2.
func encodeJSONArray(value any) (string, error) {
	if value == nil {
		return "[]", nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("codec: marshal array field: %w", err)
	}
	if string(raw) == "null" {
		return "[]", nil
	}
	return string(raw), nil
}

func toFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	default:
		return 0, fmt.Errorf("codec: expected numeric value, got %T", value)
	}
}

func asMap(value any) (map[string]any, bool) {
	m, ok := value.(map[string]any)
	return m, ok
}

func encodeUserStamp(value any) (map[string]any, error) {
	m, ok := asMap(value)
	if !ok {
		return map[string]any{"_on": nil, "_by": nil}, nil
	}
	on, _ := m["date"].(string)
	by, _ := m["by"].(string)
	return map[string]any{"_on": nullIfEmpty(on), "_by": nullIfEmpty(by)}, nil
}

// encodeDateEnvelope handles a bare {date, include_time} value. key
// lets due-date/date-range reuse this for their "from_date"/"to_date"
// sub-envelopes by passing "from_date"/"to_date" rather than "".
func encodeDateEnvelope(value any, key string) (map[string]any, error) {
	env := value
	if key != "" {
		m, ok := asMap(value)
		if !ok {
			return map[string]any{"": nil, "_include_time": nil}, nil
		}
		env = m[key]
	}
	m, ok := asMap(env)
	if !ok {
		return map[string]any{"": nil, "_include_time": nil}, nil
	}
	date, _ := m["date"].(string)
	includeTime, _ := m["include_time"].(bool)
	it := 0
	if includeTime {
		it = 1
	}
	return map[string]any{"": nullIfEmpty(date), "_include_time": it}, nil
}

func encodeDateRange(value any) (map[string]any, error) {
	m, ok := asMap(value)
	if !ok {
		return map[string]any{
			"_from": nil, "_to": nil, "_from_include_time": nil, "_to_include_time": nil,
		}, nil
	}
	from, _ := encodeDateEnvelope(m, "from_date")
	to, _ := encodeDateEnvelope(m, "to_date")
	return map[string]any{
		"_from":              from[""],
		"_from_include_time": from["_include_time"],
		"_to":                to[""],
		"_to_include_time":   to["_include_time"],
	}, nil
}

func encodeDueDate(value any) (map[string]any, error) {
	rng, err := encodeDateRange(value)
	if err != nil {
		return nil, err
	}
	m, _ := asMap(value)
	overdue, completed := 0, 0
	if m != nil {
		if b, _ := m["is_overdue"].(bool); b {
			overdue = 1
		}
		if b, _ := m["is_completed"].(bool); b {
			completed = 1
		}
	}
	rng["_is_overdue"] = overdue
	rng["_is_completed"] = completed
	return rng, nil
}

func encodeStatus(value any) (map[string]any, error) {
	m, ok := asMap(value)
	if !ok {
		s, _ := value.(string)
		return map[string]any{"": nullIfEmpty(s), "_updated_on": nil}, nil
	}
	val, _ := m["value"].(string)
	updatedOn, _ := m["updated_on"].(string)
	return map[string]any{"": nullIfEmpty(val), "_updated_on": nullIfEmpty(updatedOn)}, nil
}

func encodeAddress(value any) (map[string]any, error) {
	m, ok := asMap(value)
	if !ok {
		return map[string]any{"_text": nil, "_json": "{}"}, nil
	}
	text, _ := m["formatted"].(string)
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("codec: marshal address: %w", err)
	}
	return map[string]any{"_text": nullIfEmpty(text), "_json": string(raw)}, nil
}

func encodeFullName(value any) (map[string]any, error) {
	m, ok := asMap(value)
	if !ok {
		s, _ := value.(string)
		return map[string]any{"": nullIfEmpty(s), "_json": "{}"}, nil
	}
	first, _ := m["first_name"].(string)
	last, _ := m["last_name"].(string)
	display := first
	if last != "" {
		if display != "" {
			display += " "
		}
		display += last
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("codec: marshal full-name: %w", err)
	}
	return map[string]any{"": nullIfEmpty(display), "_json": string(raw)}, nil
}

func encodeRichDocument(value any) (map[string]any, error) {
	m, ok := asMap(value)
	if !ok {
		return map[string]any{"_preview": nil, "_json": "{}"}, nil
	}
	preview, _ := m["preview"].(string)
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("codec: marshal rich-document: %w", err)
	}
	return map[string]any{"_preview": nullIfEmpty(preview), "_json": string(raw)}, nil
}

func encodeChecklist(value any) (map[string]any, error) {
	items, _ := value.([]any)
	total := len(items)
	completed := 0
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		if done, _ := m["completed"].(bool); done {
			completed++
		}
	}
	raw, err := encodeJSONArray(value)
	if err != nil {
		return nil, err
	}
	return map[string]any{"_json": raw, "_total": total, "_completed": completed}, nil
}

func encodeVote(value any) (map[string]any, error) {
	m, ok := asMap(value)
	voters := value
	count := 0
	if ok {
		if v, ok := m["voters"]; ok {
			voters = v
		}
		if arr, ok := voters.([]any); ok {
			count = len(arr)
		}
	}
	raw, err := encodeJSONArray(voters)
	if err != nil {
		return nil, err
	}
	return map[string]any{"_count": count, "_json": raw}, nil
}

func encodeTimeTracking(value any) (map[string]any, error) {
	m, ok := asMap(value)
	var total float64
	if ok {
		total, _ = toFloat(m["total_seconds"])
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("codec: marshal time-tracking: %w", err)
	}
	return map[string]any{"_json": string(raw), "_total": total}, nil
}
