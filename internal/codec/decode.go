package codec

import (
	"encoding/json"

	"github.com/smartsuite/cachebridge/internal/model"
)

// Decode reconstructs the upstream display shape of a field from its
// stored column values, per §4.2's reconstruction rules. raw is keyed by
// the same Suffix values Columns(f.Type) reports, mirroring Encode's
// convention. Rich-document fields return the full stored JSON object;
// projecting only the HTML component is the Response Shaper's job (§4.9),
// not the codec's.
func Decode(t model.FieldType, raw map[string]any) (any, error) {
	switch t {
	case model.FieldFirstCreated, model.FieldLastUpdated:
		return decodeUserStamp(raw)
	case model.FieldDeletedDate:
		return decodeUserStamp(raw)
	case model.FieldDate:
		return decodeDateEnvelope(raw)
	case model.FieldDateRange:
		return decodeDateRange(raw)
	case model.FieldDueDate:
		return decodeDueDate(raw)
	case model.FieldStatus:
		return decodeStatus(raw)
	case model.FieldAddress, model.FieldFullName, model.FieldRichDocument, model.FieldTimeTracking:
		return decodeJSONObject(raw["_json"])
	case model.FieldChecklist:
		return decodeJSONArray(raw["_json"])
	case model.FieldVote:
		return decodeVote(raw)
	case model.FieldNumber, model.FieldCurrency, model.FieldPercent, model.FieldDuration:
		return raw[""], nil
	case model.FieldYesNo:
		return asBool(raw[""]), nil
	case model.FieldSingleSelect:
		return asStringOrNil(raw[""]), nil
	default:
		if model.IsJSONArrayField(t) {
			return decodeJSONArray(raw[""])
		}
		return asStringOrNil(raw[""]), nil
	}
}

func decodeUserStamp(raw map[string]any) (any, error) {
	on, by := raw["_on"], raw["_by"]
	if on == nil && by == nil {
		return nil, nil
	}
	return map[string]any{"date": asString(on), "by": asString(by)}, nil
}

func decodeDateEnvelope(raw map[string]any) (any, error) {
	date := asStringOrNil(raw[""])
	if date == nil {
		return nil, nil
	}
	return map[string]any{"date": date, "include_time": asBool(raw["_include_time"])}, nil
}

func decodeDateRange(raw map[string]any) (any, error) {
	from := decodeEnvelopeFields(raw["_from"], raw["_from_include_time"])
	to := decodeEnvelopeFields(raw["_to"], raw["_to_include_time"])
	if from == nil && to == nil {
		return nil, nil
	}
	return map[string]any{"from_date": from, "to_date": to}, nil
}

func decodeDueDate(raw map[string]any) (any, error) {
	rangeVal, _ := decodeDateRange(raw)
	m, ok := rangeVal.(map[string]any)
	if !ok {
		m = map[string]any{"from_date": nil, "to_date": nil}
	}
	m["is_overdue"] = asBool(raw["_is_overdue"])
	m["is_completed"] = asBool(raw["_is_completed"])
	return m, nil
}

func decodeEnvelopeFields(date, includeTime any) any {
	d := asStringOrNil(date)
	if d == nil {
		return nil
	}
	return map[string]any{"date": d, "include_time": asBool(includeTime)}
}

func decodeStatus(raw map[string]any) (any, error) {
	val := asStringOrNil(raw[""])
	if val == nil {
		return nil, nil
	}
	return map[string]any{"value": val, "updated_on": asStringOrNil(raw["_updated_on"])}, nil
}

func decodeVote(raw map[string]any) (any, error) {
	voters, err := decodeJSONArray(raw["_json"])
	if err != nil {
		return nil, err
	}
	return map[string]any{"voters": voters, "count": raw["_count"]}, nil
}

func decodeJSONObject(v any) (any, error) {
	s, ok := v.(string)
	if !ok || s == "" {
		return map[string]any{}, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeJSONArray(v any) (any, error) {
	s, ok := v.(string)
	if !ok || s == "" {
		return []any{}, nil
	}
	var out []any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func asString(v any) any {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return s
}

func asStringOrNil(v any) any {
	s, ok := v.(string)
	if !ok || s == "" {
		return nil
	}
	return s
}

func asBool(v any) bool {
	switch n := v.(type) {
	case int64:
		return n != 0
	case int:
		return n != 0
	case bool:
		return n
	default:
		return false
	}
}
