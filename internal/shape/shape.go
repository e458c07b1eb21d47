// Package shape implements the Response Shaper (§4.9): field projection,
// rich-document HTML extraction, and the two output encodings (compact
// tabular vs JSON) list operations choose between. It never touches the
// local store or upstream — it operates purely on already-reconstructed
// model.Record values, which keeps it trivially unit-testable.
package shape

import (
	"fmt"
	"sort"

	"github.com/smartsuite/cachebridge/internal/model"
)

// richDocumentKeys is the shape-detection set §4.9 describes: a stored
// JSON value is treated as a rich-document payload (and reduced to just
// its HTML) only when it carries all of these keys, so a field that
// merely happens to have a "data" key isn't mistaken for one.
var richDocumentKeys = []string{"data", "html", "preview"}

// Project keeps only the caller's requested fields (plus id/title, always
// present) from rec, and reduces any rich-document-shaped field value to
// its HTML component on the way out (§4.9). A nil/empty fields set means
// "no projection" — every field is kept.
func Project(rec model.Record, fields []string) model.Record {
	out := model.Record{ID: rec.ID, Title: rec.Title, Fields: map[string]any{}}
	want := fieldSet(fields)
	for slug, val := range rec.Fields {
		if len(want) > 0 && !want[slug] {
			continue
		}
		out.Fields[slug] = extractRichDocumentHTML(val)
	}
	return out
}

func fieldSet(fields []string) map[string]bool {
	if len(fields) == 0 {
		return nil
	}
	m := make(map[string]bool, len(fields))
	for _, f := range fields {
		m[f] = true
	}
	return m
}

// extractRichDocumentHTML reduces a rich-document field's full stored
// object down to just its "html" component for the wire (§4.2 "the shaper
// extracts only the HTML component on output paths"). Any value that
// isn't shaped like a rich document (doesn't carry every key in
// richDocumentKeys) passes through unchanged.
func extractRichDocumentHTML(val any) any {
	m, ok := val.(map[string]any)
	if !ok {
		return val
	}
	for _, k := range richDocumentKeys {
		if _, ok := m[k]; !ok {
			return val
		}
	}
	html, _ := m["html"].(string)
	return html
}

// Compact renders records as the token-minimising tabular encoding
// (§4.9): one header row of "id"/"title" followed by field slugs (in the
// caller's order when fields is non-empty, otherwise every slug seen in
// recs in sorted order so output is deterministic across calls), and one
// row per record with every value stringified.
func Compact(recs []model.Record, fields []string) *model.CompactTable {
	header := compactHeader(recs, fields)
	rows := make([][]string, 0, len(recs))
	for _, rec := range recs {
		row := make([]string, len(header))
		for i, col := range header {
			row[i] = stringify(cellValue(rec, col))
		}
		rows = append(rows, row)
	}
	return &model.CompactTable{Header: header, Rows: rows}
}

func compactHeader(recs []model.Record, fields []string) []string {
	if len(fields) > 0 {
		header := make([]string, 0, len(fields)+2)
		header = append(header, "id", "title")
		header = append(header, fields...)
		return header
	}
	seen := map[string]bool{}
	var slugs []string
	for _, rec := range recs {
		for slug := range rec.Fields {
			if !seen[slug] {
				seen[slug] = true
				slugs = append(slugs, slug)
			}
		}
	}
	sort.Strings(slugs)
	header := make([]string, 0, len(slugs)+2)
	header = append(header, "id", "title")
	header = append(header, slugs...)
	return header
}

func cellValue(rec model.Record, col string) any {
	switch col {
	case "id":
		return rec.ID
	case "title":
		return rec.Title
	default:
		return rec.Fields[col]
	}
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		if x {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprint(x)
	}
}

// ListResult bundles the inputs BuildListEnvelope needs: the fully
// reconstructed+projected records for this page, the total match count
// ignoring limit/offset (§4.9 "envelopes always include total_count"),
// and the caller's output-shape choices.
type ListResult struct {
	Records    []model.Record
	TotalCount int
	Fields     []string
	Compact    bool
	Summary    bool
}

// BuildListEnvelope assembles the final §4.9 list envelope: JSON records
// or a compact table depending on r.Compact, always with count/total_count,
// plus a per-field value distribution when r.Summary is set.
func BuildListEnvelope(r ListResult) model.ListEnvelope {
	env := model.ListEnvelope{
		Count:      len(r.Records),
		TotalCount: r.TotalCount,
	}
	if r.Compact {
		env.Compact = Compact(r.Records, r.Fields)
	} else {
		env.Records = r.Records
	}
	if r.Summary {
		env.Distribution = ValueDistribution(r.Records)
	}
	return env
}

// ValueDistribution computes, per field slug, a count of how many records
// hold each distinct stringified value — the "compact per-field value
// distribution" §4.9 describes for summary-only mode. Compound field
// values (maps, slices) are stringified via fmt.Sprint rather than
// decomposed further; summary mode is meant as a cheap shape overview,
// not a full aggregation engine.
func ValueDistribution(recs []model.Record) map[string]map[string]int {
	dist := map[string]map[string]int{}
	for _, rec := range recs {
		for slug, val := range rec.Fields {
			if dist[slug] == nil {
				dist[slug] = map[string]int{}
			}
			dist[slug][stringify(val)]++
		}
	}
	return dist
}
