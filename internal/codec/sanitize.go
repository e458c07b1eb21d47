package codec

import (
	"strings"
	"unicode"
)

// reservedWords are SQL keywords that would collide with a bare column or
// table name derived from an upstream label; §4.1 requires guarding
// against them.
var reservedWords = map[string]bool{
	"select": true, "from": true, "where": true, "table": true, "order": true,
	"group": true, "index": true, "key": true, "primary": true, "default": true,
	"column": true, "values": true, "insert": true, "update": true, "delete": true,
	"and": true, "or": true, "not": true, "null": true, "id": true,
}

// SanitizeIdent converts an arbitrary upstream label/id into a safe SQL
// identifier: [A-Za-z0-9_], lower-cased, digit-prefix guarded, reserved
// word guarded (§4.1). An empty result falls back to "col"/"tbl" by
// caller-supplied fallback.
func SanitizeIdent(s, fallback string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(unicode.ToLower(r))
		case r == '_':
			b.WriteRune('_')
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "_")
	for strings.Contains(out, "__") {
		out = strings.ReplaceAll(out, "__", "_")
	}
	if out == "" {
		out = fallback
	}
	if len(out) > 0 && out[0] >= '0' && out[0] <= '9' {
		out = "t_" + out
	}
	if reservedWords[out] {
		out = out + "_col"
	}
	return out
}

// Dedupe appends _2, _3, ... to name if it already appears in seen,
// recording the (possibly renamed) result in seen and returning it. This
// implements §4.1's "deduplicate duplicate column names" rule.
func Dedupe(name string, seen map[string]bool) string {
	if !seen[name] {
		seen[name] = true
		return name
	}
	for n := 2; ; n++ {
		candidate := name + "_" + itoa(n)
		if !seen[candidate] {
			seen[candidate] = true
			return candidate
		}
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
