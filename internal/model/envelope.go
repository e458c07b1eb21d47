package model

import "time"

// MutationEnvelope is the minimal response shape mutation operations
// return by default (§4.9); full record data is only attached when the
// caller explicitly requests it.
type MutationEnvelope struct {
	Success   bool   `json:"success"`
	ID        string `json:"id,omitempty"`
	Title     string `json:"title,omitempty"`
	Operation string `json:"operation"`
	Timestamp string `json:"timestamp"`
	Cached    bool   `json:"cached"`
	Error     string `json:"error,omitempty"`
	Message   string `json:"message,omitempty"`
}

// NewMutationEnvelope stamps a successful mutation envelope with the
// current time in ISO 8601 UTC, matching the TEXT timestamp convention in
// §6.
func NewMutationEnvelope(op, id, title string, cached bool) MutationEnvelope {
	return MutationEnvelope{
		Success:   true,
		ID:        id,
		Title:     title,
		Operation: op,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Cached:    cached,
	}
}

// ErrorEnvelope is the structured error shape reads and validation
// failures surface (§7).
type ErrorEnvelope struct {
	Status    string `json:"status"`
	ErrorKind string `json:"error"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// NewErrorEnvelope stamps a structured error envelope.
func NewErrorEnvelope(kind, message string) ErrorEnvelope {
	return ErrorEnvelope{
		Status:    "error",
		ErrorKind: kind,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// ListEnvelope is the response shape for list operations (§4.9): always
// carries total_count and the returned count, plus an optional compact
// per-field value distribution when the caller asked for summary mode.
type ListEnvelope struct {
	Records      []Record                  `json:"records,omitempty"`
	Compact      *CompactTable             `json:"compact,omitempty"`
	Count        int                       `json:"count"`
	TotalCount   int                       `json:"total_count"`
	Distribution map[string]map[string]int `json:"distribution,omitempty"`
}

// CompactTable is the token-minimising tabular encoding: one header row of
// field slugs and one row per record (§4.9 "Compact tabular encoding").
type CompactTable struct {
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
}

// UsageReport is the read side of the API usage logging in §6: totals,
// per-endpoint breakdown, and session bounds.
type UsageReport struct {
	SessionID   string         `json:"session_id,omitempty"`
	TotalCalls  int64          `json:"total_calls"`
	ByEndpoint  map[string]int `json:"by_endpoint"`
	FirstCall   string         `json:"first_call,omitempty"`
	LastCall    string         `json:"last_call,omitempty"`
}
