package session

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/smartsuite/cachebridge/internal/localdb"
)

var idPattern = regexp.MustCompile(`^\d{8}_\d{6}_[0-9a-z]{8}$`)

func TestNewIDShape(t *testing.T) {
	id, err := NewID(time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	if !idPattern.MatchString(id) {
		t.Fatalf("id %q does not match expected shape", id)
	}
}

func TestNewIDIsRandomized(t *testing.T) {
	now := time.Now()
	a, _ := NewID(now)
	b, _ := NewID(now)
	if a == b {
		t.Fatalf("expected distinct ids, got %q twice", a)
	}
}

func newTestLogger(t *testing.T) (*Logger, context.Context) {
	t.Helper()
	db, err := localdb.Open(filepath.Join(t.TempDir(), "cache.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	l := NewLogger(db, "20260731_120000_abc12345")
	ctx := context.Background()
	if err := l.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	return l, ctx
}

func TestLogCallAccumulatesSummary(t *testing.T) {
	l, ctx := newTestLogger(t)
	l.LogCall(ctx, "user1", "GET", "/records", "sol1", "tbl1")
	l.LogCall(ctx, "user1", "GET", "/records", "sol1", "tbl1")
	l.LogCall(ctx, "user1", "POST", "/records", "sol1", "tbl1")

	rep, err := l.Report(ctx, "user1")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if rep.TotalCalls != 3 {
		t.Fatalf("expected 3 total calls, got %d", rep.TotalCalls)
	}
	if rep.ByEndpoint["/records"] != 3 {
		t.Fatalf("expected breakdown of 3 for /records, got %#v", rep.ByEndpoint)
	}
	if rep.SessionID != "20260731_120000_abc12345" {
		t.Fatalf("expected session id carried through, got %q", rep.SessionID)
	}
}

func TestReportUnknownUserIsEmptyNotError(t *testing.T) {
	l, ctx := newTestLogger(t)
	rep, err := l.Report(ctx, "nobody")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if rep.TotalCalls != 0 {
		t.Fatalf("expected zero calls for unknown user, got %d", rep.TotalCalls)
	}
}
