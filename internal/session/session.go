// Package session implements the session-id generation and per-session
// API usage logging described in §6: a monotonic human-readable session
// id stamped onto every upstream API-call log row, plus the persisted
// call log and summary tables that back the usage-report tool operation.
package session

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/smartsuite/cachebridge/internal/engineerr"
	"github.com/smartsuite/cachebridge/internal/localdb"
	"github.com/smartsuite/cachebridge/internal/model"
)

// base36Alphabet is the digit set the random suffix of a session id is
// drawn from (§6: "YYYYMMDD_HHMMSS_{base36-random}").
const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// randomSuffixLen is long enough that two processes starting within the
// same second essentially never collide.
const randomSuffixLen = 8

// NewID generates a session id of the shape
// "YYYYMMDD_HHMMSS_{base36-random}", stamped at process start and
// attached to every API-call log row for the life of the process.
func NewID(now time.Time) (string, error) {
	suffix, err := randomBase36(randomSuffixLen)
	if err != nil {
		return "", fmt.Errorf("session: generate id: %w", err)
	}
	return fmt.Sprintf("%s_%s", now.UTC().Format("20060102_150405"), suffix), nil
}

func randomBase36(n int) (string, error) {
	buf := make([]byte, n)
	max := big.NewInt(int64(len(base36Alphabet)))
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = base36Alphabet[idx.Int64()]
	}
	return string(buf), nil
}

// Logger persists api_call_log rows and maintains the api_stats_summary
// rollup (§6 "Persistent store layout").
type Logger struct {
	db        *localdb.DB
	sessionID string
}

func NewLogger(db *localdb.DB, sessionID string) *Logger {
	return &Logger{db: db, sessionID: sessionID}
}

// Init creates the two bookkeeping tables if absent.
func (l *Logger) Init(ctx context.Context) error {
	if _, err := l.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS api_call_log (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			user_hash   TEXT NOT NULL,
			session_id  TEXT NOT NULL,
			method      TEXT NOT NULL,
			endpoint    TEXT NOT NULL,
			solution_id TEXT,
			table_id    TEXT,
			timestamp   TEXT NOT NULL
		)`); err != nil {
		return engineerr.CacheInternalf(err, "session: create api_call_log")
	}
	if _, err := l.db.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS api_call_log_user_idx ON api_call_log(user_hash)`); err != nil {
		return engineerr.CacheInternalf(err, "session: index api_call_log")
	}
	if _, err := l.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS api_stats_summary (
			user_hash   TEXT PRIMARY KEY,
			total_calls INTEGER NOT NULL DEFAULT 0,
			first_call  TEXT NOT NULL,
			last_call   TEXT NOT NULL
		)`); err != nil {
		return engineerr.CacheInternalf(err, "session: create api_stats_summary")
	}
	return nil
}

// LogCall records one upstream API call. Per §7's "stat writes wrap
// exceptions and swallow them" rule, a failure here is silently dropped
// (not logged) rather than propagated:
// losing a usage-accounting row must never fail the tool call it
// describes.
func (l *Logger) LogCall(ctx context.Context, userHash, method, endpoint, solutionID, tableID string) {
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := l.db.Exec(ctx, `
		INSERT INTO api_call_log (user_hash, session_id, method, endpoint, solution_id, table_id, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		userHash, l.sessionID, method, endpoint, nullIfEmpty(solutionID), nullIfEmpty(tableID), now); err != nil {
		return
	}
	_, _ = l.db.Exec(ctx, `
		INSERT INTO api_stats_summary (user_hash, total_calls, first_call, last_call)
		VALUES (?, 1, ?, ?)
		ON CONFLICT(user_hash) DO UPDATE SET
			total_calls = total_calls + 1,
			last_call = excluded.last_call`,
		userHash, now, now)
}

// Report builds the §4.9/§6 usage report for userHash: totals, the
// current session id, and a per-endpoint breakdown drawn from the raw
// call log (the summary table only tracks the aggregate total, not the
// breakdown).
func (l *Logger) Report(ctx context.Context, userHash string) (model.UsageReport, error) {
	rep := model.UsageReport{SessionID: l.sessionID, ByEndpoint: map[string]int{}}

	row := l.db.QueryRow(ctx, `
		SELECT total_calls, first_call, last_call FROM api_stats_summary WHERE user_hash = ?`, userHash)
	if err := row.Scan(&rep.TotalCalls, &rep.FirstCall, &rep.LastCall); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return rep, engineerr.CacheInternalf(err, "session: report summary for %q", userHash)
		}
	}

	rows, err := l.db.Query(ctx, `
		SELECT endpoint, count(*) FROM api_call_log WHERE user_hash = ? GROUP BY endpoint`, userHash)
	if err != nil {
		return rep, engineerr.CacheInternalf(err, "session: report breakdown for %q", userHash)
	}
	defer rows.Close()
	for rows.Next() {
		var endpoint string
		var n int
		if err := rows.Scan(&endpoint, &n); err != nil {
			return rep, engineerr.CacheInternalf(err, "session: scan breakdown row")
		}
		rep.ByEndpoint[endpoint] = n
	}
	return rep, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
