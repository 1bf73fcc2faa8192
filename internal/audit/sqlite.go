package audit

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // register the sqlite driver
)

// tsLayout is fixed width so string comparison on the timestamp column
// (retention's `timestamp < ?`) matches chronological order; RFC3339Nano
// drops trailing fractional zeros and breaks that property.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

const auditDDL = `
CREATE TABLE IF NOT EXISTS audit_events (
	event_id        TEXT PRIMARY KEY,
	correlation_id  TEXT NOT NULL,
	component       TEXT NOT NULL,
	action_type     TEXT NOT NULL,
	risk_level      TEXT NOT NULL,
	inputs_summary  TEXT NOT NULL,
	outputs_summary TEXT NOT NULL,
	policy_decision TEXT NOT NULL,
	rationale       TEXT NOT NULL,
	timestamp       TEXT NOT NULL,
	seq             INTEGER NOT NULL,
	prev_hash       TEXT NOT NULL,
	hash            TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_correlation ON audit_events(correlation_id, seq);
`

// SQLiteLog is the durable Log backed by an embedded SQLite database.
// A single process-wide mutex serializes appends so sequence numbers and
// chain hashes are assigned atomically.
type SQLiteLog struct {
	db     *sql.DB
	mu     sync.Mutex
	mirror EventWriter
}

// SetMirror attaches an async observer that receives each sealed event
// after a successful append. Must be called before the log is shared.
func (l *SQLiteLog) SetMirror(w EventWriter) { l.mirror = w }

// OpenSQLiteLog opens (creating if needed) the audit database at path.
// Use ":memory:" for an ephemeral database.
func OpenSQLiteLog(path string) (*SQLiteLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if _, err := db.Exec(auditDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init audit db: %w", err)
	}
	return &SQLiteLog{db: db}, nil
}

// Close releases the underlying database handle.
func (l *SQLiteLog) Close() error { return l.db.Close() }

// Append implements Log.
func (l *SQLiteLog) Append(ctx context.Context, e Event) (string, error) {
	if err := e.Validate(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrAppend, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAppend, err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM audit_events WHERE event_id = ?`, e.EventID,
	).Scan(&exists)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAppend, err)
	}
	if exists > 0 {
		return "", fmt.Errorf("%w: %s", ErrDuplicateEvent, e.EventID)
	}

	var lastSeq uint64
	var lastHash string
	err = tx.QueryRowContext(ctx, `
		SELECT seq, hash FROM audit_events
		WHERE correlation_id = ? ORDER BY seq DESC LIMIT 1`, e.CorrelationID,
	).Scan(&lastSeq, &lastHash)
	if err != nil && err != sql.ErrNoRows {
		return "", fmt.Errorf("%w: %w", ErrAppend, err)
	}

	e = redacted(e)
	// Normalize to UTC before sealing so the hash survives the storage
	// round-trip, which persists timestamps as UTC strings.
	e.Timestamp = e.Timestamp.UTC()
	e.Seq = lastSeq + 1
	if err := seal(&e, lastHash); err != nil {
		return "", fmt.Errorf("%w: %w", ErrAppend, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_events
			(event_id, correlation_id, component, action_type, risk_level,
			 inputs_summary, outputs_summary, policy_decision, rationale,
			 timestamp, seq, prev_hash, hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.EventID, e.CorrelationID, e.Component, e.ActionType, e.RiskLevel,
		e.InputsSummary, e.OutputsSummary, e.PolicyDecision, e.Rationale,
		e.Timestamp.UTC().Format(tsLayout), e.Seq, e.PrevHash, e.Hash,
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAppend, err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrAppend, err)
	}
	if l.mirror != nil {
		l.mirror.Write(e)
	}
	return e.EventID, nil
}

// Read implements Log.
func (l *SQLiteLog) Read(ctx context.Context, correlationID string) ([]Event, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT event_id, correlation_id, component, action_type, risk_level,
		       inputs_summary, outputs_summary, policy_decision, rationale,
		       timestamp, seq, prev_hash, hash
		FROM audit_events WHERE correlation_id = ? ORDER BY seq`, correlationID)
	if err != nil {
		return nil, fmt.Errorf("read audit events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var ts string
		if err := rows.Scan(
			&e.EventID, &e.CorrelationID, &e.Component, &e.ActionType, &e.RiskLevel,
			&e.InputsSummary, &e.OutputsSummary, &e.PolicyDecision, &e.Rationale,
			&ts, &e.Seq, &e.PrevHash, &e.Hash,
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse audit timestamp: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ExpireBefore implements Retention. Reachable only from the privileged
// admin surface, never from request handling.
func (l *SQLiteLog) ExpireBefore(ctx context.Context, cutoff time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	res, err := l.db.ExecContext(ctx,
		`DELETE FROM audit_events WHERE timestamp < ?`,
		cutoff.UTC().Format(tsLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("expire audit events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire audit events: %w", err)
	}
	return int(n), nil
}
