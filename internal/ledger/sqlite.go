package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/vigil-labs/vigil/internal/model"
)

// SQLite is the embedded ledger backend for development and tests. Pure-Go
// driver, no cgo. The schema mirrors the Postgres one with JSON stored as
// TEXT and timestamps as RFC 3339 strings.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
}

// Fixed-width timestamp layout so lexicographic ORDER BY matches
// chronological order. RFC3339Nano trims trailing zeros and would not.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS audit_log (
	timestamp           TEXT NOT NULL,
	id                  TEXT NOT NULL,
	trace_id            TEXT NOT NULL,
	decision            TEXT NOT NULL CHECK (decision IN ('ALLOW', 'DENY', 'ESCALATE')),
	reason              TEXT NOT NULL,
	agent_id            TEXT NOT NULL DEFAULT '',
	maturity_level      INTEGER NOT NULL,
	action_verb         TEXT NOT NULL DEFAULT '',
	action_resource     TEXT NOT NULL DEFAULT '',
	action_domain       TEXT NOT NULL DEFAULT '',
	action_parameters   TEXT NOT NULL DEFAULT '{}',
	semantic_decision   TEXT NOT NULL DEFAULT '',
	semantic_coverage   REAL NOT NULL DEFAULT 0,
	semantic_reason     TEXT NOT NULL DEFAULT '',
	ontology_match      INTEGER NOT NULL DEFAULT 0,
	maturity_authorized INTEGER NOT NULL DEFAULT 0,
	validator_results   TEXT NOT NULL DEFAULT '[]',
	component_timings   TEXT NOT NULL DEFAULT '{}',
	total_latency_ms    REAL NOT NULL CHECK (total_latency_ms >= 0),
	certifiable         INTEGER NOT NULL,
	signature           TEXT NOT NULL DEFAULT '',
	key_version         TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (timestamp, id)
);
CREATE INDEX IF NOT EXISTS idx_audit_log_trace_id ON audit_log (trace_id);
`

// OpenSQLite opens (or creates) the database file and applies the schema.
// Use ":memory:" for an ephemeral store.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ledger: open sqlite: %w", err)
	}
	// The modernc driver is single-writer; serialize access through one
	// connection to avoid SQLITE_BUSY under concurrent appends.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ledger: apply sqlite schema: %w", err)
	}
	logger.Info("sqlite ledger opened", "path", path)
	return &SQLite{db: db, logger: logger}, nil
}

// Append inserts one verdict row.
func (s *SQLite) Append(ctx context.Context, v model.Verdict) error {
	row, err := encodeRow(v)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, timestamp, trace_id, decision, reason, agent_id, maturity_level,
		 action_verb, action_resource, action_domain, action_parameters,
		 semantic_decision, semantic_coverage, semantic_reason, ontology_match, maturity_authorized,
		 validator_results, component_timings, total_latency_ms, certifiable, signature, key_version)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), row.timestamp.Format(sqliteTimeLayout), v.TraceID, string(v.Decision), v.Reason,
		v.AgentID, v.AgentMaturity,
		v.Action.Verb, v.Action.Resource, v.Action.Domain, string(row.parameters),
		string(v.Semantic.Decision), v.Semantic.Coverage, v.Semantic.Reason,
		boolInt(v.Semantic.OntologyMatch), boolInt(v.Semantic.MaturityAuthorized),
		string(row.validatorResults), string(row.timings), v.GovernanceLatencyMs,
		boolInt(v.Certifiable), v.Signature, v.KeyVersion,
	)
	if err != nil {
		return fmt.Errorf("ledger: append verdict: %w", err)
	}
	return nil
}

// Recent returns the newest verdicts, newest first.
func (s *SQLite) Recent(ctx context.Context, limit int) ([]model.Verdict, error) {
	limit, err := validLimit(limit)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT timestamp, trace_id, decision, reason, agent_id, maturity_level,
		 action_verb, action_resource, action_domain, action_parameters,
		 semantic_decision, semantic_coverage, semantic_reason, ontology_match, maturity_authorized,
		 validator_results, component_timings, total_latency_ms, certifiable, signature, key_version
		 FROM audit_log ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: query recent: %w", err)
	}
	defer func() { _ = rows.Close() }()

	verdicts := make([]model.Verdict, 0, limit)
	for rows.Next() {
		var (
			v           model.Verdict
			ts          string
			gateDec     string
			semDec      string
			params      string
			results     string
			timings     string
			ontoMatch   int
			matAuth     int
			certifiable int
		)
		if err := rows.Scan(
			&ts, &v.TraceID, &gateDec, &v.Reason, &v.AgentID, &v.AgentMaturity,
			&v.Action.Verb, &v.Action.Resource, &v.Action.Domain, &params,
			&semDec, &v.Semantic.Coverage, &v.Semantic.Reason, &ontoMatch, &matAuth,
			&results, &timings, &v.GovernanceLatencyMs, &certifiable, &v.Signature, &v.KeyVersion,
		); err != nil {
			return nil, fmt.Errorf("ledger: scan row: %w", err)
		}
		emitted, err := time.Parse(sqliteTimeLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("ledger: parse timestamp: %w", err)
		}
		if err := decodeRow(&v, emitted, gateDec, semDec, []byte(params), []byte(results), []byte(timings)); err != nil {
			return nil, err
		}
		v.Semantic.OntologyMatch = ontoMatch != 0
		v.Semantic.MaturityAuthorized = matAuth != 0
		v.Certifiable = certifiable != 0
		verdicts = append(verdicts, v)
	}
	return verdicts, rows.Err()
}

// Summarize aggregates decision counts and latency over rows at or after
// since.
func (s *SQLite) Summarize(ctx context.Context, since time.Time) (Summary, error) {
	var (
		total, allowed, denied, escalated, certifiable int64
		avgMs, maxMs                                   float64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*),
		       coalesce(sum(decision = 'ALLOW'), 0),
		       coalesce(sum(decision = 'DENY'), 0),
		       coalesce(sum(decision = 'ESCALATE'), 0),
		       coalesce(sum(certifiable), 0),
		       coalesce(avg(total_latency_ms), 0),
		       coalesce(max(total_latency_ms), 0)
		FROM audit_log WHERE timestamp >= ?`, since.UTC().Format(sqliteTimeLayout),
	).Scan(&total, &allowed, &denied, &escalated, &certifiable, &avgMs, &maxMs)
	if err != nil {
		return Summary{}, fmt.Errorf("ledger: summarize: %w", err)
	}
	return summaryFromCounts(since, total, allowed, denied, escalated, certifiable, avgMs, maxMs), nil
}

// Ping checks the database answers queries.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close shuts down the database handle.
func (s *SQLite) Close(_ context.Context) error {
	return s.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
