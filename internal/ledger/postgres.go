package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vigil-labs/vigil/internal/model"
)

// Postgres is the production ledger backend over a pgx pool, typically
// against TimescaleDB with audit_log as a hypertable.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// OpenPostgres creates the pool and verifies connectivity.
func OpenPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger: parse DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("ledger: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ledger: ping pool: %w", err)
	}

	return &Postgres{pool: pool, logger: logger}, nil
}

// RunMigrations executes unapplied SQL migration files from the provided
// filesystem in order, tracking applied files in schema_migrations so each
// runs at most once. Forward-only.
func (p *Postgres) RunMigrations(ctx context.Context, migrationsFS fs.FS) error {
	if _, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		return fmt.Errorf("ledger: create schema_migrations: %w", err)
	}

	applied, err := p.loadAppliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("ledger: load applied migrations: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, ".")
	if err != nil {
		return fmt.Errorf("ledger: read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		name := entry.Name()
		if applied[name] {
			p.logger.Debug("migration already applied, skipping", "file", name)
			continue
		}

		content, err := fs.ReadFile(migrationsFS, name)
		if err != nil {
			return fmt.Errorf("ledger: read migration %s: %w", name, err)
		}

		p.logger.Info("running migration", "file", name)
		if _, err := p.pool.Exec(ctx, string(content)); err != nil {
			return fmt.Errorf("ledger: execute migration %s: %w", name, err)
		}

		if _, err := p.pool.Exec(ctx,
			`INSERT INTO schema_migrations (version) VALUES ($1) ON CONFLICT DO NOTHING`, name,
		); err != nil {
			return fmt.Errorf("ledger: record migration %s: %w", name, err)
		}
	}

	return nil
}

func (p *Postgres) loadAppliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := p.pool.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

const auditColumns = `timestamp, trace_id, decision, reason, agent_id, maturity_level,
	 action_verb, action_resource, action_domain, action_parameters,
	 semantic_decision, semantic_coverage, semantic_reason, ontology_match, maturity_authorized,
	 validator_results, component_timings, total_latency_ms, certifiable, signature, key_version`

// Append inserts one verdict row. The insert is a single statement, so a
// failed write leaves no partial row behind.
func (p *Postgres) Append(ctx context.Context, v model.Verdict) error {
	row, err := encodeRow(v)
	if err != nil {
		return err
	}

	_, err = p.pool.Exec(ctx,
		`INSERT INTO audit_log (id, `+auditColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
		uuid.New(), row.timestamp, v.TraceID, v.Decision, v.Reason, v.AgentID, v.AgentMaturity,
		v.Action.Verb, v.Action.Resource, v.Action.Domain, row.parameters,
		v.Semantic.Decision, v.Semantic.Coverage, v.Semantic.Reason, v.Semantic.OntologyMatch, v.Semantic.MaturityAuthorized,
		row.validatorResults, row.timings, v.GovernanceLatencyMs, v.Certifiable, v.Signature, v.KeyVersion,
	)
	if err != nil {
		return fmt.Errorf("ledger: append verdict: %w", err)
	}
	return nil
}

// Recent returns the newest verdicts, newest first.
func (p *Postgres) Recent(ctx context.Context, limit int) ([]model.Verdict, error) {
	limit, err := validLimit(limit)
	if err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx,
		`SELECT `+auditColumns+` FROM audit_log ORDER BY timestamp DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: query recent: %w", err)
	}
	defer rows.Close()

	verdicts := make([]model.Verdict, 0, limit)
	for rows.Next() {
		var (
			v       model.Verdict
			params  []byte
			results []byte
			timings []byte
			emitted time.Time
			semDec  string
			gateDec string
		)
		if err := rows.Scan(
			&emitted, &v.TraceID, &gateDec, &v.Reason, &v.AgentID, &v.AgentMaturity,
			&v.Action.Verb, &v.Action.Resource, &v.Action.Domain, &params,
			&semDec, &v.Semantic.Coverage, &v.Semantic.Reason, &v.Semantic.OntologyMatch, &v.Semantic.MaturityAuthorized,
			&results, &timings, &v.GovernanceLatencyMs, &v.Certifiable, &v.Signature, &v.KeyVersion,
		); err != nil {
			return nil, fmt.Errorf("ledger: scan row: %w", err)
		}
		if err := decodeRow(&v, emitted, gateDec, semDec, params, results, timings); err != nil {
			return nil, err
		}
		verdicts = append(verdicts, v)
	}
	return verdicts, rows.Err()
}

// Summarize aggregates decision counts and latency over rows at or after
// since.
func (p *Postgres) Summarize(ctx context.Context, since time.Time) (Summary, error) {
	var (
		total, allowed, denied, escalated, certifiable int64
		avgMs, maxMs                                   float64
	)
	err := p.pool.QueryRow(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE decision = 'ALLOW'),
		       count(*) FILTER (WHERE decision = 'DENY'),
		       count(*) FILTER (WHERE decision = 'ESCALATE'),
		       count(*) FILTER (WHERE certifiable),
		       coalesce(avg(total_latency_ms), 0),
		       coalesce(max(total_latency_ms), 0)
		FROM audit_log WHERE timestamp >= $1`, since,
	).Scan(&total, &allowed, &denied, &escalated, &certifiable, &avgMs, &maxMs)
	if err != nil {
		return Summary{}, fmt.Errorf("ledger: summarize: %w", err)
	}
	return summaryFromCounts(since, total, allowed, denied, escalated, certifiable, avgMs, maxMs), nil
}

// Ping checks connectivity to the database.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (p *Postgres) Close(_ context.Context) error {
	p.pool.Close()
	return nil
}

// encodedRow holds the JSON-marshalled columns shared by both backends.
type encodedRow struct {
	timestamp        time.Time
	parameters       []byte
	validatorResults []byte
	timings          []byte
}

func encodeRow(v model.Verdict) (encodedRow, error) {
	params := v.Action.Parameters
	if params == nil {
		params = map[string]any{}
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return encodedRow{}, fmt.Errorf("ledger: marshal parameters: %w", err)
	}

	results := v.ValidatorResults
	if results == nil {
		results = []model.ValidatorVerdict{}
	}
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return encodedRow{}, fmt.Errorf("ledger: marshal validator results: %w", err)
	}

	timingsJSON, err := json.Marshal(v.ComponentTimings)
	if err != nil {
		return encodedRow{}, fmt.Errorf("ledger: marshal timings: %w", err)
	}

	ts := v.EmittedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return encodedRow{
		timestamp:        ts.UTC(),
		parameters:       paramsJSON,
		validatorResults: resultsJSON,
		timings:          timingsJSON,
	}, nil
}

func decodeRow(v *model.Verdict, emitted time.Time, gateDec, semDec string, params, results, timings []byte) error {
	v.EmittedAt = emitted.UTC()
	v.Decision = model.Decision(gateDec)
	v.Semantic.Decision = model.Decision(semDec)
	if len(params) > 0 {
		if err := json.Unmarshal(params, &v.Action.Parameters); err != nil {
			return fmt.Errorf("ledger: unmarshal parameters: %w", err)
		}
	}
	if len(results) > 0 {
		if err := json.Unmarshal(results, &v.ValidatorResults); err != nil {
			return fmt.Errorf("ledger: unmarshal validator results: %w", err)
		}
	}
	if len(timings) > 0 {
		if err := json.Unmarshal(timings, &v.ComponentTimings); err != nil {
			return fmt.Errorf("ledger: unmarshal timings: %w", err)
		}
	}
	return nil
}
