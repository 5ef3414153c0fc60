// Package ledger implements the append-only audit store for emitted
// verdicts. Two backends share one interface: a Postgres/TimescaleDB pool
// for production and an embedded SQLite file for development. Rows are
// written once and never mutated; there is deliberately no update or delete
// operation on the interface.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vigil-labs/vigil/internal/model"
)

// Ledger is the audit store contract the gate and the read endpoints
// depend on.
type Ledger interface {
	// Append writes one verdict row atomically.
	Append(ctx context.Context, v model.Verdict) error
	// Recent returns the newest verdicts, newest first.
	Recent(ctx context.Context, limit int) ([]model.Verdict, error)
	// Summarize aggregates decision counts and latency over rows at or
	// after since.
	Summarize(ctx context.Context, since time.Time) (Summary, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Summary is the aggregate view served by the metrics endpoint.
type Summary struct {
	Since           time.Time `json:"since"`
	Total           int64     `json:"total"`
	Allowed         int64     `json:"allowed"`
	Denied          int64     `json:"denied"`
	Escalated       int64     `json:"escalated"`
	AvgLatencyMs    float64   `json:"avg_latency_ms"`
	MaxLatencyMs    float64   `json:"max_latency_ms"`
	CertifiableRate float64   `json:"certifiable_rate"`
}

// Open connects to the backend the URL selects: "sqlite:<path>" for the
// embedded store, anything else is treated as a Postgres DSN.
func Open(ctx context.Context, url string, logger *slog.Logger) (Ledger, error) {
	if path, ok := strings.CutPrefix(url, "sqlite:"); ok {
		return OpenSQLite(ctx, path, logger)
	}
	return OpenPostgres(ctx, url, logger)
}

func summaryFromCounts(since time.Time, total, allowed, denied, escalated, certifiable int64, avgMs, maxMs float64) Summary {
	s := Summary{
		Since:        since,
		Total:        total,
		Allowed:      allowed,
		Denied:       denied,
		Escalated:    escalated,
		AvgLatencyMs: avgMs,
		MaxLatencyMs: maxMs,
	}
	if total > 0 {
		s.CertifiableRate = float64(certifiable) / float64(total)
	}
	return s
}

func validLimit(limit int) (int, error) {
	if limit <= 0 {
		return 0, fmt.Errorf("ledger: limit must be positive")
	}
	if limit > 1000 {
		limit = 1000
	}
	return limit, nil
}
