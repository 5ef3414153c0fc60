package vigil

import (
	"log/slog"

	"github.com/vigil-labs/vigil/internal/gate"
	"github.com/vigil-labs/vigil/internal/validator"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported, callers use the With* functions.
type resolvedOptions struct {
	port           int
	ledgerURL      string
	ontologyURL    string
	logger         *slog.Logger
	version        string
	ontology       gate.Ontology
	registrations  []registration
	skipMigrations bool
}

type registration struct {
	domain     string
	verb       string
	validators []validator.Validator
}

// WithPort overrides the TCP port from config (VIGIL_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithLedgerURL overrides the audit ledger connection string from config
// (LEDGER_URL env var). Accepts a Postgres DSN or "sqlite:<path>".
func WithLedgerURL(url string) Option {
	return func(o *resolvedOptions) { o.ledgerURL = url }
}

// WithOntologyURL overrides the ontology graph endpoint from config
// (ONTOLOGY_URL env var).
func WithOntologyURL(url string) Option {
	return func(o *resolvedOptions) { o.ontologyURL = url }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithOntology replaces the Neo4j-backed semantic authority with a custom
// implementation. Only the last call wins. When set, ONTOLOGY_URL is not
// dialed and the App never closes the provided implementation.
func WithOntology(o gate.Ontology) Option {
	return func(r *resolvedOptions) { r.ontology = o }
}

// WithValidators registers additional domain validators for a (domain, verb)
// pair. Multiple calls may be made; registrations are applied in order after
// the built-in validator set, and dispatch preserves that order.
func WithValidators(domain, verb string, vs ...validator.Validator) Option {
	return func(o *resolvedOptions) {
		o.registrations = append(o.registrations, registration{domain: domain, verb: verb, validators: vs})
	}
}

// WithoutMigrations skips the embedded ledger migrations at startup. Set this
// when the schema is managed externally. Has no effect on the sqlite backend,
// which always creates its own schema.
func WithoutMigrations() Option {
	return func(o *resolvedOptions) { o.skipMigrations = true }
}
