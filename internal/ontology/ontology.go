// Package ontology implements the read-only client for the graph knowledge
// store that backs the semantic authority check: does the verb exist in the
// domain ontology, is it authorized at the agent's maturity level, and which
// validators and regulations govern it.
package ontology

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/vigil-labs/vigil/internal/model"
)

// Authority is the outcome of the semantic check. RequiresValidation is the
// ontology's classification of the verb: governed verbs with an empty
// validator list are denied, informational verbs are not.
type Authority struct {
	Verdict            model.SemanticVerdict
	RequiresValidation bool
}

// Client is a read-only ontology client over a Neo4j session. The driver is
// shared across requests and safe for concurrent read queries. All queries
// are keyed lookups; the client never traverses the graph's cycles.
type Client struct {
	uri      string
	user     string
	password string
	logger   *slog.Logger

	mu     sync.RWMutex
	driver neo4j.DriverWithContext
}

// New connects to the graph store and verifies connectivity.
func New(ctx context.Context, uri, user, password string, logger *slog.Logger) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("ontology: create driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("ontology: verify connectivity: %w", err)
	}
	logger.Info("ontology connected", "uri", uri)
	return &Client{uri: uri, user: user, password: password, logger: logger, driver: driver}, nil
}

// Ping checks that the graph store answers queries. Used by the gate's
// cached health probe.
func (c *Client) Ping(ctx context.Context) error {
	c.mu.RLock()
	driver := c.driver
	c.mu.RUnlock()
	if driver == nil {
		return fmt.Errorf("ontology: driver closed")
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("ontology: ping: %w", err)
	}
	return nil
}

// Close shuts down the underlying driver.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.driver == nil {
		return nil
	}
	err := c.driver.Close(ctx)
	c.driver = nil
	return err
}

const authorityQuery = `
MATCH (a:Action {domain: $domain, verb: $verb})
OPTIONAL MATCH (a)-[:REQUIRES_MATURITY]->(m:MaturityLevel)
OPTIONAL MATCH (a)-[g:GOVERNED_BY]->(:Regulation)
RETURN coalesce(m.value, a.required_maturity, 1) AS required_maturity,
       coalesce(a.requires_validation, true) AS requires_validation,
       [p IN collect(g.parameters) WHERE p IS NOT NULL] AS governed_parameters`

// ValidateSemanticAuthority performs the semantic authority check for an
// action at the given maturity level.
//
// Decision logic:
//   - verb absent from the domain ontology: DENY, UNKNOWN_VERB.
//   - maturity below the action's required level: DENY, AMM_VIOLATION.
//   - otherwise ALLOW with the computed parameter coverage. Coverage below
//     the configured floor is not decided here; the aggregator downgrades
//     ALLOW to ESCALATE.
func (c *Client) ValidateSemanticAuthority(ctx context.Context, action model.ActionPrimitive, maturityLevel int) (Authority, error) {
	records, err := c.read(ctx, authorityQuery, map[string]any{
		"domain": action.Domain,
		"verb":   action.Verb,
	})
	if err != nil {
		return Authority{}, err
	}

	if len(records) == 0 {
		return Authority{
			Verdict: model.SemanticVerdict{
				Decision: model.DecisionDeny,
				Reason:   model.ReasonUnknownVerb,
			},
			RequiresValidation: true,
		}, nil
	}

	rec := records[0]
	required := intValue(rec, "required_maturity", model.MinMaturityLevel)
	requiresValidation := boolValue(rec, "requires_validation", true)
	governed := stringListsValue(rec, "governed_parameters")

	if maturityLevel < required {
		return Authority{
			Verdict: model.SemanticVerdict{
				Decision:      model.DecisionDeny,
				OntologyMatch: true,
				Reason:        fmt.Sprintf("AMM_VIOLATION: requires L%d", required),
			},
			RequiresValidation: requiresValidation,
		}, nil
	}

	coverage := parameterCoverage(action.Parameters, governed)

	return Authority{
		Verdict: model.SemanticVerdict{
			Decision:           model.DecisionAllow,
			OntologyMatch:      true,
			MaturityAuthorized: true,
			Coverage:           coverage,
			Reason:             model.ReasonSemanticOK,
		},
		RequiresValidation: requiresValidation,
	}, nil
}

const validatorsQuery = `
MATCH (a:Action {domain: $domain, verb: $verb})-[r:REQUIRES_VALIDATOR]->(v:Validator)
RETURN v.name AS name
ORDER BY coalesce(r.priority, 0), v.name`

// RequiredValidators returns the names of the validators the ontology binds
// to this (domain, verb), in deterministic order.
func (c *Client) RequiredValidators(ctx context.Context, action model.ActionPrimitive) ([]string, error) {
	records, err := c.read(ctx, validatorsQuery, map[string]any{
		"domain": action.Domain,
		"verb":   action.Verb,
	})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(records))
	for _, rec := range records {
		if v, ok := rec.Get("name"); ok {
			if s, ok := v.(string); ok {
				names = append(names, s)
			}
		}
	}
	return names, nil
}

// read runs a read query, reconnecting at most once on failure before the
// error propagates to the caller.
func (c *Client) read(ctx context.Context, query string, params map[string]any) ([]*neo4j.Record, error) {
	records, err := c.runRead(ctx, query, params)
	if err == nil {
		return records, nil
	}

	if rerr := c.reconnect(ctx); rerr != nil {
		return nil, fmt.Errorf("ontology: query failed and reconnect failed: %w", err)
	}
	records, err = c.runRead(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("ontology: query after reconnect: %w", err)
	}
	return records, nil
}

func (c *Client) runRead(ctx context.Context, query string, params map[string]any) ([]*neo4j.Record, error) {
	c.mu.RLock()
	driver := c.driver
	c.mu.RUnlock()
	if driver == nil {
		return nil, fmt.Errorf("ontology: driver closed")
	}

	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer func() { _ = session.Close(ctx) }()

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("ontology: run query: %w", err)
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("ontology: collect records: %w", err)
	}
	return records, nil
}

func (c *Client) reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.driver != nil {
		_ = c.driver.Close(ctx)
		c.driver = nil
	}
	driver, err := neo4j.NewDriverWithContext(c.uri, neo4j.BasicAuth(c.user, c.password, ""))
	if err != nil {
		return fmt.Errorf("ontology: reconnect: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return fmt.Errorf("ontology: reconnect verify: %w", err)
	}
	c.driver = driver
	c.logger.Warn("ontology reconnected", "uri", c.uri)
	return nil
}

// parameterCoverage computes the fraction of action parameters that appear
// in the union of the ontology's governed-parameter declarations. Actions
// with no parameters are fully covered by definition.
func parameterCoverage(params map[string]any, governed [][]string) float64 {
	if len(params) == 0 {
		return 1.0
	}
	known := make(map[string]bool)
	for _, list := range governed {
		for _, name := range list {
			known[name] = true
		}
	}
	covered := 0
	for name := range params {
		if known[name] {
			covered++
		}
	}
	return float64(covered) / float64(len(params))
}

func intValue(rec *neo4j.Record, key string, fallback int) int {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return fallback
	}
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	}
	return fallback
}

func boolValue(rec *neo4j.Record, key string, fallback bool) bool {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return fallback
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return fallback
}

func stringListsValue(rec *neo4j.Record, key string) [][]string {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return nil
	}
	outer, ok := v.([]any)
	if !ok {
		return nil
	}
	lists := make([][]string, 0, len(outer))
	for _, item := range outer {
		inner, ok := item.([]any)
		if !ok {
			continue
		}
		names := make([]string, 0, len(inner))
		for _, n := range inner {
			if s, ok := n.(string); ok {
				names = append(names, s)
			}
		}
		lists = append(lists, names)
	}
	return lists
}
