// Package model defines the wire-stable types exchanged between the gate,
// its collaborators, and the audit ledger: the action primitive, agent
// context, per-stage verdicts, and the final signed Verdict.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Decision is the outcome of an evaluation stage or of the whole gate.
type Decision string

const (
	DecisionAllow    Decision = "ALLOW"
	DecisionDeny     Decision = "DENY"
	DecisionEscalate Decision = "ESCALATE"
)

// Valid reports whether d is one of the three recognised decisions.
func (d Decision) Valid() bool {
	return d == DecisionAllow || d == DecisionDeny || d == DecisionEscalate
}

// Reason codes surfaced on DENY/ESCALATE verdicts. Callers see these as
// opaque strings; the set is enumerated here so tests and metrics can match
// on them without string literals scattered across packages.
const (
	ReasonValidatorUnhealthy  = "VALIDATOR_UNHEALTHY"
	ReasonSemanticTimeout     = "SEMANTIC_TIMEOUT"
	ReasonSemanticError       = "SEMANTIC_ERROR"
	ReasonNoValidators        = "NO_VALIDATORS"
	ReasonSignatureError      = "SIGNATURE_ERROR"
	ReasonLedgerError         = "LEDGER_ERROR"
	ReasonGateTimeout         = "GATE_TIMEOUT"
	ReasonGateInternalError   = "GATE_INTERNAL_ERROR"
	ReasonOverload            = "OVERLOAD"
	ReasonUnknownVerb         = "UNKNOWN_VERB"
	ReasonSemanticOK          = "SEMANTIC_OK"
	ReasonLowCoverage         = "LOW_SEMANTIC_COVERAGE"
	ReasonAllValidatorsPassed = "ALL_VALIDATORS_PASSED"
	ReasonInsufficientContext = "INSUFFICIENT_CONTEXT"
)

// Synthetic rule IDs recorded when a validator slot fails rather than rules.
const (
	RuleTimeout   = "TIMEOUT"
	RuleException = "EXCEPTION"
)

// Maturity level bounds of the agentic maturity model (L1..L5).
const (
	MinMaturityLevel = 1
	MaxMaturityLevel = 5
)

// ActionPrimitive is a structured agent intent. It is immutable once
// accepted by the gate: every pipeline stage receives it by value and no
// stage writes to Parameters.
type ActionPrimitive struct {
	Verb       string         `json:"verb"`
	Resource   string         `json:"resource"`
	Domain     string         `json:"domain"`
	Parameters map[string]any `json:"parameters"`
}

// Validate checks the structural constraints an upstream normalizer must
// have satisfied. The gate rejects malformed primitives before evaluation.
func (a ActionPrimitive) Validate() error {
	if a.Verb == "" {
		return fmt.Errorf("model: action verb is required")
	}
	if a.Verb != strings.ToLower(a.Verb) {
		return fmt.Errorf("model: action verb must be lowercase: %q", a.Verb)
	}
	if a.Domain == "" {
		return fmt.Errorf("model: action domain is required")
	}
	if a.Resource == "" {
		return fmt.Errorf("model: action resource is required")
	}
	return nil
}

// AgentContext identifies the agent proposing an action.
type AgentContext struct {
	AgentID        string    `json:"agent_id,omitempty"`
	MaturityLevel  int       `json:"maturity_level"`
	TraceID        string    `json:"trace_id"`
	SubmissionTime time.Time `json:"submission_time,omitzero"`
}

// Validate checks the maturity level range and trace ID presence.
func (c AgentContext) Validate() error {
	if c.MaturityLevel < MinMaturityLevel || c.MaturityLevel > MaxMaturityLevel {
		return fmt.Errorf("model: maturity level %d outside [%d,%d]",
			c.MaturityLevel, MinMaturityLevel, MaxMaturityLevel)
	}
	if c.TraceID == "" {
		return fmt.Errorf("model: trace_id is required")
	}
	return nil
}

// SemanticVerdict is the result of the ontology authority check.
// Coverage is the fraction of action parameters the ontology recognises as
// governed; 1.0 means the verb and every parameter have declared governance.
type SemanticVerdict struct {
	Decision           Decision `json:"decision"`
	OntologyMatch      bool     `json:"ontology_match"`
	MaturityAuthorized bool     `json:"maturity_authorized"`
	Coverage           float64  `json:"coverage"`
	Reason             string   `json:"reason"`
}

// ValidatorVerdict is one validator's result. Confidence is fixed at 1.0 by
// contract: validators are deterministic rule evaluators, not scorers.
type ValidatorVerdict struct {
	ValidatorName string   `json:"name"`
	Decision      Decision `json:"decision"`
	RuleID        string   `json:"rule_id"`
	Rationale     string   `json:"rationale"`
	LatencyMs     float64  `json:"latency_ms"`
	Confidence    float64  `json:"confidence"`
}

// ComponentTimings records the wall time each pipeline stage consumed, in
// milliseconds. Stages that did not run stay zero.
type ComponentTimings struct {
	HealthMs     float64 `json:"health"`
	SemanticMs   float64 `json:"semantic"`
	ValidatorsMs float64 `json:"validators"`
	SignMs       float64 `json:"sign"`
	PersistMs    float64 `json:"persist"`
}

// TotalMs is the governance latency: the sum of the executed stages' wall
// times. It excludes queueing and handler overhead outside the pipeline.
func (t ComponentTimings) TotalMs() float64 {
	return t.HealthMs + t.SemanticMs + t.ValidatorsMs + t.SignMs + t.PersistMs
}

// Verdict is the final, signed output of the gate. Once emitted it is
// immutable: mutating any signed field breaks signature verification.
type Verdict struct {
	TraceID             string             `json:"trace_id"`
	Decision            Decision           `json:"decision"`
	Reason              string             `json:"reason"`
	Action              ActionPrimitive    `json:"action"`
	AgentID             string             `json:"agent_id,omitempty"`
	AgentMaturity       int                `json:"agent_maturity"`
	Semantic            SemanticVerdict    `json:"semantic"`
	ValidatorResults    []ValidatorVerdict `json:"validator_results"`
	GovernanceLatencyMs float64            `json:"governance_latency_ms"`
	ComponentTimings    ComponentTimings   `json:"component_timings"`
	Certifiable         bool               `json:"certifiable"`
	Signature           string             `json:"signature,omitempty"`
	KeyVersion          string             `json:"key_version,omitempty"`
	EmittedAt           time.Time          `json:"emitted_at"`
}
