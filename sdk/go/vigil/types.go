package vigil

import "time"

// Decision is a verdict outcome.
type Decision string

const (
	DecisionAllow    Decision = "ALLOW"
	DecisionDeny     Decision = "DENY"
	DecisionEscalate Decision = "ESCALATE"
)

// ActionPrimitive describes one proposed agent action.
type ActionPrimitive struct {
	Verb       string         `json:"verb"`
	Resource   string         `json:"resource"`
	Domain     string         `json:"domain"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// AgentContext identifies the acting agent. TraceID is optional; the server
// generates one when absent.
type AgentContext struct {
	AgentID       string `json:"agent_id,omitempty"`
	MaturityLevel int    `json:"maturity_level,omitempty"`
	TraceID       string `json:"trace_id,omitempty"`
}

// SemanticVerdict is the ontology authority check result.
type SemanticVerdict struct {
	Decision           Decision `json:"decision"`
	OntologyMatch      bool     `json:"ontology_match"`
	MaturityAuthorized bool     `json:"maturity_authorized"`
	Coverage           float64  `json:"coverage"`
	Reason             string   `json:"reason"`
}

// ValidatorVerdict is one domain validator's result.
type ValidatorVerdict struct {
	ValidatorName string   `json:"name"`
	Decision      Decision `json:"decision"`
	RuleID        string   `json:"rule_id"`
	Rationale     string   `json:"rationale"`
	LatencyMs     float64  `json:"latency_ms"`
	Confidence    float64  `json:"confidence"`
}

// ComponentTimings records per-stage wall time in milliseconds.
type ComponentTimings struct {
	HealthMs     float64 `json:"health"`
	SemanticMs   float64 `json:"semantic"`
	ValidatorsMs float64 `json:"validators"`
	SignMs       float64 `json:"sign"`
	PersistMs    float64 `json:"persist"`
}

// Verdict is the signed outcome of one validation.
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

// Allowed reports whether the action may proceed. Anything other than an
// explicit ALLOW, including transport errors handled by the caller, means no.
func (v Verdict) Allowed() bool {
	return v.Decision == DecisionAllow
}

// Summary is the aggregate ledger report for a trailing window.
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

// HealthResponse is the /health payload.
type HealthResponse struct {
	Status            string `json:"status"`
	OntologyReachable bool   `json:"ontology_reachable"`
	Version           string `json:"version"`
}

type validateRequest struct {
	Action ActionPrimitive `json:"action"`
	Agent  AgentContext    `json:"agent"`
}

type validateResponse struct {
	Verdict Verdict `json:"verdict"`
}

type recentResponse struct {
	Verdicts []Verdict `json:"verdicts"`
}
