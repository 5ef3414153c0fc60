package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecisionValid(t *testing.T) {
	assert.True(t, DecisionAllow.Valid())
	assert.True(t, DecisionDeny.Valid())
	assert.True(t, DecisionEscalate.Valid())
	assert.False(t, Decision("MAYBE").Valid())
	assert.False(t, Decision("").Valid())
}

func TestActionPrimitiveValidate(t *testing.T) {
	good := ActionPrimitive{Verb: "reroute_flight", Resource: "flight:IB3202", Domain: "aviation"}
	require.NoError(t, good.Validate())

	tests := []struct {
		name   string
		action ActionPrimitive
	}{
		{"missing verb", ActionPrimitive{Resource: "r", Domain: "aviation"}},
		{"uppercase verb", ActionPrimitive{Verb: "Reroute_Flight", Resource: "r", Domain: "aviation"}},
		{"missing domain", ActionPrimitive{Verb: "reroute_flight", Resource: "r"}},
		{"missing resource", ActionPrimitive{Verb: "reroute_flight", Domain: "aviation"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.action.Validate())
		})
	}
}

func TestAgentContextValidate(t *testing.T) {
	good := AgentContext{MaturityLevel: 3, TraceID: "t-1"}
	require.NoError(t, good.Validate())

	assert.Error(t, AgentContext{MaturityLevel: 0, TraceID: "t-1"}.Validate())
	assert.Error(t, AgentContext{MaturityLevel: 6, TraceID: "t-1"}.Validate())
	assert.Error(t, AgentContext{MaturityLevel: 3}.Validate())
}

// The verdict JSON field names are wire-stable: the ledger row schema and
// downstream auditors depend on them.
func TestVerdictJSONShape(t *testing.T) {
	v := Verdict{
		TraceID:  "trace-1",
		Decision: DecisionDeny,
		Reason:   ReasonUnknownVerb,
		Action: ActionPrimitive{
			Verb: "teleport_aircraft", Resource: "flight:IB3202", Domain: "aviation",
			Parameters: map[string]any{},
		},
		AgentMaturity: 3,
		Semantic: SemanticVerdict{
			Decision: DecisionDeny, Reason: ReasonUnknownVerb,
		},
		ValidatorResults:    []ValidatorVerdict{},
		GovernanceLatencyMs: 12.5,
		EmittedAt:           time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	raw, err := json.Marshal(v)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))

	for _, key := range []string{
		"trace_id", "decision", "reason", "action", "agent_maturity",
		"semantic", "validator_results", "governance_latency_ms",
		"component_timings", "certifiable", "emitted_at",
	} {
		assert.Contains(t, m, key)
	}

	sem, ok := m["semantic"].(map[string]any)
	require.True(t, ok)
	for _, key := range []string{"decision", "ontology_match", "maturity_authorized", "coverage", "reason"} {
		assert.Contains(t, sem, key)
	}

	// Empty signature and agent_id are omitted, not emitted as "".
	assert.NotContains(t, m, "signature")
	assert.NotContains(t, m, "agent_id")
}

func TestComponentTimingsTotal(t *testing.T) {
	t1 := ComponentTimings{HealthMs: 0.5, SemanticMs: 8, ValidatorsMs: 12, SignMs: 0.3, PersistMs: 4.2}
	assert.InDelta(t, 25.0, t1.TotalMs(), 1e-9)
	assert.Zero(t, ComponentTimings{}.TotalMs())
}

func TestValidatorVerdictJSONShape(t *testing.T) {
	r := ValidatorVerdict{
		ValidatorName: "fuel_reserve",
		Decision:      DecisionDeny,
		RuleID:        "FAA 14 CFR §91.151",
		Rationale:     "insufficient fuel",
		LatencyMs:     3.2,
		Confidence:    1.0,
	}
	raw, err := json.Marshal(r)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	for _, key := range []string{"name", "decision", "rule_id", "rationale", "latency_ms", "confidence"} {
		assert.Contains(t, m, key)
	}
}
