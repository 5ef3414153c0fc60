package signer

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigil-labs/vigil/internal/model"
)

func testVerdict() model.Verdict {
	return model.Verdict{
		TraceID:  "trace-42",
		Decision: model.DecisionAllow,
		Reason:   model.ReasonAllValidatorsPassed,
	}
}

func TestNewRejectsEmptySecret(t *testing.T) {
	_, err := New("", "v1")
	require.Error(t, err)
}

func TestSignVerifyRoundTrip(t *testing.T) {
	s, err := New("test-secret", "v1")
	require.NoError(t, err)

	v := testVerdict()
	sig, err := s.Sign(v)
	require.NoError(t, err)
	require.NotEmpty(t, sig)

	v.Signature = sig
	assert.True(t, s.Verify(v))
}

func TestSignDeterministic(t *testing.T) {
	s, err := New("test-secret", "v1")
	require.NoError(t, err)

	v := testVerdict()
	a, err := s.Sign(v)
	require.NoError(t, err)
	b, err := s.Sign(v)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestVerifyFailsOnMutation(t *testing.T) {
	s, err := New("test-secret", "v1")
	require.NoError(t, err)

	v := testVerdict()
	sig, err := s.Sign(v)
	require.NoError(t, err)
	v.Signature = sig

	mutated := v
	mutated.Decision = model.DecisionDeny
	assert.False(t, s.Verify(mutated))

	mutated = v
	mutated.Reason = "tampered"
	assert.False(t, s.Verify(mutated))

	mutated = v
	mutated.TraceID = "trace-43"
	assert.False(t, s.Verify(mutated))
}

func TestVerifyFailsOnEmptySignature(t *testing.T) {
	s, err := New("test-secret", "v1")
	require.NoError(t, err)

	v := testVerdict()
	assert.False(t, s.Verify(v))
}

func TestVerifyFailsWithDifferentSecret(t *testing.T) {
	a, err := New("secret-a", "v1")
	require.NoError(t, err)
	b, err := New("secret-b", "v1")
	require.NoError(t, err)

	v := testVerdict()
	sig, err := a.Sign(v)
	require.NoError(t, err)
	v.Signature = sig

	assert.True(t, a.Verify(v))
	assert.False(t, b.Verify(v))
}

// Signature fields unrelated to the MAC payload must not affect the MAC:
// timings and latency vary run to run, but the signature does not.
func TestSignIgnoresUnsignedFields(t *testing.T) {
	s, err := New("test-secret", "v1")
	require.NoError(t, err)

	v := testVerdict()
	a, err := s.Sign(v)
	require.NoError(t, err)

	v.GovernanceLatencyMs = 123.4
	v.ComponentTimings.SemanticMs = 55
	v.Certifiable = true
	b, err := s.Sign(v)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestSignVerifyProperty(t *testing.T) {
	s, err := New("property-secret", "v1")
	require.NoError(t, err)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	decisions := gen.OneConstOf(model.DecisionAllow, model.DecisionDeny, model.DecisionEscalate)

	properties.Property("verify(sign(v)) holds for arbitrary signed fields", prop.ForAll(
		func(d model.Decision, reason, traceID string) bool {
			v := model.Verdict{Decision: d, Reason: reason, TraceID: traceID}
			sig, err := s.Sign(v)
			if err != nil {
				return false
			}
			v.Signature = sig
			return s.Verify(v)
		},
		decisions,
		gen.AnyString(),
		gen.AnyString(),
	))

	properties.Property("mutating the reason breaks verification", prop.ForAll(
		func(reason, suffix, traceID string) bool {
			if suffix == "" {
				return true
			}
			v := model.Verdict{Decision: model.DecisionAllow, Reason: reason, TraceID: traceID}
			sig, err := s.Sign(v)
			if err != nil {
				return false
			}
			v.Signature = sig
			v.Reason = reason + suffix
			return !s.Verify(v)
		},
		gen.AnyString(),
		gen.AnyString(),
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
