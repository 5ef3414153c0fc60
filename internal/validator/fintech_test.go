package validator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vigil-labs/vigil/internal/model"
)

func paymentAction(params map[string]any) model.ActionPrimitive {
	return model.ActionPrimitive{
		Verb:       "initiate_payment",
		Resource:   "account:ES91-2100",
		Domain:     "fintech",
		Parameters: params,
	}
}

func TestSCAAboveThresholdWithoutChallenge(t *testing.T) {
	v := NewStrongCustomerAuth(testTimeout)
	out := v.Validate(context.Background(), paymentAction(map[string]any{
		"amount":        350,
		"sca_completed": false,
	}))
	assert.Equal(t, model.DecisionDeny, out.Decision)
	assert.Equal(t, "PSD2 RTS 2018/389", out.RuleID)
}

func TestSCAAboveThresholdChallengePassed(t *testing.T) {
	v := NewStrongCustomerAuth(testTimeout)
	out := v.Validate(context.Background(), paymentAction(map[string]any{
		"amount":        350,
		"sca_completed": true,
	}))
	assert.Equal(t, model.DecisionAllow, out.Decision)
}

func TestSCABelowThreshold(t *testing.T) {
	v := NewStrongCustomerAuth(testTimeout)
	out := v.Validate(context.Background(), paymentAction(map[string]any{
		"amount": 25,
	}))
	assert.Equal(t, model.DecisionAllow, out.Decision)
}

func TestSCAExemptTransactionType(t *testing.T) {
	v := NewStrongCustomerAuth(testTimeout)
	out := v.Validate(context.Background(), paymentAction(map[string]any{
		"amount":           5000,
		"transaction_type": "balance_check",
	}))
	assert.Equal(t, model.DecisionAllow, out.Decision)
	assert.Contains(t, out.Rationale, "exemption")
}

func TestSCANotApplicableWithoutAmount(t *testing.T) {
	v := NewStrongCustomerAuth(testTimeout)
	out := v.Validate(context.Background(), paymentAction(map[string]any{
		"memo": "invoice 42",
	}))
	assert.Equal(t, model.DecisionAllow, out.Decision)
	assert.Contains(t, out.Rationale, "not applicable")
}

func TestSCAUnparseableAmountEscalates(t *testing.T) {
	v := NewStrongCustomerAuth(testTimeout)
	out := v.Validate(context.Background(), paymentAction(map[string]any{
		"amount": "a lot",
	}))
	assert.Equal(t, model.DecisionEscalate, out.Decision)
	assert.Equal(t, model.ReasonInsufficientContext, out.RuleID)
}

func TestPaymentLimitWithin(t *testing.T) {
	v := NewPaymentLimit(testTimeout)
	out := v.Validate(context.Background(), paymentAction(map[string]any{
		"amount": 999.99,
	}))
	assert.Equal(t, model.DecisionAllow, out.Decision)
}

func TestPaymentLimitExceededEscalates(t *testing.T) {
	v := NewPaymentLimit(testTimeout)
	out := v.Validate(context.Background(), paymentAction(map[string]any{
		"amount": 1500,
	}))
	assert.Equal(t, model.DecisionEscalate, out.Decision)
	assert.Equal(t, "Internal Policy AUTONOMOUS-LIMIT", out.RuleID)
}

func TestPaymentLimitExactLimitAllowed(t *testing.T) {
	v := NewPaymentLimit(testTimeout)
	out := v.Validate(context.Background(), paymentAction(map[string]any{
		"amount": 1000,
	}))
	assert.Equal(t, model.DecisionAllow, out.Decision)
}

func TestAMLBelowThreshold(t *testing.T) {
	v := NewAMLThreshold(testTimeout)
	out := v.Validate(context.Background(), paymentAction(map[string]any{
		"amount": 9999,
	}))
	assert.Equal(t, model.DecisionAllow, out.Decision)
}

func TestAMLStandardThresholdEscalates(t *testing.T) {
	v := NewAMLThreshold(testTimeout)
	out := v.Validate(context.Background(), paymentAction(map[string]any{
		"amount": 10000,
	}))
	assert.Equal(t, model.DecisionEscalate, out.Decision)
	assert.Equal(t, "EU 2018/843 (5AMLD)", out.RuleID)
}

func TestAMLHighRiskLowerThreshold(t *testing.T) {
	v := NewAMLThreshold(testTimeout)
	out := v.Validate(context.Background(), paymentAction(map[string]any{
		"amount":              6000,
		"customer_risk_level": "high_risk",
	}))
	assert.Equal(t, model.DecisionEscalate, out.Decision)
	assert.Contains(t, out.Rationale, "high-risk")
}

func TestAMLPEPLowerThreshold(t *testing.T) {
	v := NewAMLThreshold(testTimeout)
	out := v.Validate(context.Background(), paymentAction(map[string]any{
		"amount":              6000,
		"customer_risk_level": "pep",
	}))
	assert.Equal(t, model.DecisionEscalate, out.Decision)
}

func TestAMLSanctionsMatchDenies(t *testing.T) {
	v := NewAMLThreshold(testTimeout)
	out := v.Validate(context.Background(), paymentAction(map[string]any{
		"amount":          50,
		"sanctions_match": true,
	}))
	assert.Equal(t, model.DecisionDeny, out.Decision)
	assert.Contains(t, out.Rationale, "sanctions")
}

func TestAMLEnhancedDueDiligencePassed(t *testing.T) {
	v := NewAMLThreshold(testTimeout)
	out := v.Validate(context.Background(), paymentAction(map[string]any{
		"amount":       15000,
		"risk_profile": "enhanced_due_diligence_passed",
	}))
	assert.Equal(t, model.DecisionAllow, out.Decision)
}
