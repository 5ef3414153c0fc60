package validator

import (
	"context"
	"fmt"
	"time"

	"github.com/vigil-labs/vigil/internal/model"
)

// Fintech thresholds, in EUR.
const (
	scaThresholdEUR         = 30.0
	autonomousLimitEUR      = 1000.0
	amlStandardThresholdEUR = 10000.0
	amlHighRiskThresholdEUR = 5000.0
)

// scaExemptTransactionTypes are transaction types outside the scope of the
// strong-customer-authentication requirement.
var scaExemptTransactionTypes = map[string]bool{
	"inquiry":         true,
	"balance_check":   true,
	"card_validation": true,
}

// StrongCustomerAuth enforces the PSD2 regulatory technical standard on
// strong customer authentication: remote payments above 30 EUR require a
// completed SCA challenge.
type StrongCustomerAuth struct {
	timeout time.Duration
}

// NewStrongCustomerAuth creates the SCA validator with the given timeout.
func NewStrongCustomerAuth(timeout time.Duration) *StrongCustomerAuth {
	return &StrongCustomerAuth{timeout: timeout}
}

func (v *StrongCustomerAuth) Name() string           { return "strong_customer_auth" }
func (v *StrongCustomerAuth) RuleID() string         { return "PSD2 RTS 2018/389" }
func (v *StrongCustomerAuth) Timeout() time.Duration { return v.timeout }

func (v *StrongCustomerAuth) Validate(_ context.Context, action model.ActionPrimitive) model.ValidatorVerdict {
	p := params(action.Parameters)

	if !p.Has("amount") {
		return notApplicable(v.RuleID(), "payment amount")
	}
	amount, ok := p.Float("amount")
	if !ok {
		return insufficientContext([]string{"amount"})
	}

	if txType, ok := p.String("transaction_type"); ok && scaExemptTransactionTypes[txType] {
		return verdict(model.DecisionAllow, v.RuleID(),
			fmt.Sprintf("SCA exemption: %s transactions", txType))
	}

	scaCompleted, _ := p.Bool("sca_completed")
	if amount > scaThresholdEUR && !scaCompleted {
		return verdict(model.DecisionDeny, v.RuleID(),
			fmt.Sprintf("strong customer authentication required for amounts above %s",
				formatEUR(scaThresholdEUR)))
	}

	return verdict(model.DecisionAllow, v.RuleID(), "SCA requirement satisfied")
}

// PaymentLimit enforces the internal autonomous-operation ceiling: amounts
// above 1000 EUR need human approval regardless of authentication state.
type PaymentLimit struct {
	timeout time.Duration
}

// NewPaymentLimit creates the payment-limit validator with the given timeout.
func NewPaymentLimit(timeout time.Duration) *PaymentLimit {
	return &PaymentLimit{timeout: timeout}
}

func (v *PaymentLimit) Name() string           { return "payment_limit" }
func (v *PaymentLimit) RuleID() string         { return "Internal Policy AUTONOMOUS-LIMIT" }
func (v *PaymentLimit) Timeout() time.Duration { return v.timeout }

func (v *PaymentLimit) Validate(_ context.Context, action model.ActionPrimitive) model.ValidatorVerdict {
	p := params(action.Parameters)

	if !p.Has("amount") {
		return notApplicable(v.RuleID(), "payment amount")
	}
	amount, ok := p.Float("amount")
	if !ok {
		return insufficientContext([]string{"amount"})
	}

	if amount > autonomousLimitEUR {
		return verdict(model.DecisionEscalate, v.RuleID(),
			fmt.Sprintf("amount %s exceeds autonomous limit %s",
				formatEUR(amount), formatEUR(autonomousLimitEUR)))
	}

	return verdict(model.DecisionAllow, v.RuleID(), "amount within autonomous limit")
}

// AMLThreshold enforces the EU fifth anti-money-laundering directive:
// transactions at or above the reporting threshold escalate for enhanced
// due diligence, with a lower threshold for high-risk customers and PEPs.
// A sanctions-list match is an outright deny.
type AMLThreshold struct {
	timeout time.Duration
}

// NewAMLThreshold creates the AML validator with the given timeout.
func NewAMLThreshold(timeout time.Duration) *AMLThreshold {
	return &AMLThreshold{timeout: timeout}
}

func (v *AMLThreshold) Name() string           { return "aml_threshold" }
func (v *AMLThreshold) RuleID() string         { return "EU 2018/843 (5AMLD)" }
func (v *AMLThreshold) Timeout() time.Duration { return v.timeout }

func (v *AMLThreshold) Validate(_ context.Context, action model.ActionPrimitive) model.ValidatorVerdict {
	p := params(action.Parameters)

	if !p.Has("amount") {
		return notApplicable(v.RuleID(), "payment amount")
	}
	amount, ok := p.Float("amount")
	if !ok {
		return insufficientContext([]string{"amount"})
	}

	if match, ok := p.Bool("sanctions_match"); ok && match {
		return verdict(model.DecisionDeny, v.RuleID(),
			"sanctions list match detected; transaction blocked")
	}

	risk, _ := p.String("customer_risk_level")
	threshold := amlStandardThresholdEUR
	category := "standard transaction"
	if risk == "high_risk" || risk == "pep" {
		threshold = amlHighRiskThresholdEUR
		category = "high-risk customer or PEP"
	}

	if amount >= threshold {
		if profile, ok := p.String("risk_profile"); ok && profile == "enhanced_due_diligence_passed" {
			return verdict(model.DecisionAllow, v.RuleID(),
				fmt.Sprintf("threshold reached but enhanced due diligence already passed (%s)", category))
		}
		return verdict(model.DecisionEscalate, v.RuleID(),
			fmt.Sprintf("AML threshold %s reached for %s; enhanced due diligence required",
				formatEUR(threshold), category))
	}

	return verdict(model.DecisionAllow, v.RuleID(),
		fmt.Sprintf("amount below AML threshold (%s)", category))
}
