package gate

import (
	"fmt"

	"github.com/vigil-labs/vigil/internal/model"
)

// Aggregate folds the semantic verdict and the ordered validator results
// into one decision under the conservative veto:
//
//   - a semantic DENY is final;
//   - any validator DENY denies, the reason carrying the first denier's
//     regulatory citation in registry order;
//   - otherwise any ESCALATE escalates, cited the same way;
//   - otherwise semantic coverage below the floor escalates;
//   - otherwise ALLOW.
//
// The fold is order-stable over the input slice, so identical inputs always
// produce the identical decision and reason.
func Aggregate(sem model.SemanticVerdict, results []model.ValidatorVerdict, coverageFloor float64) (model.Decision, string) {
	if sem.Decision == model.DecisionDeny {
		return model.DecisionDeny, sem.Reason
	}

	for _, r := range results {
		if r.Decision == model.DecisionDeny {
			return model.DecisionDeny, fmt.Sprintf("%s: %s", r.RuleID, r.Rationale)
		}
	}
	for _, r := range results {
		if r.Decision == model.DecisionEscalate {
			return model.DecisionEscalate, fmt.Sprintf("%s: %s", r.RuleID, r.Rationale)
		}
	}

	if sem.Coverage < coverageFloor {
		return model.DecisionEscalate, model.ReasonLowCoverage
	}

	return model.DecisionAllow, model.ReasonAllValidatorsPassed
}
