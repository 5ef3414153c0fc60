// Package validator defines the uniform contract for deterministic domain
// rule evaluators and the static registry that binds them to actions.
//
// Validators are pure: no shared state, no I/O, no mutation of the action.
// Each is bound to one regulatory citation and must complete within its
// declared timeout. The variant set is fixed at build time; there is no
// runtime plugin discovery, which keeps the certifiable surface static.
package validator

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/vigil-labs/vigil/internal/model"
)

// Validator is a deterministic rule evaluator bound to one regulatory
// citation. Validate must not block on external I/O and must stay within
// the declared Timeout; the dispatcher abandons validators that do not.
type Validator interface {
	Name() string
	RuleID() string
	Timeout() time.Duration
	Validate(ctx context.Context, action model.ActionPrimitive) model.ValidatorVerdict
}

// verdict builds a ValidatorVerdict with the contract-fixed confidence.
// Name and latency are stamped by Run.
func verdict(d model.Decision, ruleID, rationale string) model.ValidatorVerdict {
	return model.ValidatorVerdict{
		Decision:   d,
		RuleID:     ruleID,
		Rationale:  rationale,
		Confidence: 1.0,
	}
}

// insufficientContext is the boundary verdict for a validator that cannot
// compute because some of its governing parameters are absent. Distinct
// from a crash, which the dispatcher records as DENY.
func insufficientContext(missing []string) model.ValidatorVerdict {
	sort.Strings(missing)
	return verdict(model.DecisionEscalate, model.ReasonInsufficientContext,
		"missing parameters: "+strings.Join(missing, ", "))
}

// notApplicable is the verdict for a validator whose governing parameters
// are entirely absent from the action: the rule does not bear on this
// request and the validator passes.
func notApplicable(ruleID, what string) model.ValidatorVerdict {
	return verdict(model.DecisionAllow, ruleID, "not applicable: no "+what+" supplied")
}

// params wraps the action's opaque parameter map with typed accessors.
// Upstream intent normalizers sometimes carry units in string values
// ("2000 lb", "350 EUR"); Float accepts those by parsing the leading
// numeric token.
type params map[string]any

// Float returns the numeric value for key, accepting JSON numbers, Go
// integer types, and strings with a leading numeric token.
func (p params) Float(key string) (float64, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		fields := strings.Fields(n)
		if len(fields) == 0 {
			return 0, false
		}
		f, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Bool returns the boolean value for key, accepting bools and the strings
// "true"/"false".
func (p params) Bool(key string) (bool, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return false, false
	}
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			return false, false
		}
		return parsed, true
	}
	return false, false
}

// String returns the string value for key.
func (p params) String(key string) (string, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Has reports whether key is present, regardless of type.
func (p params) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// missingOf returns the subset of keys absent from p.
func (p params) missingOf(keys ...string) []string {
	var missing []string
	for _, k := range keys {
		if !p.Has(k) {
			missing = append(missing, k)
		}
	}
	return missing
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatEUR(v float64) string {
	return fmt.Sprintf("%s EUR", formatAmount(v))
}
