package validator

import (
	"context"
	"fmt"
	"time"

	"github.com/vigil-labs/vigil/internal/model"
)

// Run executes one validator under its declared timeout with full failure
// isolation. It always returns a verdict:
//   - the validator's own result, stamped with name, latency, and the
//     contract-fixed confidence;
//   - DENY/TIMEOUT if the validator exceeded its declared timeout or the
//     surrounding context was cancelled first;
//   - DENY/EXCEPTION if the validator panicked.
//
// A validator that does not observe cancellation is abandoned, not awaited:
// its goroutine writes into a buffered channel nobody reads and exits.
func Run(ctx context.Context, v Validator, action model.ActionPrimitive) model.ValidatorVerdict {
	start := time.Now()
	timeout := v.Timeout()

	vctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan model.ValidatorVerdict, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- verdict(model.DecisionDeny, model.RuleException,
					fmt.Sprintf("%v", r))
			}
		}()
		done <- v.Validate(vctx, action)
	}()

	var out model.ValidatorVerdict
	select {
	case out = <-done:
	case <-vctx.Done():
		out = verdict(model.DecisionDeny, model.RuleTimeout,
			fmt.Sprintf("%s exceeded %d ms", v.Name(), timeout.Milliseconds()))
	}

	out.ValidatorName = v.Name()
	out.LatencyMs = float64(time.Since(start).Microseconds()) / 1000.0
	out.Confidence = 1.0
	if !out.Decision.Valid() {
		out = model.ValidatorVerdict{
			ValidatorName: v.Name(),
			Decision:      model.DecisionDeny,
			RuleID:        model.RuleException,
			Rationale:     fmt.Sprintf("invalid decision %q from validator", out.Decision),
			LatencyMs:     out.LatencyMs,
			Confidence:    1.0,
		}
	}
	return out
}
