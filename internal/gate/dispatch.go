package gate

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/vigil-labs/vigil/internal/model"
	"github.com/vigil-labs/vigil/internal/validator"
)

// dispatch runs every validator concurrently and returns their results in
// registry order, so the aggregator's first-denier attribution is stable
// regardless of completion order. validator.Run guarantees each slot is
// filled; a timed-out or panicking validator yields a DENY slot, never a
// gap.
func dispatch(ctx context.Context, validators []validator.Validator, action model.ActionPrimitive) []model.ValidatorVerdict {
	results := make([]model.ValidatorVerdict, len(validators))

	g, gctx := errgroup.WithContext(ctx)
	for i, v := range validators {
		g.Go(func() error {
			results[i] = validator.Run(gctx, v, action)
			return nil
		})
	}
	_ = g.Wait()

	return results
}
