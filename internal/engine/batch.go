package engine

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/andresuchdata/stockcast/internal/domain"
)

// Recalculate runs the full pipeline on one product: simulate, optionally
// regenerate alerts and simulate again so the trajectory reflects them,
// then refresh the headline metrics.
func (e *Engine) Recalculate(p *domain.Product, regenerate bool) {
	e.Simulate(p)
	if regenerate {
		e.RegenerateAlerts(p)
		e.Simulate(p)
	}
	e.RecomputeHeadline(p)
}

// ResimulateAll recalculates every product of an analysis on a bounded
// worker pool. Products are independent, so each worker owns its product.
func (e *Engine) ResimulateAll(ctx context.Context, products []domain.Product, regenerate bool) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)

	for i := range products {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			e.Recalculate(&products[i], regenerate)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	e.log.Debug().Int("products", len(products)).Bool("regenerate", regenerate).Msg("resimulated products")
	return nil
}
