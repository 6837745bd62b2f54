package backtest

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// SweepRun is one parameter point in a sweep: a name and a builder that
// constructs a fully-wired, fully-loaded Engine for that point. Each
// worker gets its own engine instance; no state is shared between them.
type SweepRun struct {
	Name  string
	Build func() (*Engine, error)
}

// Sweep executes runs in parallel, at most parallelism at a time
// (parallelism <= 0 means unbounded). Every run is an isolated engine;
// the per-run determinism guarantee is unaffected by sweep scheduling.
// Results are returned in the same order as runs. The first build or
// run error cancels outstanding work.
func Sweep(ctx context.Context, parallelism int, runs []SweepRun) ([]*Result, error) {
	results := make([]*Result, len(runs))

	g, ctx := errgroup.WithContext(ctx)
	if parallelism > 0 {
		g.SetLimit(parallelism)
	}

	for i, run := range runs {
		i, run := i, run
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			engine, err := run.Build()
			if err != nil {
				return fmt.Errorf("sweep %q: build: %w", run.Name, err)
			}
			if err := engine.Run(); err != nil {
				return fmt.Errorf("sweep %q: run: %w", run.Name, err)
			}
			res, err := engine.Result()
			if err != nil {
				return fmt.Errorf("sweep %q: %w", run.Name, err)
			}
			results[i] = res
			log.Info().
				Str("run", run.Name).
				Str("ending_balance", res.EndingBalance.StringFixed(2)).
				Msg("sweep: run finished")
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
