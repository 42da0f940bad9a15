package shapley

import (
	"context"
	"fmt"
	"runtime"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/domino14/shapstack/board"
)

// SweepOptions describes a batch of independent simulations, one per
// board seed.
type SweepOptions struct {
	Seeds      []int64
	Iterations int
	Threads    int
	Gen        board.GenOptions
	// SeedOffset is added to each board seed to seed its sampler.
	SeedOffset int64
}

type SweepResult struct {
	Seed            int64
	Pieces          int
	ReferenceHeight int
	MeanHeight      float64
	Top             board.PieceID
	TopContribution float64
}

// Sweep generates a board for every seed and simulates each on its own
// Simulator. Results are returned in seed order.
func Sweep(ctx context.Context, opts SweepOptions) ([]SweepResult, error) {
	logger := zerolog.Ctx(ctx)
	threads := opts.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	results := make([]SweepResult, len(opts.Seeds))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(threads)
	for i, seed := range opts.Seeds {
		g.Go(func() error {
			ref, err := board.GenerateFromSeed(seed, opts.Gen)
			if err != nil {
				return fmt.Errorf("seed %d: %w", seed, err)
			}
			if ref.NumPieces() == 0 {
				return fmt.Errorf("seed %d: %w", seed, ErrEmptyPieceSet)
			}
			sim, err := NewSimulator(ref, seed+opts.SeedOffset)
			if err != nil {
				return fmt.Errorf("seed %d: %w", seed, err)
			}
			if err := sim.RunIterations(gctx, opts.Iterations); err != nil {
				return fmt.Errorf("seed %d: %w", seed, err)
			}
			avgs := sim.AverageContributions()
			top := lo.MaxBy(sim.PieceIDs(), func(a, b board.PieceID) bool {
				return avgs[a] > avgs[b]
			})
			results[i] = SweepResult{
				Seed:            seed,
				Pieces:          ref.NumPieces(),
				ReferenceHeight: ref.StackHeight(),
				MeanHeight:      sim.FinalHeights().Mean(),
				Top:             top,
				TopContribution: avgs[top],
			}
			logger.Debug().Int64("seed", seed).Int("top", int(top)).Msg("sweep-seed-done")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
