package shapley

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/matryer/is"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/domino14/shapstack/board"
	"github.com/domino14/shapstack/stats"
)

func TestNewSimulatorErrors(t *testing.T) {
	is := is.New(t)
	_, err := NewSimulator(nil, 1)
	is.True(errors.Is(err, ErrNilBoard))

	empty, err := board.New(4, 4)
	is.NoErr(err)
	_, err = NewSimulator(empty, 1)
	is.True(errors.Is(err, ErrEmptyPieceSet))
}

func replayOrder(t *testing.T, sim *Simulator, ctx context.Context, perm []board.PieceID) {
	t.Helper()
	if _, _, err := sim.ReplayPermutation(ctx, perm); err != nil {
		t.Fatal(err)
	}
}

type step struct {
	id    board.PieceID
	after int
}

func trace(t *testing.T, sim *Simulator, iters int) []step {
	t.Helper()
	var out []step
	for range iters {
		for ev, err := range sim.RunIteration().All() {
			if err != nil {
				t.Fatal(err)
			}
			if ev.Type == EventStep {
				out = append(out, step{ev.PieceID, ev.HeightAfter})
			}
		}
	}
	return out
}

func TestDeterminism(t *testing.T) {
	is := is.New(t)
	ref := generated(t, 12345)
	s1, err := NewSimulator(ref, 13345)
	is.NoErr(err)
	s2, err := NewSimulator(ref, 13345)
	is.NoErr(err)
	is.Equal(trace(t, s1, 20), trace(t, s2, 20))
	is.Equal(s1.AverageContributions(), s2.AverageContributions())
}

func TestRunIterationsMatchesStepping(t *testing.T) {
	is := is.New(t)
	ref := generated(t, 7)
	stepped, err := NewSimulator(ref, 8)
	is.NoErr(err)
	batched, err := NewSimulator(ref, 8)
	is.NoErr(err)

	trace(t, stepped, 30)
	is.NoErr(batched.RunIterations(context.Background(), 30))

	is.Equal(batched.TotalIterations(), 30)
	is.Equal(stepped.AverageContributions(), batched.AverageContributions())
}

func TestConservationOfAverages(t *testing.T) {
	is := is.New(t)
	sim, err := NewSimulator(generated(t, 4242), 5242)
	is.NoErr(err)
	is.NoErr(sim.RunIterations(context.Background(), 200))

	// every iteration touches every piece once, so the averages add up to
	// the mean final height
	sum := lo.SumBy(lo.Values(sim.AverageContributions()), func(v float64) float64 { return v })
	is.True(stats.FuzzyEqual(sum, sim.FinalHeights().Mean()))
	is.Equal(sim.FinalHeights().Iterations(), 200)
	is.Equal(len(sim.HeightSamples()), 200)
}

func TestAccumulatorLinearity(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	ref := generated(t, 12345)
	p1 := ref.PieceIDs()
	p2 := ref.PieceIDs()
	p2[0], p2[len(p2)-1] = p2[len(p2)-1], p2[0]

	a, err := NewSimulator(ref, 1)
	is.NoErr(err)
	replayOrder(t, a, ctx, p1)
	replayOrder(t, a, ctx, p2)

	b, err := NewSimulator(ref, 2)
	is.NoErr(err)
	is.NoErr(b.RunIterations(ctx, 17))
	is.NoErr(b.Reset())
	replayOrder(t, b, ctx, p2)
	replayOrder(t, b, ctx, p1)

	is.Equal(a.AverageContributions(), b.AverageContributions())
	is.Equal(b.TotalIterations(), 2)
}

func TestScenarioAverages(t *testing.T) {
	is := is.New(t)
	sim, err := NewSimulator(scenarioBoard(t), 12345+1000)
	is.NoErr(err)
	replayOrder(t, sim, context.Background(), []board.PieceID{0, 1, 2})
	avgs := sim.AverageContributions()
	is.Equal(avgs, map[board.PieceID]float64{0: 1, 1: 0, 2: 2})
	is.Equal(sim.FinalHeights().Last(), 3.0)
}

func TestResetClearsState(t *testing.T) {
	is := is.New(t)
	sim, err := NewSimulator(generated(t, 3), 1003)
	is.NoErr(err)
	is.NoErr(sim.RunIterations(context.Background(), 25))
	is.Equal(sim.TotalIterations(), 25)

	is.NoErr(sim.Reset())
	is.Equal(sim.TotalIterations(), 0)
	for id, v := range sim.AverageContributions() {
		is.Equal(v, 0.0)
		is.Equal(sim.Stat(id).Iterations(), 0)
	}
	is.Equal(len(sim.AverageContributions()), sim.Board().NumPieces())
	is.Equal(sim.FinalHeights().Iterations(), 0)
	is.Equal(len(sim.HeightSamples()), 0)
}

func TestBatchAbortLeavesAccumulator(t *testing.T) {
	is := is.New(t)
	sim, err := NewSimulator(tightBoard(t), 1)
	is.NoErr(err)
	ctx := context.Background()
	replayOrder(t, sim, ctx, []board.PieceID{0, 1})
	before := sim.AverageContributions()

	_, _, err = sim.ReplayPermutation(ctx, []board.PieceID{1, 0})
	var oob *board.OutOfBoundsError
	is.True(errors.As(err, &oob))
	is.Equal(sim.AverageContributions(), before)
	is.Equal(sim.TotalIterations(), 1)
	is.Equal(sim.Stat(1).Iterations(), 1)
}

func TestReferenceBoardIsCloned(t *testing.T) {
	is := is.New(t)
	ref := scenarioBoard(t)
	sim, err := NewSimulator(ref, 1)
	is.NoErr(err)
	_, err = ref.AddPiece(&board.Piece{ID: 3, Col: 3, Shape: board.MustShape(board.Offset{0, 0})})
	is.NoErr(err)
	is.Equal(sim.Board().NumPieces(), 3)
	is.Equal(len(sim.AverageContributions()), 3)
}

func TestRunIterationsCanceled(t *testing.T) {
	is := is.New(t)
	sim, err := NewSimulator(generated(t, 5), 1005)
	is.NoErr(err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = sim.RunIterations(ctx, 10)
	is.True(errors.Is(err, context.Canceled))
	is.Equal(sim.TotalIterations(), 0)
}

func TestSimulateIterationsCutoff(t *testing.T) {
	is := is.New(t)
	sim, err := NewSimulator(generated(t, 11), 1011)
	is.NoErr(err)
	sim.SetAutostopCheckInterval(10)
	sim.SetIterationsCutoff(50)
	is.NoErr(sim.Simulate(context.Background()))
	is.Equal(sim.TotalIterations(), 50)
	is.True(!sim.IsSimming())
}

func TestSimulateStoppingCondition(t *testing.T) {
	is := is.New(t)
	b, err := board.New(3, 4)
	is.NoErr(err)
	_, err = b.AddPiece(&board.Piece{ID: 0, Col: 1, Shape: board.MustShape(board.Offset{0, 0}, board.Offset{0, 1})})
	is.NoErr(err)

	sim, err := NewSimulator(b, 1)
	is.NoErr(err)
	sim.SetStoppingCondition(Stop99)
	sim.SetAutostopCheckInterval(10)
	sim.SetIterationsCutoff(0)
	// a lone piece always contributes its height, so the interval is zero
	// after the first check
	is.NoErr(sim.Simulate(context.Background()))
	is.Equal(sim.TotalIterations(), 10)
	is.Equal(sim.AverageContributions()[0], 2.0)
}

func TestSimulateCanceled(t *testing.T) {
	is := is.New(t)
	sim, err := NewSimulator(generated(t, 13), 1013)
	is.NoErr(err)
	sim.SetIterationsCutoff(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	is.NoErr(sim.Simulate(ctx))
	is.Equal(sim.TotalIterations(), 0)
}

func TestLogStream(t *testing.T) {
	is := is.New(t)
	sim, err := NewSimulator(scenarioBoard(t), 12345+1000)
	is.NoErr(err)
	var buf bytes.Buffer
	sim.SetLogStream(&buf)
	is.NoErr(sim.RunIterations(context.Background(), 3))
	replayOrder(t, sim, context.Background(), []board.PieceID{0, 1, 2})

	var logged []LogIteration
	is.NoErr(yaml.Unmarshal(buf.Bytes(), &logged))
	is.Equal(len(logged), 4)
	for i, li := range logged {
		is.Equal(li.Iteration, i+1)
		is.Equal(len(li.Permutation), 3)
		is.Equal(len(li.Insertions), 3)
		total := lo.SumBy(li.Insertions, func(in Insertion) int { return in.Marginal() })
		is.Equal(total, li.Height)
		is.Equal(len(li.Hash), 16)
	}
	is.Equal(logged[3].Permutation, []board.PieceID{0, 1, 2})
	is.Equal(logged[3].Height, 3)
}

func TestContributionStats(t *testing.T) {
	is := is.New(t)
	sim, err := NewSimulator(scenarioBoard(t), 1)
	is.NoErr(err)
	replayOrder(t, sim, context.Background(), []board.PieceID{0, 1, 2})
	out := sim.ContributionStats()
	is.True(bytes.Contains([]byte(out), []byte("Iterations: 1")))
	is.Equal(sim.ShortDetails(2), "1) #2 (2.00)  2) #0 (1.00)  ; iters = 1")
}

func TestStoppingConditionFromPercent(t *testing.T) {
	is := is.New(t)
	is.Equal(StoppingConditionFromPercent(95), Stop95)
	is.Equal(StoppingConditionFromPercent(99), Stop99)
	is.Equal(StoppingConditionFromPercent(50), StopNone)
}

func TestReplayPermutationReturnsIteration(t *testing.T) {
	is := is.New(t)
	sim, err := NewSimulator(scenarioBoard(t), 1)
	is.NoErr(err)
	ins, final, err := sim.ReplayPermutation(context.Background(), []board.PieceID{0, 1, 2})
	is.NoErr(err)
	is.Equal(lo.Map(ins, func(in Insertion, _ int) int { return in.Marginal() }), []int{1, 0, 2})
	is.Equal(final.StackHeight(), 3)
	is.Equal(final.Cell(0, 2).PieceID(), board.PieceID(2))
}

func TestSimulateAtCutoffRunsNothing(t *testing.T) {
	is := is.New(t)
	sim, err := NewSimulator(generated(t, 17), 1017)
	is.NoErr(err)
	is.NoErr(sim.RunIterations(context.Background(), 30))
	is.NoErr(sim.SetAutostopCheckInterval(100))
	is.NoErr(sim.SetIterationsCutoff(30))
	is.NoErr(sim.Simulate(context.Background()))
	is.Equal(sim.TotalIterations(), 30)

	// a cutoff that is not a multiple of the check interval is hit exactly
	is.NoErr(sim.SetIterationsCutoff(45))
	is.NoErr(sim.Simulate(context.Background()))
	is.Equal(sim.TotalIterations(), 45)
}
