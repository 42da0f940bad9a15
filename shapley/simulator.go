// Package shapley estimates how much each piece of a stacked board
// contributes to the final stack height. Every iteration drops the
// reference board's pieces in a random order onto an empty copy of the
// board; a piece's Shapley estimate is the mean height increase it caused
// across iterations.
package shapley

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/domino14/shapstack/board"
	"github.com/domino14/shapstack/permutation"
	"github.com/domino14/shapstack/rng"
	"github.com/domino14/shapstack/stats"
)

// MaxHeightSamples caps how many final heights are kept for histograms.
const MaxHeightSamples = 7500

var (
	ErrNilBoard      = errors.New("reference board is nil")
	ErrEmptyPieceSet = errors.New("reference board has no pieces")
	ErrSimming       = errors.New("a simulation is running; stop it first")
)

// Simulator is the controller for one simulation run over a fixed
// reference board. It is meant to be driven by one caller at a time; the
// only concurrent use allowed is reading results while Simulate runs.
type Simulator struct {
	mu sync.RWMutex

	ref     *board.Board
	ids     []board.PieceID
	sampler *permutation.Sampler
	acc     *Accumulator

	iterationCount atomic.Uint64
	// epoch changes on Reset so in-flight steppers can tell they are stale.
	epoch uint64

	finalHeights  stats.Statistic
	heightSamples []float64

	logStream   io.Writer
	simming     atomic.Bool
	autostopper *AutoStopper
}

// NewSimulator clones ref and seeds the permutation sampler with seed.
func NewSimulator(ref *board.Board, seed int64) (*Simulator, error) {
	return NewSimulatorWithSource(ref, rng.New(seed))
}

// NewSimulatorWithSource is like NewSimulator with an explicit random source.
func NewSimulatorWithSource(ref *board.Board, src rng.Source) (*Simulator, error) {
	if ref == nil {
		return nil, ErrNilBoard
	}
	if ref.NumPieces() == 0 {
		return nil, ErrEmptyPieceSet
	}
	cp := ref.Clone()
	ids := cp.PieceIDs()
	return &Simulator{
		ref:         cp,
		ids:         ids,
		sampler:     permutation.NewSampler(ids, src),
		acc:         NewAccumulator(ids),
		autostopper: newAutostopper(),
	}, nil
}

// Board returns the simulator's copy of the reference board. Callers must
// not modify it.
func (s *Simulator) Board() *board.Board {
	return s.ref
}

func (s *Simulator) PieceIDs() []board.PieceID {
	ids := make([]board.PieceID, len(s.ids))
	copy(ids, s.ids)
	return ids
}

func (s *Simulator) SetLogStream(l io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logStream = l
}

// The autostop settings below can't change while Simulate runs.

func (s *Simulator) SetStoppingCondition(sc StoppingCondition) error {
	return s.setAutostop(func(as *AutoStopper) { as.stoppingCondition = sc })
}

func (s *Simulator) SetStopTolerance(t float64) error {
	return s.setAutostop(func(as *AutoStopper) { as.tolerance = t })
}

// SetAutostopCheckInterval sets how many iterations run between stopping
// checks. 0 is treated as 1.
func (s *Simulator) SetAutostopCheckInterval(i uint64) error {
	if i == 0 {
		i = 1
	}
	return s.setAutostop(func(as *AutoStopper) { as.stopConditionCheckInterval = i })
}

// SetIterationsCutoff bounds Simulate. 0 means no bound.
func (s *Simulator) SetIterationsCutoff(i uint64) error {
	return s.setAutostop(func(as *AutoStopper) { as.iterationsCutoff = i })
}

func (s *Simulator) setAutostop(f func(*AutoStopper)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.IsSimming() {
		return ErrSimming
	}
	f(s.autostopper)
	return nil
}

func (s *Simulator) IsSimming() bool {
	return s.simming.Load()
}

// nextPermutation draws from the sampler. The caller holds s.mu.
func (s *Simulator) nextPermutation() []board.PieceID {
	perm := s.sampler.Next()
	if err := permutation.Validate(perm, s.ids); err != nil {
		panic(err)
	}
	return perm
}

// nextIteration is the index the iteration in progress will get if it
// completes now. The caller holds s.mu.
func (s *Simulator) nextIteration() int {
	return int(s.iterationCount.Load()) + 1
}

func (s *Simulator) newStepper(perm []board.PieceID) *Stepper {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &Stepper{
		sim:        s,
		epoch:      s.epoch,
		iteration:  s.nextIteration(),
		perm:       perm,
		insertions: make([]Insertion, 0, s.ref.NumPieces()),
	}
}

// RunIteration returns a Stepper for one iteration over a sampled
// permutation. The permutation is drawn by the stepper's start event, so
// creating a Stepper and abandoning it before its first Next leaves the
// sampler untouched.
func (s *Simulator) RunIteration() *Stepper {
	return s.newStepper(nil)
}

// RunPermutation is RunIteration for a caller-chosen insertion order.
func (s *Simulator) RunPermutation(perm []board.PieceID) (*Stepper, error) {
	if err := permutation.Validate(perm, s.ids); err != nil {
		return nil, err
	}
	p := make([]board.PieceID, len(perm))
	copy(p, perm)
	return s.newStepper(p), nil
}

// finishIteration records a completed iteration. The caller holds s.mu.
func (s *Simulator) finishIteration(iteration int, perm []board.PieceID, ins []Insertion, final *board.Board) {
	s.iterationCount.Add(1)
	h := float64(final.StackHeight())
	s.finalHeights.Push(h)
	if len(s.heightSamples) < MaxHeightSamples {
		s.heightSamples = append(s.heightSamples, h)
	}
	if s.logStream == nil {
		return
	}
	out, err := yaml.Marshal([]LogIteration{newLogIteration(iteration, perm, ins, final)})
	if err != nil {
		log.Err(err).Msg("marshal-log-iteration")
		return
	}
	if _, err := s.logStream.Write(out); err != nil {
		log.Err(err).Msg("write-log-iteration")
	}
}

// runOne replays perm to completion before touching any shared state, so a
// failed drop leaves the accumulator and counter as they were. A nil perm
// is drawn from the sampler.
func (s *Simulator) runOne(perm []board.PieceID) ([]Insertion, *board.Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if perm == nil {
		perm = s.nextPermutation()
	}
	iteration := s.nextIteration()
	ins, final, err := Replay(s.ref, perm)
	if err != nil {
		log.Error().Err(err).Int("iteration", iteration).Msg("iteration-aborted")
		return nil, nil, fmt.Errorf("iteration %d aborted: %w", iteration, err)
	}
	for _, in := range ins {
		s.acc.Add(in.PieceID, in.Marginal())
	}
	s.finishIteration(iteration, perm, ins, final)
	return ins, final, nil
}

func (s *Simulator) runBatch(ctx context.Context, k int) (int, error) {
	for i := range k {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if _, _, err := s.runOne(nil); err != nil {
			return i, err
		}
	}
	return k, nil
}

// RunIterations synchronously runs k full iterations without emitting
// events. It stops early if ctx is done or an iteration fails.
func (s *Simulator) RunIterations(ctx context.Context, k int) error {
	if s.IsSimming() {
		return ErrSimming
	}
	done, err := s.runBatch(ctx, k)
	zerolog.Ctx(ctx).Debug().Int("requested", k).Int("done", done).
		Uint64("total", s.iterationCount.Load()).Msg("ran-iterations")
	return err
}

// ReplayPermutation runs one full iteration with a caller-chosen order and
// returns its insertions and final working board.
func (s *Simulator) ReplayPermutation(ctx context.Context, perm []board.PieceID) ([]Insertion, *board.Board, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if s.IsSimming() {
		return nil, nil, ErrSimming
	}
	if err := permutation.Validate(perm, s.ids); err != nil {
		return nil, nil, err
	}
	return s.runOne(perm)
}

// Simulate runs iterations until ctx is done, the stopping condition is
// met, or the iterations cutoff is reached. It is a blocking function;
// cancellation is not an error.
func (s *Simulator) Simulate(ctx context.Context) error {
	logger := zerolog.Ctx(ctx)
	if !s.simming.CompareAndSwap(false, true) {
		return ErrSimming
	}
	defer func() {
		s.simming.Store(false)
		logger.Info().Uint64("iterationCt", s.iterationCount.Load()).Msg("sim-ended")
	}()

	s.mu.RLock()
	as := *s.autostopper
	s.mu.RUnlock()
	for {
		n := s.iterationCount.Load()
		if as.iterationsCutoff > 0 && n >= as.iterationsCutoff {
			logger.Info().Uint64("numIters", n).Msg("reached iterations cutoff")
			return nil
		}
		batch := as.stopConditionCheckInterval
		if as.iterationsCutoff > 0 {
			batch = min(batch, as.iterationsCutoff-n)
		}
		_, err := s.runBatch(ctx, int(batch))
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			logger.Debug().AnErr("ctxErr", err).Msg("shapley-it's ok, not an error")
			return nil
		}
		if err != nil {
			return err
		}
		n = s.iterationCount.Load()
		if as.stoppingCondition == StopNone {
			continue
		}
		s.mu.RLock()
		stop := as.shouldStop(n, s.acc)
		s.mu.RUnlock()
		if stop {
			logger.Info().Uint64("numIters", n).Msg("reached stopping condition")
			return nil
		}
	}
}

// TotalIterations counts completed iterations since the last Reset.
func (s *Simulator) TotalIterations() int {
	return int(s.iterationCount.Load())
}

// AverageContributions maps every piece id to its current estimate.
func (s *Simulator) AverageContributions() map[board.PieceID]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.acc.Averages()
}

// Stat returns a copy of the marginal statistic for one piece.
func (s *Simulator) Stat(id board.PieceID) stats.Statistic {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.acc.Stat(id)
}

// FinalHeights summarizes the final stack height of completed iterations.
func (s *Simulator) FinalHeights() *stats.Statistic {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.finalHeights
	return &st
}

func (s *Simulator) HeightSamples() []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]float64, len(s.heightSamples))
	copy(out, s.heightSamples)
	return out
}

// Reset clears the accumulated statistics and the iteration counter. The
// reference board and the sampler's progression are kept, and any stepper
// started before the reset becomes stale. It fails with ErrSimming while
// Simulate runs.
func (s *Simulator) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.IsSimming() {
		return ErrSimming
	}
	s.acc.Reset()
	s.iterationCount.Store(0)
	s.finalHeights.Reset()
	s.heightSamples = nil
	s.epoch++
	return nil
}
