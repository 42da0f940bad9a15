package shapley

import (
	"errors"
	"fmt"
	"iter"

	"github.com/rs/zerolog/log"

	"github.com/domino14/shapstack/board"
)

var (
	ErrStepperExhausted = errors.New("iteration already finished; start a new one")
	ErrStaleStepper     = errors.New("simulator was reset after this iteration started")
)

type EventType int

const (
	EventStart EventType = iota
	EventStep
	EventEnd
)

func (t EventType) String() string {
	switch t {
	case EventStart:
		return "start"
	case EventStep:
		return "step"
	case EventEnd:
		return "end"
	}
	return "unknown"
}

// Event is what a Stepper yields. Board is a snapshot of the working board
// and stays valid after later events. PieceID, HeightBefore and HeightAfter
// are only meaningful for step events; HeightAfter is also the final
// height on the end event.
type Event struct {
	Type          EventType
	Iteration     int
	Board         *board.Board
	PieceID       board.PieceID
	HeightBefore  int
	HeightAfter   int
	Contributions map[board.PieceID]float64
}

type stepperState int

const (
	stepIdle stepperState = iota
	stepRunning
	stepComplete
	stepExhausted
)

// A Stepper drives one iteration of a Simulator, one event at a time:
// a start event, one step event per insertion, and an end event. Each
// insertion is committed to the simulator's accumulator as it happens, so
// abandoning a Stepper part way leaves a valid accumulator. The iteration
// only counts toward the total once the end event is produced, and its
// events carry the index it would get if it completed at that moment.
type Stepper struct {
	sim        *Simulator
	epoch      uint64
	iteration  int
	perm       []board.PieceID
	work       *board.Board
	insertions []Insertion
	idx        int
	state      stepperState
}

// Permutation returns the insertion order of this iteration. For a sampled
// iteration it is nil until the start event.
func (st *Stepper) Permutation() []board.PieceID {
	if st.perm == nil {
		return nil
	}
	p := make([]board.PieceID, len(st.perm))
	copy(p, st.perm)
	return p
}

// Done reports whether the stepper has produced its end event, hit an
// error, or been abandoned.
func (st *Stepper) Done() bool {
	return st.state == stepExhausted
}

// Abandon drops the iteration. Insertions already performed stay recorded.
func (st *Stepper) Abandon() {
	st.state = stepExhausted
	st.work = nil
}

// Next advances the iteration by one event.
func (st *Stepper) Next() (Event, error) {
	if st.state == stepExhausted {
		return Event{}, ErrStepperExhausted
	}
	st.sim.mu.Lock()
	defer st.sim.mu.Unlock()
	if st.epoch != st.sim.epoch {
		st.Abandon()
		return Event{}, ErrStaleStepper
	}
	if st.sim.IsSimming() {
		return Event{}, ErrSimming
	}
	// Batch iterations may have completed since the last event.
	st.iteration = st.sim.nextIteration()

	switch st.state {
	case stepIdle:
		if st.perm == nil {
			st.perm = st.sim.nextPermutation()
		}
		st.work = st.sim.ref.CloneEmpty()
		st.state = stepRunning
		return Event{
			Type:      EventStart,
			Iteration: st.iteration,
			Board:     st.work.Clone(),
			PieceID:   board.NoPiece,
		}, nil

	case stepRunning:
		in, err := insert(st.work, st.perm[st.idx])
		if err != nil {
			log.Error().Err(err).Int("iteration", st.iteration).Int("insertion", st.idx).
				Msg("iteration-aborted")
			st.Abandon()
			return Event{}, fmt.Errorf("iteration %d aborted: %w", st.iteration, err)
		}
		st.sim.acc.Add(in.PieceID, in.Marginal())
		st.insertions = append(st.insertions, in)
		st.idx++
		if st.idx == len(st.perm) {
			st.state = stepComplete
		}
		return Event{
			Type:          EventStep,
			Iteration:     st.iteration,
			Board:         st.work.Clone(),
			PieceID:       in.PieceID,
			HeightBefore:  in.HeightBefore,
			HeightAfter:   in.HeightAfter,
			Contributions: st.sim.acc.Averages(),
		}, nil

	default:
		// stepComplete
		st.sim.finishIteration(st.iteration, st.perm, st.insertions, st.work)
		ev := Event{
			Type:          EventEnd,
			Iteration:     st.iteration,
			Board:         st.work,
			PieceID:       board.NoPiece,
			HeightAfter:   st.work.StackHeight(),
			Contributions: st.sim.acc.Averages(),
		}
		st.state = stepExhausted
		st.work = nil
		return ev, nil
	}
}

// All yields the remaining events. Iteration stops after the first error.
func (st *Stepper) All() iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for !st.Done() {
			ev, err := st.Next()
			if !yield(ev, err) || err != nil {
				return
			}
		}
	}
}
