package shapley

import (
	"github.com/rs/zerolog/log"

	"github.com/domino14/shapstack/board"
	"github.com/domino14/shapstack/stats"
)

type StoppingCondition int

const (
	StopNone StoppingCondition = iota
	Stop90
	Stop95
	Stop98
	Stop99
)

const (
	defaultStopTolerance  = 0.05
	defaultCheckInterval  = 100
	defaultItersCutoff    = 20000
	minSamplesBeforeCheck = 2
)

func (sc StoppingCondition) zval() float64 {
	switch sc {
	case Stop90:
		return stats.Z90
	case Stop95:
		return stats.Z95
	case Stop98:
		return stats.Z98
	case Stop99:
		return stats.Z99
	}
	return 0
}

// StoppingConditionFromPercent maps 90, 95, 98 or 99 to a condition.
// Anything else means no early stop.
func StoppingConditionFromPercent(pct int) StoppingCondition {
	switch pct {
	case 90:
		return Stop90
	case 95:
		return Stop95
	case 98:
		return Stop98
	case 99:
		return Stop99
	}
	return StopNone
}

// AutoStopper decides when a long-running simulation has converged: every
// piece's confidence half-width must be below the tolerance.
type AutoStopper struct {
	stoppingCondition          StoppingCondition
	tolerance                  float64
	stopConditionCheckInterval uint64
	iterationsCutoff           uint64
}

func newAutostopper() *AutoStopper {
	return &AutoStopper{
		stoppingCondition:          StopNone,
		tolerance:                  defaultStopTolerance,
		stopConditionCheckInterval: defaultCheckInterval,
		iterationsCutoff:           defaultItersCutoff,
	}
}

func (a *AutoStopper) shouldStop(iterationCount uint64, acc *Accumulator) bool {
	if a.iterationsCutoff > 0 && iterationCount >= a.iterationsCutoff {
		log.Debug().Uint64("iterations", iterationCount).Msg("iterations-cutoff-reached")
		return true
	}
	z := a.stoppingCondition.zval()
	var worst board.PieceID = board.NoPiece
	widest := 0.0
	for _, id := range acc.IDs() {
		st := acc.Stat(id)
		if st.Iterations() < minSamplesBeforeCheck {
			return false
		}
		if hw := z * st.StandardError(); hw > widest {
			widest, worst = hw, id
		}
	}
	if widest >= a.tolerance {
		log.Debug().Int("piece", int(worst)).Float64("halfwidth", widest).Msg("not-converged")
		return false
	}
	return true
}
