package shapley

import (
	"github.com/domino14/shapstack/board"
	"github.com/domino14/shapstack/stats"
)

// Accumulator keeps the running marginal contributions per piece. The mean
// of a piece's marginals is its Shapley estimate.
type Accumulator struct {
	ids   []board.PieceID
	stats map[board.PieceID]*stats.Statistic
}

func NewAccumulator(ids []board.PieceID) *Accumulator {
	a := &Accumulator{
		ids:   make([]board.PieceID, len(ids)),
		stats: make(map[board.PieceID]*stats.Statistic, len(ids)),
	}
	copy(a.ids, ids)
	for _, id := range ids {
		a.stats[id] = &stats.Statistic{}
	}
	return a
}

func (a *Accumulator) Add(id board.PieceID, marginal int) {
	st, ok := a.stats[id]
	if !ok {
		st = &stats.Statistic{}
		a.stats[id] = st
		a.ids = append(a.ids, id)
	}
	st.Push(float64(marginal))
}

// Average is 0 for a piece that has not been inserted yet.
func (a *Accumulator) Average(id board.PieceID) float64 {
	st, ok := a.stats[id]
	if !ok {
		return 0
	}
	return st.Mean()
}

// Averages returns a fresh map holding every known piece.
func (a *Accumulator) Averages() map[board.PieceID]float64 {
	m := make(map[board.PieceID]float64, len(a.ids))
	for _, id := range a.ids {
		m[id] = a.stats[id].Mean()
	}
	return m
}

// Stat returns a copy of the statistic for id.
func (a *Accumulator) Stat(id board.PieceID) stats.Statistic {
	st, ok := a.stats[id]
	if !ok {
		return stats.Statistic{}
	}
	return *st
}

func (a *Accumulator) IDs() []board.PieceID {
	ids := make([]board.PieceID, len(a.ids))
	copy(ids, a.ids)
	return ids
}

func (a *Accumulator) Reset() {
	for _, st := range a.stats {
		st.Reset()
	}
}
