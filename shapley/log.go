package shapley

import (
	"fmt"

	"github.com/domino14/shapstack/board"
)

// LogIteration is a struct meant for serializing to a log-file, for debug
// and analysis purposes. One is written per finished iteration.
type LogIteration struct {
	Iteration   int             `yaml:"iteration"`
	Permutation []board.PieceID `yaml:"permutation,flow"`
	Insertions  []Insertion     `yaml:"insertions"`
	Height      int             `yaml:"height"`
	Hash        string          `yaml:"hash"`
}

func newLogIteration(iteration int, perm []board.PieceID, ins []Insertion, final *board.Board) LogIteration {
	p := make([]board.PieceID, len(perm))
	copy(p, perm)
	in := make([]Insertion, len(ins))
	copy(in, ins)
	return LogIteration{
		Iteration:   iteration,
		Permutation: p,
		Insertions:  in,
		Height:      final.StackHeight(),
		Hash:        fmt.Sprintf("%016x", final.Hash()),
	}
}
