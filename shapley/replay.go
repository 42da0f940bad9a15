package shapley

import (
	"github.com/domino14/shapstack/board"
)

// Insertion is the result of dropping one piece onto a partially built
// stack.
type Insertion struct {
	PieceID      board.PieceID `yaml:"piece"`
	HeightBefore int           `yaml:"before"`
	HeightAfter  int           `yaml:"after"`
}

// Marginal is the height increase the piece caused.
func (in Insertion) Marginal() int {
	return in.HeightAfter - in.HeightBefore
}

func insert(work *board.Board, id board.PieceID) (Insertion, error) {
	before := work.StackHeight()
	after, err := work.Drop(id)
	if err != nil {
		return Insertion{}, err
	}
	return Insertion{PieceID: id, HeightBefore: before, HeightAfter: after}, nil
}

// Replay drops the pieces of ref in perm order onto an empty copy of ref and
// reports every insertion. ref is not modified. On error, the insertions
// made before the failing drop are returned along with the error.
func Replay(ref *board.Board, perm []board.PieceID) ([]Insertion, *board.Board, error) {
	work := ref.CloneEmpty()
	ins := make([]Insertion, 0, len(perm))
	for _, id := range perm {
		in, err := insert(work, id)
		if err != nil {
			return ins, work, err
		}
		ins = append(ins, in)
	}
	return ins, work, nil
}
