// Package permutation samples uniformly random orderings of a board's piece
// set, one Monte Carlo sample per ordering.
package permutation

import (
	"fmt"

	"github.com/domino14/shapstack/board"
	"github.com/domino14/shapstack/rng"
)

// InvalidPermutationError means an ordering does not contain every piece id
// of the board exactly once.
type InvalidPermutationError struct {
	Reason string
	Piece  board.PieceID
}

func (e *InvalidPermutationError) Error() string {
	if e.Piece == board.NoPiece {
		return "invalid permutation: " + e.Reason
	}
	return fmt.Sprintf("invalid permutation: %s (piece #%d)", e.Reason, e.Piece)
}

// Sampler produces Fisher–Yates shuffles of a fixed id set. Each call to Next
// advances the underlying source.
type Sampler struct {
	src rng.Source
	ids []board.PieceID
}

func NewSampler(ids []board.PieceID, src rng.Source) *Sampler {
	c := make([]board.PieceID, len(ids))
	copy(c, ids)
	return &Sampler{src: src, ids: c}
}

func (s *Sampler) Len() int {
	return len(s.ids)
}

// Next returns a fresh permutation.
func (s *Sampler) Next() []board.PieceID {
	perm := make([]board.PieceID, len(s.ids))
	copy(perm, s.ids)
	for i := len(perm) - 1; i > 0; i-- {
		j := s.src.Intn(i + 1)
		perm[i], perm[j] = perm[j], perm[i]
	}
	return perm
}

// Validate checks that perm is a bijection onto ids.
func Validate(perm, ids []board.PieceID) error {
	if len(perm) != len(ids) {
		return &InvalidPermutationError{
			Reason: fmt.Sprintf("length %d, want %d", len(perm), len(ids)),
			Piece:  board.NoPiece,
		}
	}
	want := make(map[board.PieceID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	seen := make(map[board.PieceID]bool, len(perm))
	for _, id := range perm {
		if !want[id] {
			return &InvalidPermutationError{Reason: "unknown id", Piece: id}
		}
		if seen[id] {
			return &InvalidPermutationError{Reason: "duplicate id", Piece: id}
		}
		seen[id] = true
	}
	return nil
}
