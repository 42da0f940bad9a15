package board

import (
	"testing"

	"github.com/matryer/is"

	"github.com/domino14/shapstack/rng"
)

func TestGenerateDeterministic(t *testing.T) {
	is := is.New(t)
	opts := DefaultGenOptions()
	a, err := GenerateFromSeed(12345, opts)
	is.NoErr(err)
	b, err := GenerateFromSeed(12345, opts)
	is.NoErr(err)
	is.Equal(a.Hash(), b.Hash())
	is.Equal(a.NumPieces(), b.NumPieces())
	for _, id := range a.PieceIDs() {
		pa, _ := a.Piece(id)
		pb, _ := b.Piece(id)
		is.Equal(pa.Col, pb.Col)
		is.Equal(pa.Shape.String(), pb.Shape.String())
		is.Equal(pa.Color, pb.Color)
	}
}

func TestGenerateSequentialIDs(t *testing.T) {
	is := is.New(t)
	b, err := GenerateFromSeed(1, DefaultGenOptions())
	is.NoErr(err)
	is.True(b.NumPieces() > 0)
	is.True(b.NumPieces() <= DefaultGenOptions().MaxPieces)
	for i, id := range b.PieceIDs() {
		is.Equal(id, PieceID(i))
		is.True(b.Placed(id))
	}
}

func TestGenerateRespectsHeightBudget(t *testing.T) {
	is := is.New(t)
	opts := GenOptions{Width: 6, Height: 20, MaxPieces: 100, HeightBudget: 7}
	for seed := int64(0); seed < 20; seed++ {
		b, err := GenerateFromSeed(seed, opts)
		is.NoErr(err)
		total := 0
		for _, id := range b.PieceIDs() {
			p, _ := b.Piece(id)
			total += p.Shape.Height()
		}
		is.True(total <= 7)
	}
}

// Any insertion order of a generated piece set must fit on the board.
func TestGeneratedSetFitsInAnyOrder(t *testing.T) {
	is := is.New(t)
	opts := GenOptions{Width: 5, Height: 12, MaxPieces: 40}
	src := rng.New(4)
	for seed := int64(0); seed < 10; seed++ {
		ref, err := GenerateFromSeed(seed, opts)
		is.NoErr(err)
		for trial := 0; trial < 20; trial++ {
			ids := ref.PieceIDs()
			for i := len(ids) - 1; i > 0; i-- {
				j := src.Intn(i + 1)
				ids[i], ids[j] = ids[j], ids[i]
			}
			w := ref.CloneEmpty()
			for _, id := range ids {
				_, err := w.Drop(id)
				is.NoErr(err)
			}
		}
	}
}

func TestGenerateZeroPieces(t *testing.T) {
	is := is.New(t)
	b, err := GenerateFromSeed(5, GenOptions{Width: 4, Height: 4})
	is.NoErr(err)
	is.Equal(b.NumPieces(), 0)
	is.True(b.IsEmpty())
}
