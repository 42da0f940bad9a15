package board

import (
	"errors"
	"strings"
	"testing"

	"github.com/matryer/is"
	"github.com/stretchr/testify/assert"
)

// scenarioBoard builds the three-piece board used throughout the tests:
// A={(0,0)} at column 0, B={(0,0),(1,0)} at column 1, C={(0,0),(0,1)} at
// column 0, on a width-4 board.
func scenarioBoard(t testing.TB) *Board {
	b, err := New(4, 8)
	if err != nil {
		t.Fatal(err)
	}
	pieces := []*Piece{
		{ID: 0, Col: 0, Shape: MustShape(Offset{0, 0}), Color: "red"},
		{ID: 1, Col: 1, Shape: MustShape(Offset{0, 0}, Offset{1, 0}), Color: "green"},
		{ID: 2, Col: 0, Shape: MustShape(Offset{0, 0}, Offset{0, 1}), Color: "blue"},
	}
	for _, p := range pieces {
		if _, err := b.AddPiece(p); err != nil {
			t.Fatal(err)
		}
	}
	return b
}

func TestNewShapeNormalizes(t *testing.T) {
	s, err := NewShape(Offset{3, 4}, Offset{2, 3}, Offset{3, 3}, Offset{2, 3})
	assert.NoError(t, err)
	assert.Equal(t, Shape{{0, 0}, {1, 0}, {1, 1}}, s)
	assert.Equal(t, 2, s.Width())
	assert.Equal(t, 2, s.Height())
}

func TestNewShapeEmpty(t *testing.T) {
	is := is.New(t)
	_, err := NewShape()
	is.True(errors.Is(err, ErrEmptyShape))
}

func TestNewBoardInvalidDimensions(t *testing.T) {
	is := is.New(t)
	_, err := New(0, 5)
	is.True(errors.Is(err, ErrInvalidDimensions))
	_, err = New(5, -1)
	is.True(errors.Is(err, ErrInvalidDimensions))
}

func TestDropScenario(t *testing.T) {
	is := is.New(t)
	b, err := New(4, 8)
	is.NoErr(err)

	h, err := b.AddPiece(&Piece{ID: 0, Col: 0, Shape: MustShape(Offset{0, 0})})
	is.NoErr(err)
	is.Equal(h, 1)

	h, err = b.AddPiece(&Piece{ID: 1, Col: 1, Shape: MustShape(Offset{0, 0}, Offset{1, 0})})
	is.NoErr(err)
	is.Equal(h, 1)
	is.Equal(b.Cell(1, 0).PieceID(), PieceID(1))
	is.Equal(b.Cell(2, 0).PieceID(), PieceID(1))

	h, err = b.AddPiece(&Piece{ID: 2, Col: 0, Shape: MustShape(Offset{0, 0}, Offset{0, 1})})
	is.NoErr(err)
	is.Equal(h, 3)
	is.Equal(b.Cell(0, 1).PieceID(), PieceID(2))
	is.Equal(b.Cell(0, 2).PieceID(), PieceID(2))
	is.Equal(b.ColumnHeight(0), 3)
	is.Equal(b.ColumnHeight(3), 0)
	is.True(!b.Cell(3, 0).Occupied())
	is.Equal(b.Cell(3, 0).PieceID(), NoPiece)
}

func TestDropUsesLowestCellPerColumn(t *testing.T) {
	is := is.New(t)
	b, err := New(3, 8)
	is.NoErr(err)
	_, err = b.AddPiece(&Piece{ID: 0, Col: 0, Shape: MustShape(Offset{0, 0}, Offset{0, 1})})
	is.NoErr(err)
	// col 0 lowest row is 1, col 1 lowest row is 0. Column heights are 2 and
	// 0, so the anchor rests at max(2-1, 0-0) = 1.
	s := MustShape(Offset{1, 0}, Offset{0, 1}, Offset{1, 1})
	h, err := b.AddPiece(&Piece{ID: 1, Col: 0, Shape: s})
	is.NoErr(err)
	is.Equal(h, 3)
	is.Equal(b.Cell(1, 1).PieceID(), PieceID(1))
	is.Equal(b.Cell(0, 2).PieceID(), PieceID(1))
	is.Equal(b.Cell(1, 2).PieceID(), PieceID(1))
	is.True(!b.Cell(1, 0).Occupied())
}

func TestDropOutOfBoundsTop(t *testing.T) {
	is := is.New(t)
	b, err := New(2, 2)
	is.NoErr(err)
	vert := MustShape(Offset{0, 0}, Offset{0, 1})
	_, err = b.AddPiece(&Piece{ID: 0, Col: 0, Shape: vert})
	is.NoErr(err)
	before := b.Hash()

	_, err = b.AddPiece(&Piece{ID: 1, Col: 0, Shape: vert})
	var oob *OutOfBoundsError
	is.True(errors.As(err, &oob))
	is.Equal(oob.Piece, PieceID(1))
	is.Equal(oob.Row, 2)
	// board unchanged, piece not registered
	is.Equal(b.Hash(), before)
	is.Equal(b.NumPieces(), 1)
	is.Equal(b.StackHeight(), 2)
}

func TestDropOutOfBoundsColumn(t *testing.T) {
	is := is.New(t)
	b, err := New(4, 4)
	is.NoErr(err)
	_, err = b.AddPiece(&Piece{ID: 0, Col: 3, Shape: MustShape(Offset{0, 0}, Offset{1, 0})})
	var oob *OutOfBoundsError
	is.True(errors.As(err, &oob))
	is.Equal(oob.Col, 4)
	is.True(b.IsEmpty())
}

func TestDropUnknownAndPlaced(t *testing.T) {
	is := is.New(t)
	b := scenarioBoard(t)
	_, err := b.Drop(42)
	is.True(errors.Is(err, ErrUnknownPiece))
	_, err = b.Drop(0)
	is.True(errors.Is(err, ErrAlreadyPlaced))
	_, err = b.AddPiece(&Piece{ID: 1, Col: 3, Shape: MustShape(Offset{0, 0})})
	is.True(errors.Is(err, ErrDuplicatePiece))
}

func TestCloneEmpty(t *testing.T) {
	is := is.New(t)
	b := scenarioBoard(t)
	refHash := b.Hash()

	w := b.CloneEmpty()
	is.True(w.IsEmpty())
	is.Equal(w.Width(), 4)
	is.Equal(w.Height(), 8)
	assert.Equal(t, b.PieceIDs(), w.PieceIDs())

	for _, id := range []PieceID{2, 1, 0} {
		_, err := w.Drop(id)
		is.NoErr(err)
	}
	// C first puts column 0 at 2, then B lands on row 0, then A on top of C.
	is.Equal(w.StackHeight(), 3)
	is.Equal(w.Cell(0, 2).PieceID(), PieceID(0))
	is.Equal(b.Hash(), refHash)

	_, err := w.AddPiece(&Piece{ID: 9, Col: 0, Shape: MustShape(Offset{0, 0})})
	is.True(errors.Is(err, ErrPieceSetFixed))
	is.Equal(b.NumPieces(), 3)
}

func TestCloneEmptyKeepsPieceSetSnapshot(t *testing.T) {
	is := is.New(t)
	b, err := New(8, 8)
	is.NoErr(err)
	for _, id := range []PieceID{5, 7, 9} {
		_, err := b.AddPiece(&Piece{ID: id, Col: int(id) - 5, Shape: MustShape(Offset{0, 0})})
		is.NoErr(err)
	}
	w := b.CloneEmpty()

	// a lower id is inserted at the front of the source's order
	_, err = b.AddPiece(&Piece{ID: 2, Col: 6, Shape: MustShape(Offset{0, 0})})
	is.NoErr(err)
	assert.Equal(t, []PieceID{2, 5, 7, 9}, b.PieceIDs())
	assert.Equal(t, []PieceID{5, 7, 9}, w.PieceIDs())
	_, ok := w.Piece(2)
	is.True(!ok)
}

func TestCloneIsIndependent(t *testing.T) {
	is := is.New(t)
	b := scenarioBoard(t)
	c := b.Clone()
	is.Equal(c.Hash(), b.Hash())
	is.Equal(c.StackHeight(), b.StackHeight())

	_, err := c.AddPiece(&Piece{ID: 3, Col: 3, Shape: MustShape(Offset{0, 0})})
	is.NoErr(err)
	is.Equal(c.NumPieces(), 4)
	is.Equal(b.NumPieces(), 3)
	is.True(c.Hash() != b.Hash())
}

func TestOccupiedCellsMatchShapes(t *testing.T) {
	is := is.New(t)
	b, err := GenerateFromSeed(99, DefaultGenOptions())
	is.NoErr(err)
	counts := map[PieceID]int{}
	for r := 0; r < b.Height(); r++ {
		for c := 0; c < b.Width(); c++ {
			if cell := b.Cell(c, r); cell.Occupied() {
				_, ok := b.Piece(cell.PieceID())
				is.True(ok)
				counts[cell.PieceID()]++
			}
		}
	}
	for _, id := range b.PieceIDs() {
		p, _ := b.Piece(id)
		is.Equal(counts[id], len(p.Shape))
	}
}

func TestToDisplayText(t *testing.T) {
	is := is.New(t)
	b := scenarioBoard(t)
	txt := b.ToDisplayText(1)
	is.True(strings.Contains(txt, "h=3"))
	is.True(strings.Contains(txt, "*1"))
	is.Equal(strings.Count(txt, "\n"), 4)
}

func BenchmarkDrop(b *testing.B) {
	ref, err := GenerateFromSeed(12345, DefaultGenOptions())
	if err != nil {
		b.Fatal(err)
	}
	ids := ref.PieceIDs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w := ref.CloneEmpty()
		for _, id := range ids {
			if _, err := w.Drop(id); err != nil {
				b.Fatal(err)
			}
		}
	}
}
