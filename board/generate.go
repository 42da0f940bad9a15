package board

import (
	"github.com/rs/zerolog/log"

	"github.com/domino14/shapstack/rng"
)

const maxGenAttempts = 10000

// GenOptions controls reference board generation.
type GenOptions struct {
	Width  int
	Height int
	// MaxPieces is the target piece count.
	MaxPieces int
	// HeightBudget caps the summed vertical extent of all generated pieces.
	// 0 means the board height. Since a drop raises the stack by at most
	// the piece's own height, keeping the sum within the board height means
	// every insertion order fits.
	HeightBudget int
}

func DefaultGenOptions() GenOptions {
	return GenOptions{Width: 8, Height: 32, MaxPieces: 10}
}

// Shapes is the catalog generation samples from: the monomino, dominoes,
// trominoes and tetrominoes in their distinct rotations.
var Shapes = []Shape{
	MustShape(Offset{0, 0}),
	// dominoes
	MustShape(Offset{0, 0}, Offset{1, 0}),
	MustShape(Offset{0, 0}, Offset{0, 1}),
	// trominoes
	MustShape(Offset{0, 0}, Offset{1, 0}, Offset{2, 0}),
	MustShape(Offset{0, 0}, Offset{0, 1}, Offset{0, 2}),
	MustShape(Offset{0, 0}, Offset{1, 0}, Offset{0, 1}),
	MustShape(Offset{0, 0}, Offset{1, 0}, Offset{1, 1}),
	MustShape(Offset{0, 0}, Offset{0, 1}, Offset{1, 1}),
	MustShape(Offset{1, 0}, Offset{0, 1}, Offset{1, 1}),
	// O
	MustShape(Offset{0, 0}, Offset{1, 0}, Offset{0, 1}, Offset{1, 1}),
	// I
	MustShape(Offset{0, 0}, Offset{1, 0}, Offset{2, 0}, Offset{3, 0}),
	MustShape(Offset{0, 0}, Offset{0, 1}, Offset{0, 2}, Offset{0, 3}),
	// T
	MustShape(Offset{0, 0}, Offset{1, 0}, Offset{2, 0}, Offset{1, 1}),
	MustShape(Offset{1, 0}, Offset{0, 1}, Offset{1, 1}, Offset{2, 1}),
	MustShape(Offset{0, 0}, Offset{0, 1}, Offset{0, 2}, Offset{1, 1}),
	MustShape(Offset{1, 0}, Offset{1, 1}, Offset{1, 2}, Offset{0, 1}),
	// S, Z
	MustShape(Offset{0, 0}, Offset{1, 0}, Offset{1, 1}, Offset{2, 1}),
	MustShape(Offset{1, 0}, Offset{2, 0}, Offset{0, 1}, Offset{1, 1}),
	MustShape(Offset{1, 0}, Offset{1, 1}, Offset{0, 1}, Offset{0, 2}),
	MustShape(Offset{0, 0}, Offset{0, 1}, Offset{1, 1}, Offset{1, 2}),
	// L, J
	MustShape(Offset{0, 0}, Offset{1, 0}, Offset{2, 0}, Offset{2, 1}),
	MustShape(Offset{0, 0}, Offset{1, 0}, Offset{2, 0}, Offset{0, 1}),
	MustShape(Offset{0, 0}, Offset{0, 1}, Offset{0, 2}, Offset{1, 0}),
	MustShape(Offset{0, 0}, Offset{1, 0}, Offset{1, 1}, Offset{1, 2}),
}

// Palette holds the display colors pieces are assigned from.
var Palette = []string{
	"#ff6b6b", "#feca57", "#48dbfb", "#1dd1a1", "#5f27cd",
	"#ff9ff3", "#54a0ff", "#00d2d3", "#ff9f43", "#c8d6e5",
}

// Generate builds a reference board by repeatedly sampling a shape, a color
// and a column where the shape fits horizontally, and dropping the piece.
// IDs are assigned sequentially from 0.
func Generate(src rng.Source, opts GenOptions) (*Board, error) {
	b, err := New(opts.Width, opts.Height)
	if err != nil {
		return nil, err
	}
	budget := opts.HeightBudget
	if budget <= 0 || budget > opts.Height {
		budget = opts.Height
	}
	used := 0
	for attempts := 0; b.NumPieces() < opts.MaxPieces && attempts < maxGenAttempts; attempts++ {
		shape := Shapes[src.Intn(len(Shapes))]
		color := Palette[src.Intn(len(Palette))]
		if shape.Width() > opts.Width {
			continue
		}
		if used+shape.Height() > budget {
			log.Debug().Int("pieces", b.NumPieces()).Int("used", used).
				Msg("height budget reached")
			break
		}
		col := src.Intn(opts.Width - shape.Width() + 1)
		p := &Piece{ID: PieceID(b.NumPieces()), Col: col, Shape: shape, Color: color}
		if _, err := b.AddPiece(p); err != nil {
			return nil, err
		}
		used += shape.Height()
	}
	return b, nil
}

// GenerateFromSeed is Generate with a fresh seeded source.
func GenerateFromSeed(seed int64, opts GenOptions) (*Board, error) {
	return Generate(rng.New(seed), opts)
}
