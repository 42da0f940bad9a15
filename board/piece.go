package board

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// PieceID identifies a piece for the lifetime of a board. IDs are assigned
// sequentially at generation time.
type PieceID int

// Offset is a cell position relative to a piece's anchor cell.
type Offset struct {
	Col int
	Row int
}

// A Shape is a normalized set of offsets: the minimum row and the minimum
// column are both 0, and offsets are sorted by (Row, Col) with no repeats.
type Shape []Offset

var ErrEmptyShape = errors.New("shape has no cells")

// NewShape normalizes the given offsets into a Shape.
func NewShape(offsets ...Offset) (Shape, error) {
	if len(offsets) == 0 {
		return nil, ErrEmptyShape
	}
	minCol, minRow := offsets[0].Col, offsets[0].Row
	for _, o := range offsets[1:] {
		minCol = min(minCol, o.Col)
		minRow = min(minRow, o.Row)
	}
	seen := make(map[Offset]bool, len(offsets))
	s := make(Shape, 0, len(offsets))
	for _, o := range offsets {
		n := Offset{Col: o.Col - minCol, Row: o.Row - minRow}
		if seen[n] {
			continue
		}
		seen[n] = true
		s = append(s, n)
	}
	sort.Slice(s, func(i, j int) bool {
		if s[i].Row == s[j].Row {
			return s[i].Col < s[j].Col
		}
		return s[i].Row < s[j].Row
	})
	return s, nil
}

// MustShape is like NewShape but panics on error. Meant for static tables.
func MustShape(offsets ...Offset) Shape {
	s, err := NewShape(offsets...)
	if err != nil {
		panic(err)
	}
	return s
}

// Width is the number of columns the shape spans.
func (s Shape) Width() int {
	w := 0
	for _, o := range s {
		w = max(w, o.Col+1)
	}
	return w
}

// Height is the number of rows the shape spans.
func (s Shape) Height() int {
	h := 0
	for _, o := range s {
		h = max(h, o.Row+1)
	}
	return h
}

// bottomProfile returns, for each column offset the shape touches, the
// lowest row offset of the shape in that column.
func (s Shape) bottomProfile() map[int]int {
	prof := make(map[int]int, len(s))
	for _, o := range s {
		if r, ok := prof[o.Col]; !ok || o.Row < r {
			prof[o.Col] = o.Row
		}
	}
	return prof
}

func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, o := range s {
		parts[i] = fmt.Sprintf("(%d,%d)", o.Col, o.Row)
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// A Piece is immutable once created. Col is the anchor column the piece
// was generated at; drops keep the column and only derive the row.
type Piece struct {
	ID    PieceID
	Col   int
	Shape Shape
	// Color is a display attribute only.
	Color string
}

func (p *Piece) String() string {
	return fmt.Sprintf("<piece #%d col=%d shape=%v>", p.ID, p.Col, p.Shape)
}
