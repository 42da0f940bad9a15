// Package board implements the grid that pieces are stacked on, the gravity
// drop rule, and deterministic generation of reference boards.
package board

import (
	"encoding/binary"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash"
)

// NoPiece is used where a piece id is optional, e.g. for highlighting.
const NoPiece PieceID = -1

var (
	ErrInvalidDimensions = errors.New("board dimensions must be positive")
	ErrUnknownPiece      = errors.New("piece is not part of this board")
	ErrAlreadyPlaced     = errors.New("piece is already on the board")
	ErrDuplicatePiece    = errors.New("a piece with this id already exists")
	ErrPieceSetFixed     = errors.New("piece set is shared with another board and cannot grow")
)

// OutOfBoundsError is returned when a piece's resting position would put
// one of its cells outside the grid. It means the board is too small for
// the piece set; the drop is never clipped.
type OutOfBoundsError struct {
	Piece  PieceID
	Col    int
	Row    int
	Width  int
	Height int
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("piece #%d would occupy (%d,%d), outside a %dx%d board",
		e.Piece, e.Col, e.Row, e.Width, e.Height)
}

// A Cell is either empty or occupied by exactly one piece.
type Cell struct {
	occupied bool
	piece    PieceID
	color    string
}

func (c Cell) Occupied() bool {
	return c.occupied
}

// PieceID returns the occupying piece, or NoPiece.
func (c Cell) PieceID() PieceID {
	if !c.occupied {
		return NoPiece
	}
	return c.piece
}

func (c Cell) Color() string {
	return c.color
}

// Board is a width x height grid; row 0 is the bottom row. Its piece set
// only grows through AddPiece; boards made by CloneEmpty freeze it.
type Board struct {
	width  int
	height int
	grid   [][]Cell
	// colHeights[c] is 1 + the topmost occupied row in column c, or 0.
	colHeights []int
	stack      int

	pieces map[PieceID]*Piece
	order  []PieceID
	placed map[PieceID]bool
	// fixed is set on boards made by CloneEmpty.
	fixed bool
}

// New creates an empty board with no pieces.
func New(width, height int) (*Board, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrInvalidDimensions
	}
	b := &Board{
		width:  width,
		height: height,
		pieces: map[PieceID]*Piece{},
		placed: map[PieceID]bool{},
	}
	b.clearGrid()
	return b, nil
}

func (b *Board) clearGrid() {
	b.grid = make([][]Cell, b.height)
	for r := range b.grid {
		b.grid[r] = make([]Cell, b.width)
	}
	b.colHeights = make([]int, b.width)
	b.stack = 0
}

func (b *Board) Width() int  { return b.width }
func (b *Board) Height() int { return b.height }

// StackHeight is 1 + the highest occupied row, or 0 if the board is empty.
func (b *Board) StackHeight() int {
	return b.stack
}

// ColumnHeight is 1 + the topmost occupied row in col, or 0 if empty.
func (b *Board) ColumnHeight(col int) int {
	return b.colHeights[col]
}

// Cell returns the cell at (col, row). It panics if out of range.
func (b *Board) Cell(col, row int) Cell {
	return b.grid[row][col]
}

func (b *Board) Piece(id PieceID) (*Piece, bool) {
	p, ok := b.pieces[id]
	return p, ok
}

// PieceIDs returns the piece ids in ascending order.
func (b *Board) PieceIDs() []PieceID {
	ids := make([]PieceID, len(b.order))
	copy(ids, b.order)
	return ids
}

func (b *Board) NumPieces() int {
	return len(b.order)
}

// Placed reports whether the piece has been dropped onto this board.
func (b *Board) Placed(id PieceID) bool {
	return b.placed[id]
}

// IsEmpty reports whether no cell is occupied.
func (b *Board) IsEmpty() bool {
	return b.stack == 0
}

// AddPiece registers p with the board and drops it. It is how reference
// boards are built. On error the board is unchanged.
func (b *Board) AddPiece(p *Piece) (int, error) {
	if b.fixed {
		return 0, ErrPieceSetFixed
	}
	if _, ok := b.pieces[p.ID]; ok {
		return 0, ErrDuplicatePiece
	}
	if len(p.Shape) == 0 {
		return 0, ErrEmptyShape
	}
	if err := b.checkFit(p); err != nil {
		return 0, err
	}
	b.pieces[p.ID] = p
	idx := sort.Search(len(b.order), func(i int) bool { return b.order[i] >= p.ID })
	b.order = append(b.order, 0)
	copy(b.order[idx+1:], b.order[idx:])
	b.order[idx] = p.ID
	return b.place(p), nil
}

// Drop places the registered piece id under gravity and returns the new
// stack height.
func (b *Board) Drop(id PieceID) (int, error) {
	p, ok := b.pieces[id]
	if !ok {
		return 0, fmt.Errorf("piece #%d: %w", id, ErrUnknownPiece)
	}
	if b.placed[id] {
		return 0, fmt.Errorf("piece #%d: %w", id, ErrAlreadyPlaced)
	}
	if err := b.checkFit(p); err != nil {
		return 0, err
	}
	return b.place(p), nil
}

// restingRow computes the row of the anchor once the piece has fallen: for
// every column the shape touches, the column height minus the lowest row of
// the shape in that column; the maximum of those wins.
func (b *Board) restingRow(p *Piece) (int, error) {
	rest := 0
	for dc, low := range p.Shape.bottomProfile() {
		col := p.Col + dc
		if col < 0 || col >= b.width {
			return 0, &OutOfBoundsError{Piece: p.ID, Col: col, Row: low,
				Width: b.width, Height: b.height}
		}
		rest = max(rest, b.colHeights[col]-low)
	}
	return rest, nil
}

func (b *Board) checkFit(p *Piece) error {
	rest, err := b.restingRow(p)
	if err != nil {
		return err
	}
	for _, o := range p.Shape {
		if row := rest + o.Row; row >= b.height {
			return &OutOfBoundsError{Piece: p.ID, Col: p.Col + o.Col, Row: row,
				Width: b.width, Height: b.height}
		}
	}
	return nil
}

// place assumes checkFit passed.
func (b *Board) place(p *Piece) int {
	rest, _ := b.restingRow(p)
	for _, o := range p.Shape {
		col, row := p.Col+o.Col, rest+o.Row
		b.grid[row][col] = Cell{occupied: true, piece: p.ID, color: p.Color}
		b.colHeights[col] = max(b.colHeights[col], row+1)
		b.stack = max(b.stack, row+1)
	}
	b.placed[p.ID] = true
	return b.stack
}

// CloneEmpty returns a board with the same dimensions and piece set but an
// empty grid. The receiver is not touched. The clone's piece set is a
// snapshot and is frozen: pieces cannot be added to it, and pieces added to
// the receiver later do not show up in it.
func (b *Board) CloneEmpty() *Board {
	c := &Board{
		width:  b.width,
		height: b.height,
		pieces: maps.Clone(b.pieces),
		order:  slices.Clone(b.order),
		placed: map[PieceID]bool{},
		fixed:  true,
	}
	c.clearGrid()
	return c
}

// Clone deep-copies the grid and the piece index. The Piece values
// themselves are shared since they are immutable.
func (b *Board) Clone() *Board {
	c := &Board{
		width:  b.width,
		height: b.height,
		pieces: make(map[PieceID]*Piece, len(b.pieces)),
		order:  b.PieceIDs(),
		placed: map[PieceID]bool{},
	}
	for id, p := range b.pieces {
		c.pieces[id] = p
	}
	c.clearGrid()
	for r := range b.grid {
		copy(c.grid[r], b.grid[r])
	}
	copy(c.colHeights, b.colHeights)
	c.stack = b.stack
	for id := range b.placed {
		c.placed[id] = true
	}
	return c
}

// Hash fingerprints the grid contents.
func (b *Board) Hash() uint64 {
	buf := make([]byte, 0, 8*b.width*b.stack+16)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(b.width))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(b.height))
	for r := 0; r < b.stack; r++ {
		for _, c := range b.grid[r] {
			buf = binary.LittleEndian.AppendUint64(buf, uint64(int64(c.PieceID())))
		}
	}
	return xxhash.Sum64(buf)
}

func cellGlyph(id PieceID) string {
	return strings.ToUpper(strconv.FormatInt(int64(id)%36, 36))
}

// ToDisplayText renders the occupied part of the grid, top row first. Cells
// belonging to the highlighted piece are starred.
func (b *Board) ToDisplayText(highlight PieceID) string {
	var sb strings.Builder
	top := max(b.stack, 1)
	for r := top - 1; r >= 0; r-- {
		fmt.Fprintf(&sb, "%3d |", r)
		for _, c := range b.grid[r] {
			switch {
			case !c.occupied:
				sb.WriteString(" .")
			case c.piece == highlight:
				sb.WriteString("*" + cellGlyph(c.piece))
			default:
				sb.WriteString(" " + cellGlyph(c.piece))
			}
		}
		sb.WriteString(" |")
		if r == b.stack-1 {
			fmt.Fprintf(&sb, " <- h=%d", b.stack)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("    +" + strings.Repeat("--", b.width) + "-+\n")
	return sb.String()
}
