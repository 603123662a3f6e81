// Package board models the 64-square occupancy reported by an electronic
// chessboard and its FEN piece-placement encoding.
package board

import (
	"errors"
	"fmt"
)

var (
	ErrMissingSquare = errors.New("occupancy is missing a square")
	ErrUnknownSquare = errors.New("unknown square")
	ErrInvalidPiece  = errors.New("invalid piece")
)

// Color identifies a piece side.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Role is the kind of a piece.
type Role string

const (
	Pawn   Role = "pawn"
	Knight Role = "knight"
	Bishop Role = "bishop"
	Rook   Role = "rook"
	Queen  Role = "queen"
	King   Role = "king"
)

// Piece is a (color, role) pair. The zero value is an empty square.
type Piece struct {
	Color Color `json:"color"`
	Role  Role  `json:"role"`
}

var roleLetters = map[Role]byte{
	Pawn:   'p',
	Knight: 'n',
	Bishop: 'b',
	Rook:   'r',
	Queen:  'q',
	King:   'k',
}

var letterRoles = map[byte]Role{
	'p': Pawn,
	'n': Knight,
	'b': Bishop,
	'r': Rook,
	'q': Queen,
	'k': King,
}

func (p Piece) IsEmpty() bool { return p == Piece{} }

// Valid reports whether p is empty or a real piece.
func (p Piece) Valid() bool {
	if p.IsEmpty() {
		return true
	}
	if p.Color != White && p.Color != Black {
		return false
	}
	_, ok := roleLetters[p.Role]
	return ok
}

// Letter returns the FEN letter: uppercase for white, lowercase for black.
func (p Piece) Letter() byte {
	l, ok := roleLetters[p.Role]
	if !ok {
		return 0
	}
	if p.Color == White {
		return l - 'a' + 'A'
	}
	return l
}

func (p Piece) String() string {
	if p.IsEmpty() {
		return "empty"
	}
	return string(p.Color) + " " + string(p.Role)
}

// PieceFromLetter is the inverse of Piece.Letter.
func PieceFromLetter(c byte) (Piece, bool) {
	color := Black
	if c >= 'A' && c <= 'Z' {
		color = White
		c = c - 'A' + 'a'
	}
	role, ok := letterRoles[c]
	if !ok {
		return Piece{}, false
	}
	return Piece{Color: color, Role: role}, true
}

// Square indexes the board with a1 = 0, b1 = 1, ..., h8 = 63.
type Square uint8

const NumSquares = 64

func NewSquare(file, rank int) Square { return Square(rank*8 + file) }

// File returns 0 for the a-file through 7 for the h-file.
func (s Square) File() int { return int(s) % 8 }

// Rank returns 0 for rank 1 through 7 for rank 8.
func (s Square) Rank() int { return int(s) / 8 }

func (s Square) String() string {
	if s >= NumSquares {
		return fmt.Sprintf("Square(%d)", uint8(s))
	}
	return string([]byte{byte('a' + s.File()), byte('1' + s.Rank())})
}

// ParseSquare parses names such as "e4".
func ParseSquare(name string) (Square, error) {
	if len(name) != 2 || name[0] < 'a' || name[0] > 'h' || name[1] < '1' || name[1] > '8' {
		return 0, fmt.Errorf("%w: %q", ErrUnknownSquare, name)
	}
	return NewSquare(int(name[0]-'a'), int(name[1]-'1')), nil
}

// Occupancy is a complete snapshot: one cell per square, empty cells hold
// the zero Piece.
type Occupancy [NumSquares]Piece

// Empty returns the all-empty occupancy.
func Empty() Occupancy { return Occupancy{} }

func (o Occupancy) At(s Square) Piece { return o[s] }

// Validate checks that every cell holds an empty square or a real piece.
func (o Occupancy) Validate() error {
	for i, p := range o {
		if !p.Valid() {
			return fmt.Errorf("%w on %s: %+v", ErrInvalidPiece, Square(i), p)
		}
	}
	return nil
}

// FromMap builds an occupancy from a square-name keyed map where nil means
// empty. Every one of the 64 squares must be present.
func FromMap(m map[string]*Piece) (Occupancy, error) {
	var occ Occupancy
	if len(m) != NumSquares {
		for i := 0; i < NumSquares; i++ {
			if _, ok := m[Square(i).String()]; !ok {
				return occ, fmt.Errorf("%w: %s", ErrMissingSquare, Square(i))
			}
		}
	}
	for name, p := range m {
		sq, err := ParseSquare(name)
		if err != nil {
			return occ, err
		}
		if p == nil {
			continue
		}
		if !p.Valid() {
			return occ, fmt.Errorf("%w on %s: %+v", ErrInvalidPiece, sq, *p)
		}
		occ[sq] = *p
	}
	return occ, nil
}

// ToMap is the inverse of FromMap.
func (o Occupancy) ToMap() map[string]*Piece {
	m := make(map[string]*Piece, NumSquares)
	for i := range o {
		if o[i].IsEmpty() {
			m[Square(i).String()] = nil
			continue
		}
		p := o[i]
		m[Square(i).String()] = &p
	}
	return m
}
