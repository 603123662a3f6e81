package board

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// EmptyPlacement is the encoding of a board with no pieces.
	EmptyPlacement = "8/8/8/8/8/8/8/8"
	// StartPlacement is the standard initial position.
	StartPlacement = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR"

	rankSeparator = '/'
)

var ErrBadPlacement = errors.New("malformed piece placement")

// Encode returns the FEN piece-placement field for o: ranks 8 down to 1
// separated by '/', files a to h, runs of empty squares as a digit.
func Encode(o Occupancy) string {
	var b strings.Builder
	b.Grow(len(StartPlacement) + 8)
	for rank := 7; rank >= 0; rank-- {
		run := 0
		for file := 0; file < 8; file++ {
			p := o[NewSquare(file, rank)]
			if p.IsEmpty() {
				run++
				continue
			}
			if run > 0 {
				b.WriteByte(byte('0' + run))
				run = 0
			}
			b.WriteByte(p.Letter())
		}
		if run > 0 {
			b.WriteByte(byte('0' + run))
		}
		if rank > 0 {
			b.WriteByte(rankSeparator)
		}
	}
	return b.String()
}

// EncodeMap validates a square-name keyed map and encodes it.
func EncodeMap(m map[string]*Piece) (string, error) {
	occ, err := FromMap(m)
	if err != nil {
		return "", err
	}
	return Encode(occ), nil
}

// Decode parses a piece-placement field. A full FEN record is accepted and
// everything after the first space is ignored.
func Decode(placement string) (Occupancy, error) {
	var occ Occupancy
	if i := strings.IndexByte(placement, ' '); i >= 0 {
		placement = placement[:i]
	}
	ranks := strings.Split(placement, string(rankSeparator))
	if len(ranks) != 8 {
		return occ, fmt.Errorf("%w: %d ranks in %q", ErrBadPlacement, len(ranks), placement)
	}
	for i, group := range ranks {
		rank := 7 - i
		file := 0
		for j := 0; j < len(group); j++ {
			c := group[j]
			if c >= '1' && c <= '8' {
				file += int(c - '0')
				continue
			}
			p, ok := PieceFromLetter(c)
			if !ok {
				return occ, fmt.Errorf("%w: unexpected %q in rank %d", ErrBadPlacement, c, rank+1)
			}
			if file >= 8 {
				return occ, fmt.Errorf("%w: rank %d is wider than 8 files", ErrBadPlacement, rank+1)
			}
			occ[NewSquare(file, rank)] = p
			file++
		}
		if file != 8 {
			return occ, fmt.Errorf("%w: rank %d covers %d files", ErrBadPlacement, rank+1, file)
		}
	}
	return occ, nil
}
