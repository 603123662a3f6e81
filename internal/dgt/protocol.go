// Package dgt speaks the DGT electronic board serial protocol.
//
// Every board message starts with a three byte header: the message id with
// the high bit set, then the total length (header included) as two 7-bit
// halves, most significant first. Board fields are numbered 0..63 from a8
// across to h8 and down to h1.
package dgt

import (
	"errors"
	"fmt"

	"github.com/park285/dgtviewer/internal/board"
)

// Commands sent to the board.
const (
	cmdReset        byte = 0x40
	cmdSendBoard    byte = 0x42
	cmdSendUpdate   byte = 0x44 // DGT_SEND_UPDATE_BRD
	cmdSerialNumber byte = 0x45
	cmdVersion      byte = 0x4d
)

// Messages received from the board.
const (
	messageBit byte = 0x80

	msgBoardDump    = messageBit | 0x06
	msgBWTime       = messageBit | 0x0d
	msgFieldUpdate  = messageBit | 0x0e
	msgSerialNumber = messageBit | 0x11
	msgTrademark    = messageBit | 0x12
	msgVersion      = messageBit | 0x13

	headerSize     = 3
	maxMessageSize = 1 << 10
)

var (
	ErrMalformedSnapshot = errors.New("malformed board snapshot")
	ErrFraming           = errors.New("bad message framing")
)

var pieceCodes = [...]board.Piece{
	0x00: {},
	0x01: {Color: board.White, Role: board.Pawn},
	0x02: {Color: board.White, Role: board.Rook},
	0x03: {Color: board.White, Role: board.Knight},
	0x04: {Color: board.White, Role: board.Bishop},
	0x05: {Color: board.White, Role: board.King},
	0x06: {Color: board.White, Role: board.Queen},
	0x07: {Color: board.Black, Role: board.Pawn},
	0x08: {Color: board.Black, Role: board.Rook},
	0x09: {Color: board.Black, Role: board.Knight},
	0x0a: {Color: board.Black, Role: board.Bishop},
	0x0b: {Color: board.Black, Role: board.King},
	0x0c: {Color: board.Black, Role: board.Queen},
}

func decodePiece(code byte) (board.Piece, error) {
	if int(code) >= len(pieceCodes) {
		return board.Piece{}, fmt.Errorf("%w: piece code 0x%02x", ErrMalformedSnapshot, code)
	}
	return pieceCodes[code], nil
}

func encodePiece(p board.Piece) byte {
	for code, candidate := range pieceCodes {
		if candidate == p {
			return byte(code)
		}
	}
	return 0
}

// fieldSquare maps a DGT field number to a square.
func fieldSquare(field byte) (board.Square, error) {
	if field >= board.NumSquares {
		return 0, fmt.Errorf("%w: field %d", ErrMalformedSnapshot, field)
	}
	return board.NewSquare(int(field)%8, 7-int(field)/8), nil
}

func squareField(sq board.Square) byte {
	return byte((7-sq.Rank())*8 + sq.File())
}

// decodeDump converts a DGT_BOARD_DUMP payload. Anything but exactly 64
// fields is rejected.
func decodeDump(payload []byte) (board.Occupancy, error) {
	var occ board.Occupancy
	if len(payload) != board.NumSquares {
		return occ, fmt.Errorf("%w: %d fields", ErrMalformedSnapshot, len(payload))
	}
	for field, code := range payload {
		p, err := decodePiece(code)
		if err != nil {
			return occ, err
		}
		sq, _ := fieldSquare(byte(field))
		occ[sq] = p
	}
	return occ, nil
}

// encodeDump is the inverse of decodeDump.
func encodeDump(occ board.Occupancy) []byte {
	out := make([]byte, board.NumSquares)
	for i, p := range occ {
		out[squareField(board.Square(i))] = encodePiece(p)
	}
	return out
}

// applyFieldUpdate applies a DGT_FIELD_UPDATE payload to occ.
func applyFieldUpdate(occ *board.Occupancy, payload []byte) error {
	if len(payload) != 2 {
		return fmt.Errorf("%w: field update of %d bytes", ErrMalformedSnapshot, len(payload))
	}
	sq, err := fieldSquare(payload[0])
	if err != nil {
		return err
	}
	p, err := decodePiece(payload[1])
	if err != nil {
		return err
	}
	occ[sq] = p
	return nil
}

func frame(id byte, payload []byte) []byte {
	size := headerSize + len(payload)
	out := make([]byte, 0, size)
	out = append(out, id, byte(size>>7)&0x7f, byte(size)&0x7f)
	return append(out, payload...)
}

func frameSize(hi, lo byte) int {
	return int(hi&0x7f)<<7 | int(lo&0x7f)
}

func decodeVersion(payload []byte) string {
	if len(payload) < 2 {
		return ""
	}
	return fmt.Sprintf("%d.%d", payload[0], payload[1])
}

func decodeSerial(payload []byte) string {
	out := make([]byte, 0, len(payload))
	for _, c := range payload {
		if c >= 0x20 && c < 0x7f {
			out = append(out, c)
		}
	}
	return string(out)
}
