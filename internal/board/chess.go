package board

import (
	nchess "github.com/corentings/chess/v2"
)

var chessPieces = map[Piece]nchess.Piece{
	{White, King}:   nchess.WhiteKing,
	{White, Queen}:  nchess.WhiteQueen,
	{White, Rook}:   nchess.WhiteRook,
	{White, Bishop}: nchess.WhiteBishop,
	{White, Knight}: nchess.WhiteKnight,
	{White, Pawn}:   nchess.WhitePawn,
	{Black, King}:   nchess.BlackKing,
	{Black, Queen}:  nchess.BlackQueen,
	{Black, Rook}:   nchess.BlackRook,
	{Black, Bishop}: nchess.BlackBishop,
	{Black, Knight}: nchess.BlackKnight,
	{Black, Pawn}:   nchess.BlackPawn,
}

// ChessSquare converts s to the chess library's square type.
func ChessSquare(s Square) nchess.Square {
	return nchess.NewSquare(nchess.File(s.File()), nchess.Rank(s.Rank()))
}

// ChessPiece converts p; empty and invalid pieces map to NoPiece.
func ChessPiece(p Piece) nchess.Piece {
	if cp, ok := chessPieces[p]; ok {
		return cp
	}
	return nchess.NoPiece
}

// ToChess builds a chess library board holding the same pieces as o.
func ToChess(o Occupancy) *nchess.Board {
	m := make(map[nchess.Square]nchess.Piece)
	for i, p := range o {
		if cp := ChessPiece(p); cp != nchess.NoPiece {
			m[ChessSquare(Square(i))] = cp
		}
	}
	return nchess.NewBoard(m)
}
