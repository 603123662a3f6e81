// Package render draws board positions as PNG images.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/park285/dgtviewer/internal/board"
)

const (
	DefaultSquareSize = 64
	MaxSquareSize     = 128
	minSquareSize     = 16

	sideMargin    = 24
	captionHeight = 30
	captionGap    = 10
	panelRadius   = 8
)

var ErrBadOrientation = errors.New("orientation must be white or black")

type Options struct {
	// Orientation is the side shown at the bottom. Empty means white.
	Orientation board.Color
	SquareSize  int
	// Caption, when set, is drawn in a panel above the board.
	Caption string
}

type Renderer interface {
	RenderPNG(ctx context.Context, occ board.Occupancy, opts Options) ([]byte, error)
}

type pngRenderer struct{}

func New() Renderer { return pngRenderer{} }

// ParseOrientation accepts "white", "black" or "" (white).
func ParseOrientation(s string) (board.Color, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "white":
		return board.White, nil
	case "black":
		return board.Black, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrBadOrientation, s)
	}
}

func (pngRenderer) RenderPNG(ctx context.Context, occ board.Occupancy, opts Options) ([]byte, error) {
	if err := occ.Validate(); err != nil {
		return nil, err
	}
	orientation := opts.Orientation
	if orientation == "" {
		orientation = board.White
	}
	if orientation != board.White && orientation != board.Black {
		return nil, fmt.Errorf("%w: %q", ErrBadOrientation, orientation)
	}
	squareSize := opts.SquareSize
	switch {
	case squareSize <= 0:
		squareSize = DefaultSquareSize
	case squareSize < minSquareSize:
		squareSize = minSquareSize
	case squareSize > MaxSquareSize:
		squareSize = MaxSquareSize
	}

	boardSize := squareSize * 8
	top := sideMargin
	caption := strings.TrimSpace(opts.Caption)
	if caption != "" {
		top += captionHeight + captionGap
	}
	origin := image.Point{X: sideMargin, Y: top}
	img := image.NewRGBA(image.Rect(0, 0, boardSize+sideMargin*2, top+boardSize+sideMargin))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, imagedraw.Src)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if caption != "" {
		panel := image.Rect(origin.X, sideMargin, origin.X+boardSize, sideMargin+captionHeight)
		drawRoundedPanel(img, panel, panelRadius, captionPanelColor)
		drawCenteredString(&font.Drawer{Dst: img, Face: basicfont.Face7x13}, panel, caption, captionTextColor)
	}
	drawSquares(img, squareSize, origin, orientation)
	if err := drawPieces(img, board.ToChess(occ), squareSize, origin, orientation); err != nil {
		return nil, err
	}
	drawCoordinates(img, squareSize, origin, orientation)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return pngBuf.Bytes(), nil
}

var (
	lightSquare         = color.RGBA{233, 207, 163, 255}
	darkSquare          = color.RGBA{187, 136, 96, 255}
	backgroundColor     = color.RGBA{38, 36, 33, 255}
	captionPanelColor   = color.NRGBA{R: 28, G: 31, B: 46, A: 250}
	captionTextColor    = color.NRGBA{R: 236, G: 239, B: 255, A: 255}
	coordinateTextColor = color.NRGBA{R: 8, G: 214, B: 120, A: 255}
)

// squareAt maps a screen cell (row 0 at the top) to a board square.
func squareAt(row, col int, orientation board.Color) board.Square {
	if orientation == board.Black {
		return board.NewSquare(7-col, row)
	}
	return board.NewSquare(col, 7-row)
}

func cellRect(row, col, squareSize int, origin image.Point) image.Rectangle {
	x := origin.X + col*squareSize
	y := origin.Y + row*squareSize
	return image.Rect(x, y, x+squareSize, y+squareSize)
}

func drawSquares(dst imagedraw.Image, squareSize int, origin image.Point, orientation board.Color) {
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			clr := squareColor(squareAt(row, col, orientation))
			imagedraw.Draw(dst, cellRect(row, col, squareSize, origin), image.NewUniform(clr), image.Point{}, imagedraw.Src)
		}
	}
}

func drawPieces(dst imagedraw.Image, b *nchess.Board, squareSize int, origin image.Point, orientation board.Color) error {
	boardMap := b.SquareMap()
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			piece := boardMap[board.ChessSquare(squareAt(row, col, orientation))]
			if piece == nchess.NoPiece {
				continue
			}
			img, err := renderPieceImage(piece, squareSize)
			if err != nil {
				return err
			}
			imagedraw.Draw(dst, cellRect(row, col, squareSize, origin), img, image.Point{}, imagedraw.Over)
		}
	}
	return nil
}

// drawCoordinates labels ranks on the left and files along the bottom.
func drawCoordinates(dst imagedraw.Image, squareSize int, origin image.Point, orientation board.Color) {
	face := basicfont.Face7x13
	drawer := &font.Drawer{Dst: dst, Face: face, Src: image.NewUniform(coordinateTextColor)}
	ascent := face.Metrics().Ascent.Ceil()
	boardEndY := origin.Y + 8*squareSize

	for i := 0; i < 8; i++ {
		sq := squareAt(i, i, orientation)
		rankCenter := origin.Y + i*squareSize + squareSize/2
		drawCenteredText(drawer, board.ChessSquare(sq).Rank().String(), origin.X-sideMargin/2, rankCenter+ascent/2)

		fileCenter := origin.X + i*squareSize + squareSize/2
		drawCenteredText(drawer, board.ChessSquare(sq).File().String(), fileCenter, boardEndY+ascent+4)
	}
}

func drawCenteredText(drawer *font.Drawer, text string, centerX, baseline int) {
	if text == "" {
		return
	}
	width := drawer.MeasureString(text).Round()
	drawer.Dot = fixed.P(centerX-width/2, baseline)
	drawer.DrawString(text)
}

func drawCenteredString(drawer *font.Drawer, rect image.Rectangle, text string, clr color.Color) {
	metrics := drawer.Face.Metrics()
	width := drawer.MeasureString(text).Round()
	x := rect.Min.X + (rect.Dx()-width)/2
	if x < rect.Min.X {
		x = rect.Min.X
	}
	baseline := rect.Min.Y + (rect.Dy()+metrics.Ascent.Ceil()-metrics.Descent.Ceil())/2
	drawer.Src = image.NewUniform(clr)
	drawer.Dot = fixed.P(x, baseline)
	drawer.DrawString(text)
}

func squareColor(sq board.Square) color.Color {
	if (sq.File()+sq.Rank())%2 == 0 {
		return darkSquare
	}
	return lightSquare
}
