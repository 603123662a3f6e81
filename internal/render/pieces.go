package render

import (
	"bytes"
	"embed"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

//go:embed assets/pieces/*.svg
var pieceFiles embed.FS

type pieceCacheKey struct {
	piece nchess.Piece
	size  int
}

var (
	pieceCache   = map[pieceCacheKey]image.Image{}
	pieceCacheMu sync.RWMutex
)

var pieceColors = map[nchess.Color][2]string{
	nchess.White: {"#fafafa", "#202020"},
	nchess.Black: {"#303030", "#0a0a0a"},
}

func renderPieceImage(piece nchess.Piece, size int) (image.Image, error) {
	key := pieceCacheKey{piece: piece, size: size}

	pieceCacheMu.RLock()
	if img, ok := pieceCache[key]; ok {
		pieceCacheMu.RUnlock()
		return img, nil
	}
	pieceCacheMu.RUnlock()

	name, err := pieceAssetName(piece)
	if err != nil {
		return nil, err
	}
	tmpl, err := pieceFiles.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read piece asset %s: %w", name, err)
	}
	colors := pieceColors[piece.Color()]

	icon, err := oksvg.ReadIconStream(bytes.NewReader(colorizeSVG(tmpl, colors[0], colors[1])))
	if err != nil {
		return nil, fmt.Errorf("parse piece svg %s: %w", name, err)
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	raster := rasterx.NewDasher(size, size, scanner)
	icon.Draw(raster, 1.0)

	pieceCacheMu.Lock()
	pieceCache[key] = img
	pieceCacheMu.Unlock()

	return img, nil
}

func pieceAssetName(piece nchess.Piece) (string, error) {
	var role string
	switch piece.Type() {
	case nchess.King:
		role = "king"
	case nchess.Queen:
		role = "queen"
	case nchess.Rook:
		role = "rook"
	case nchess.Bishop:
		role = "bishop"
	case nchess.Knight:
		role = "knight"
	case nchess.Pawn:
		role = "pawn"
	default:
		return "", fmt.Errorf("no asset for piece %v", piece)
	}
	return "assets/pieces/" + role + ".svg", nil
}
