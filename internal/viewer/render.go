package viewer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/park285/dgtviewer/internal/board"
	"github.com/park285/dgtviewer/internal/render"
)

// TerminalRenderer prints a text diagram of the board.
type TerminalRenderer struct {
	W io.Writer

	mu sync.Mutex
}

func (t *TerminalRenderer) Render(ctx context.Context, v View) error {
	occ, err := board.Decode(v.Encoded)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err = io.WriteString(t.W, Diagram(occ, v.Orientation, v.Connected))
	return err
}

// Diagram draws occ with orientation at the bottom, followed by the
// placement and a connection line.
func Diagram(occ board.Occupancy, orientation board.Color, connected bool) string {
	var b strings.Builder
	files := "abcdefgh"
	for row := 0; row < 8; row++ {
		rank := 7 - row
		if orientation == board.Black {
			rank = row
		}
		fmt.Fprintf(&b, "%d ", rank+1)
		for col := 0; col < 8; col++ {
			file := col
			if orientation == board.Black {
				file = 7 - col
			}
			p := occ.At(board.NewSquare(file, rank))
			if p.IsEmpty() {
				b.WriteString(" .")
			} else {
				b.WriteByte(' ')
				b.WriteByte(p.Letter())
			}
		}
		b.WriteByte('\n')
	}
	b.WriteString("  ")
	for col := 0; col < 8; col++ {
		c := files[col]
		if orientation == board.Black {
			c = files[7-col]
		}
		b.WriteByte(' ')
		b.WriteByte(c)
	}
	status := "connected"
	if !connected {
		status = "disconnected"
	}
	fmt.Fprintf(&b, "\n%s (%s)\n\n", board.Encode(occ), status)
	return b.String()
}

// PNGFileRenderer writes each view to Path as a PNG image.
type PNGFileRenderer struct {
	Path       string
	SquareSize int
	Renderer   render.Renderer
}

func (r *PNGFileRenderer) Render(ctx context.Context, v View) error {
	occ, err := board.Decode(v.Encoded)
	if err != nil {
		return err
	}
	rr := r.Renderer
	if rr == nil {
		rr = render.New()
	}
	opts := render.Options{Orientation: v.Orientation, SquareSize: r.SquareSize}
	if !v.Connected {
		opts.Caption = "Board disconnected"
	}
	data, err := rr.RenderPNG(ctx, occ, opts)
	if err != nil {
		return err
	}
	// Write next to the target, then rename over it.
	tmp, err := os.CreateTemp(filepath.Dir(r.Path), ".dgtwatch-*.png")
	if err != nil {
		return fmt.Errorf("create temp image: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close image: %w", err)
	}
	return os.Rename(tmp.Name(), r.Path)
}
