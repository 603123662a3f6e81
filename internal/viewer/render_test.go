package viewer

import (
	"bytes"
	"context"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/park285/dgtviewer/internal/board"
)

func TestDiagramOrientation(t *testing.T) {
	occ, err := board.Decode("4k3/8/8/8/8/8/8/4K3")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	white := Diagram(occ, board.White, true)
	lines := strings.Split(white, "\n")
	if lines[0] != "8  . . . . k . . ." || lines[7] != "1  . . . . K . . ." {
		t.Fatalf("white diagram:\n%s", white)
	}
	if lines[8] != "   a b c d e f g h" {
		t.Fatalf("file row %q", lines[8])
	}
	if !strings.Contains(white, "4k3/8/8/8/8/8/8/4K3 (connected)") {
		t.Fatalf("missing status line:\n%s", white)
	}

	black := Diagram(occ, board.Black, false)
	lines = strings.Split(black, "\n")
	if lines[0] != "1  . . . K . . . ." || lines[8] != "   h g f e d c b a" {
		t.Fatalf("black diagram:\n%s", black)
	}
	if !strings.Contains(black, "(disconnected)") {
		t.Fatalf("missing disconnected status")
	}
}

func TestTerminalRendererRejectsBadPlacement(t *testing.T) {
	var buf bytes.Buffer
	r := &TerminalRenderer{W: &buf}
	if err := r.Render(context.Background(), View{Encoded: "8/8"}); err == nil {
		t.Fatalf("expected decode error")
	}
	if buf.Len() != 0 {
		t.Fatalf("wrote output for a bad placement")
	}
}

func TestPNGFileRenderer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.png")
	r := &PNGFileRenderer{Path: path, SquareSize: 20}
	if err := r.Render(context.Background(), View{Orientation: board.White, Encoded: board.StartPlacement, Connected: true}); err != nil {
		t.Fatalf("Render: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	if _, err := png.Decode(f); err != nil {
		t.Fatalf("not a png: %v", err)
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}
