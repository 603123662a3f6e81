package httpapi

import (
	"context"
	"encoding/json"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/dgtviewer/internal/board"
	"github.com/park285/dgtviewer/internal/state"
	"github.com/park285/dgtviewer/pkg/boardstate"
)

type fixedDevice struct{ info boardstate.DeviceInfo }

func (d fixedDevice) Device() boardstate.DeviceInfo { return d.info }

func newTestServer(t *testing.T, device DeviceSource) (*httptest.Server, *state.Store) {
	t.Helper()
	store := state.NewStore()
	srv := httptest.NewServer(New(store, device, nil, nil).Routes())
	t.Cleanup(srv.Close)
	return srv, store
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, body
}

func decodeState(t *testing.T, body []byte) boardstate.BoardState {
	t.Helper()
	var st boardstate.BoardState
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("decode state: %v (%s)", err, body)
	}
	return st
}

func mustDecode(t *testing.T, placement string) board.Occupancy {
	t.Helper()
	occ, err := board.Decode(placement)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return occ
}

func TestStateBeforeAnyDevice(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	for _, path := range []string{"/state.json", "/board.json"} {
		resp, body := get(t, srv.URL+path)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s status %d", path, resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
			t.Fatalf("%s content type %q", path, ct)
		}
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(body, &raw); err != nil {
			t.Fatalf("bad json: %v", err)
		}
		var occ map[string]any
		if err := json.Unmarshal(raw["occupancy"], &occ); err != nil || len(occ) != 64 {
			t.Fatalf("%s occupancy has %d keys (%v)", path, len(occ), err)
		}
		st := decodeState(t, body)
		if st.Encoded != board.EmptyPlacement || st.Connected {
			t.Fatalf("%s default state %+v", path, st)
		}
	}
}

func TestStateFollowsStore(t *testing.T) {
	srv, store := newTestServer(t, nil)
	store.Replace(mustDecode(t, "4k3/8/8/8/8/8/8/4K3"), true)

	_, body := get(t, srv.URL+"/state.json")
	st := decodeState(t, body)
	if st.Encoded != "4k3/8/8/8/8/8/8/4K3" || !st.Connected {
		t.Fatalf("got %+v", st)
	}
	if p := st.Occupancy.At(board.NewSquare(4, 0)); p != (board.Piece{Color: board.White, Role: board.King}) {
		t.Fatalf("e1 holds %+v", p)
	}
}

func TestStateReadsAreNeverTorn(t *testing.T) {
	srv, store := newTestServer(t, nil)
	positions := []board.Occupancy{
		mustDecode(t, board.StartPlacement),
		mustDecode(t, "4k3/8/8/8/8/8/8/4K3"),
		board.Empty(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ctx.Err() == nil; i++ {
			store.Replace(positions[i%len(positions)], i%2 == 0)
		}
	}()

	for i := 0; i < 50; i++ {
		_, body := get(t, srv.URL+"/state.json")
		if err := decodeState(t, body).Validate(); err != nil {
			cancel()
			wg.Wait()
			t.Fatalf("torn read: %v", err)
		}
	}
	cancel()
	wg.Wait()
}

func TestBoardPNG(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/board.png?fen=" + board.StartPlacement + "&orientation=black&size=20")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("status %d type %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	img, err := png.Decode(resp.Body)
	if err != nil {
		t.Fatalf("png: %v", err)
	}
	if img.Bounds().Dx() != 20*8+48 {
		t.Fatalf("width %d", img.Bounds().Dx())
	}

	resp2, _ := get(t, srv.URL+"/board.png")
	if resp2.StatusCode != http.StatusOK || resp2.Header.Get("Cache-Control") != "no-store" {
		t.Fatalf("current-position image: status %d cache %q", resp2.StatusCode, resp2.Header.Get("Cache-Control"))
	}
}

func TestBoardPNGBadRequest(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	for _, q := range []string{
		"fen=8/8/8",
		"fen=8/8/8/8/8/8/8/7X",
		"orientation=sideways",
		"size=0",
		"size=4096",
	} {
		resp, body := get(t, srv.URL+"/board.png?"+q)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: status %d", q, resp.StatusCode)
		}
		if !strings.Contains(string(body), `"error"`) {
			t.Fatalf("%s: body %s", q, body)
		}
	}
}

func TestIndexAndStatic(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, body := get(t, srv.URL+"/")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "/static/client.mjs") {
		t.Fatalf("index: %d %s", resp.StatusCode, body)
	}

	resp, body = get(t, srv.URL+"/static/client.mjs")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "export function startPolling") {
		t.Fatalf("client.mjs: %d", resp.StatusCode)
	}

	resp, _ = get(t, srv.URL+"/static/missing.js")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing asset status %d", resp.StatusCode)
	}
}

func TestDeviceAndHealth(t *testing.T) {
	info := boardstate.DeviceInfo{SessionID: "s-1", Path: "/dev/ttyACM0", SerialNumber: "24981", State: "STREAMING", Connected: true}
	srv, store := newTestServer(t, fixedDevice{info: info})
	store.Replace(board.Empty(), true)

	resp, body := get(t, srv.URL+"/device.json")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("device status %d", resp.StatusCode)
	}
	var got boardstate.DeviceInfo
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Path != info.Path || got.SerialNumber != info.SerialNumber || got.State != "STREAMING" {
		t.Fatalf("device %+v", got)
	}

	_, body = get(t, srv.URL+"/healthz")
	if !strings.Contains(string(body), `"connected":true`) {
		t.Fatalf("healthz %s", body)
	}

	noDevice, _ := newTestServer(t, nil)
	resp, _ = get(t, noDevice.URL+"/device.json")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 without device source, got %d", resp.StatusCode)
	}
}

func TestWebSocketPushesChanges(t *testing.T) {
	srv, store := newTestServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	var st boardstate.BoardState
	if err := wsjson.Read(ctx, conn, &st); err != nil {
		t.Fatalf("first read: %v", err)
	}
	if st.Encoded != board.EmptyPlacement || st.Connected {
		t.Fatalf("initial push %+v", st)
	}

	store.Replace(mustDecode(t, board.StartPlacement), true)
	for {
		if err := wsjson.Read(ctx, conn, &st); err != nil {
			t.Fatalf("read: %v", err)
		}
		if st.Encoded == board.StartPlacement {
			break
		}
	}
	if !st.Connected {
		t.Fatalf("pushed state not connected")
	}
	if err := st.Validate(); err != nil {
		t.Fatalf("pushed state inconsistent: %v", err)
	}
}
