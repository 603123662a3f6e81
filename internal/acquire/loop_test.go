package acquire

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/park285/dgtviewer/internal/board"
	"github.com/park285/dgtviewer/internal/state"
)

type fakeEnumerator struct {
	mu    sync.Mutex
	ports []PortInfo
	err   error
	calls int
}

func (f *fakeEnumerator) List(ctx context.Context) ([]PortInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return append([]PortInfo(nil), f.ports...), f.err
}

func (f *fakeEnumerator) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeDevice struct {
	hs      Handshake
	hsErr   error
	snaps   []board.Occupancy
	block   bool
	onReset func()

	mu     sync.Mutex
	next   int
	closed atomic.Bool
}

func (d *fakeDevice) Reset(ctx context.Context) (Handshake, error) {
	if d.onReset != nil {
		d.onReset()
	}
	if d.hsErr != nil {
		return Handshake{}, d.hsErr
	}
	return d.hs, nil
}

func (d *fakeDevice) Next(ctx context.Context) (board.Occupancy, error) {
	d.mu.Lock()
	if d.next < len(d.snaps) {
		occ := d.snaps[d.next]
		d.next++
		d.mu.Unlock()
		return occ, nil
	}
	d.mu.Unlock()
	if d.block {
		<-ctx.Done()
		return board.Occupancy{}, ctx.Err()
	}
	return board.Occupancy{}, io.EOF
}

func (d *fakeDevice) Close() error {
	d.closed.Store(true)
	return nil
}

type fakeOpener struct {
	mu      sync.Mutex
	devices []*fakeDevice
	paths   []string
}

func (o *fakeOpener) Open(ctx context.Context, path string) (Device, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.paths = append(o.paths, path)
	if len(o.devices) == 0 {
		return nil, errors.New("no such device")
	}
	d := o.devices[0]
	if len(o.devices) > 1 {
		o.devices = o.devices[1:]
	}
	return d, nil
}

func (o *fakeOpener) Paths() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.paths...)
}

func testConfig() Config {
	return Config{
		VendorID:          DGTVendorID,
		DiscoveryInterval: 5 * time.Millisecond,
		RetryDelay:        5 * time.Millisecond,
		MaxRetryDelay:     20 * time.Millisecond,
	}
}

func mustDecode(t *testing.T, placement string) board.Occupancy {
	t.Helper()
	occ, err := board.Decode(placement)
	if err != nil {
		t.Fatalf("Decode(%q): %v", placement, err)
	}
	return occ
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func startLoop(t *testing.T, l *Loop) (cancel func() error) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	return func() error {
		stop()
		select {
		case err := <-done:
			return err
		case <-time.After(3 * time.Second):
			t.Fatalf("Run did not return after cancel")
			return nil
		}
	}
}

func TestReconnectAfterStreamEnds(t *testing.T) {
	store := state.NewStore()
	start := mustDecode(t, board.StartPlacement)
	afterE4 := mustDecode(t, "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR")
	kings := mustDecode(t, "4k3/8/8/8/8/8/8/4K3")

	var connectedDuringHandshake atomic.Bool
	checkDisconnected := func() {
		if store.Load().Connected {
			connectedDuringHandshake.Store(true)
		}
	}

	first := &fakeDevice{hs: Handshake{SerialNumber: "12345", Version: "1.7", Snapshot: start}, snaps: []board.Occupancy{afterE4}}
	broken := &fakeDevice{hsErr: errors.New("no reply"), onReset: checkDisconnected}
	second := &fakeDevice{hs: Handshake{SerialNumber: "12345", Version: "1.7", Snapshot: kings}, block: true, onReset: checkDisconnected}

	enum := &fakeEnumerator{ports: []PortInfo{{Path: "/dev/ttyACM0", VendorID: "045b"}}}
	opener := &fakeOpener{devices: []*fakeDevice{first, broken, second}}
	l := New(enum, opener, store, testConfig(), nil)

	var statesM sync.Mutex
	var states []State
	l.OnStateChange(func(s State) {
		statesM.Lock()
		states = append(states, s)
		statesM.Unlock()
	})

	stop := startLoop(t, l)
	waitFor(t, "second session", func() bool {
		st := store.Load()
		return st.Connected && st.Encoded == "4k3/8/8/8/8/8/8/4K3"
	})
	if err := stop(); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}

	if connectedDuringHandshake.Load() {
		t.Fatalf("state still connected while reconnecting")
	}
	if !first.closed.Load() || !broken.closed.Load() {
		t.Fatalf("old handles were not closed: first=%v broken=%v", first.closed.Load(), broken.closed.Load())
	}
	if err := store.Load().Validate(); err != nil {
		t.Fatalf("inconsistent state: %v", err)
	}

	statesM.Lock()
	defer statesM.Unlock()
	sawRediscover := false
	for i := 1; i < len(states); i++ {
		if states[i-1] == StateStreaming && states[i] == StateDiscovering {
			sawRediscover = true
		}
	}
	if !sawRediscover {
		t.Fatalf("loop never went back to discovery: %v", states)
	}

	info := l.Device()
	if info.SerialNumber != "12345" || info.Reconnects != 1 || info.SessionID == "" {
		t.Fatalf("unexpected device info: %+v", info)
	}
}

func TestDiscoveryWaitsBetweenAttempts(t *testing.T) {
	store := state.NewStore()
	enum := &fakeEnumerator{}
	cfg := testConfig()
	cfg.DiscoveryInterval = 20 * time.Millisecond
	l := New(enum, &fakeOpener{}, store, cfg, nil)

	stop := startLoop(t, l)
	time.Sleep(110 * time.Millisecond)
	_ = stop()

	calls := enum.Calls()
	if calls < 2 {
		t.Fatalf("expected repeated discovery, got %d calls", calls)
	}
	if calls > 20 {
		t.Fatalf("discovery is spinning: %d calls in 110ms", calls)
	}
	if store.Load().Connected {
		t.Fatalf("connected without a device")
	}
	if l.State() != StateDiscovering {
		t.Fatalf("state = %s", l.State())
	}
}

func TestDiscoveryFiltersByVendor(t *testing.T) {
	store := state.NewStore()
	enum := &fakeEnumerator{ports: []PortInfo{
		{Path: "/dev/ttyS0", VendorID: "1a86"},
		{Path: "/dev/ttyACM3", VendorID: "045B"},
		{Path: "/dev/ttyACM4", VendorID: "045b"},
	}}
	dev := &fakeDevice{hs: Handshake{Snapshot: board.Empty()}, block: true}
	opener := &fakeOpener{devices: []*fakeDevice{dev}}
	l := New(enum, opener, store, testConfig(), nil)

	stop := startLoop(t, l)
	waitFor(t, "connection", func() bool { return store.Load().Connected })
	_ = stop()

	paths := opener.Paths()
	if len(paths) == 0 || paths[0] != "/dev/ttyACM3" {
		t.Fatalf("opened %v, want first DGT port /dev/ttyACM3", paths)
	}
}

func TestEnumerationErrorIsNotFatal(t *testing.T) {
	store := state.NewStore()
	enum := &fakeEnumerator{err: errors.New("permission denied")}
	l := New(enum, &fakeOpener{}, store, testConfig(), nil)

	stop := startLoop(t, l)
	waitFor(t, "a few enumerations", func() bool { return enum.Calls() >= 3 })
	if err := stop(); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v", err)
	}
}

func TestMalformedSnapshotForcesReconnect(t *testing.T) {
	store := state.NewStore()
	var bad board.Occupancy
	bad[0] = board.Piece{Color: "green", Role: board.King}

	first := &fakeDevice{hs: Handshake{Snapshot: board.Empty()}, snaps: []board.Occupancy{bad}}
	second := &fakeDevice{hs: Handshake{Snapshot: mustDecode(t, board.StartPlacement)}, block: true}
	enum := &fakeEnumerator{ports: []PortInfo{{Path: "/dev/ttyACM0", VendorID: DGTVendorID}}}
	l := New(enum, &fakeOpener{devices: []*fakeDevice{first, second}}, store, testConfig(), nil)

	stop := startLoop(t, l)
	waitFor(t, "second session", func() bool { return store.Load().Encoded == board.StartPlacement })
	_ = stop()

	if !first.closed.Load() {
		t.Fatalf("device with malformed snapshot was not closed")
	}
}

func TestBackoffDuration(t *testing.T) {
	base, max := time.Second, 30*time.Second
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 30 * time.Second, 30 * time.Second}
	for i, w := range want {
		if got := backoffDuration(i+1, base, max); got != w {
			t.Fatalf("attempt %d: got %s want %s", i+1, got, w)
		}
	}
	if got := backoffDuration(1000, base, max); got != max {
		t.Fatalf("large attempt: got %s", got)
	}
}
