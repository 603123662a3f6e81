// Package state holds the single shared board state written by the
// acquisition loop and read by the HTTP handlers.
package state

import (
	"sync"
	"sync/atomic"

	"github.com/park285/dgtviewer/internal/board"
	"github.com/park285/dgtviewer/pkg/boardstate"
)

// Store publishes immutable BoardState values. Writers replace the whole
// value in one pointer swap, so a reader never sees an occupancy paired
// with another snapshot's encoding.
type Store struct {
	cur     atomic.Pointer[boardstate.BoardState]
	version atomic.Uint64

	mu      sync.Mutex
	changed chan struct{}
}

func NewStore() *Store {
	s := &Store{changed: make(chan struct{})}
	d := boardstate.Default()
	s.cur.Store(&d)
	return s
}

// Load returns the current state. It never blocks on the device.
func (s *Store) Load() boardstate.BoardState {
	return *s.cur.Load()
}

// Version increases by one on every published change.
func (s *Store) Version() uint64 { return s.version.Load() }

// Replace publishes a new snapshot together with its encoding.
func (s *Store) Replace(occ board.Occupancy, connected bool) {
	next := boardstate.New(occ, connected)
	s.publish(&next)
}

// SetConnected flips the connectivity flag and keeps the last occupancy.
func (s *Store) SetConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.cur.Load()
	if cur.Connected == connected {
		return
	}
	next := *cur
	next.Connected = connected
	s.swapLocked(&next)
}

// Changed returns a channel that is closed at the next published change.
func (s *Store) Changed() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

func (s *Store) publish(next *boardstate.BoardState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if boardstate.Equal(*s.cur.Load(), *next) {
		return
	}
	s.swapLocked(next)
}

func (s *Store) swapLocked(next *boardstate.BoardState) {
	s.cur.Store(next)
	s.version.Add(1)
	close(s.changed)
	s.changed = make(chan struct{})
}
