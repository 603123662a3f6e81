// Package boardstate holds the JSON shapes served by the dgtviewer HTTP API.
package boardstate

import (
	"fmt"
	"time"

	"github.com/park285/dgtviewer/internal/board"
)

// BoardState is the published record of the latest occupancy, its
// encoding and whether a board is connected.
type BoardState struct {
	Occupancy board.Occupancy `json:"occupancy"`
	Encoded   string          `json:"encoded"`
	Connected bool            `json:"connected"`
}

// Default is the state before any board has been seen.
func Default() BoardState {
	return BoardState{Encoded: board.EmptyPlacement}
}

// New pairs occ with its encoding.
func New(occ board.Occupancy, connected bool) BoardState {
	return BoardState{Occupancy: occ, Encoded: board.Encode(occ), Connected: connected}
}

// Validate reports a state whose encoding does not belong to its occupancy.
func (s BoardState) Validate() error {
	if want := board.Encode(s.Occupancy); s.Encoded != want {
		return fmt.Errorf("encoded %q does not match occupancy %q", s.Encoded, want)
	}
	return nil
}

// Equal compares field by field. Occupancy is a fixed array so == covers
// all 64 cells.
func Equal(a, b BoardState) bool {
	return a.Connected == b.Connected &&
		a.Encoded == b.Encoded &&
		a.Occupancy == b.Occupancy
}

// DeviceInfo describes the board the acquisition loop is talking to.
type DeviceInfo struct {
	SessionID    string    `json:"session_id,omitempty"`
	Path         string    `json:"path,omitempty"`
	SerialNumber string    `json:"serial_number,omitempty"`
	Version      string    `json:"version,omitempty"`
	State        string    `json:"state"`
	Connected    bool      `json:"connected"`
	ConnectedAt  time.Time `json:"connected_at,omitempty"`
	Reconnects   int       `json:"reconnects"`
}
