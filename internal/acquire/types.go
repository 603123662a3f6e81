package acquire

import (
	"context"

	"github.com/park285/dgtviewer/internal/board"
)

// PortInfo is one attached serial device as reported by the enumerator.
type PortInfo struct {
	Path         string
	VendorID     string
	ProductID    string
	SerialNumber string
}

// Handshake is what a board reports after a reset.
type Handshake struct {
	SerialNumber string
	Version      string
	Snapshot     board.Occupancy
}

// Device is one connected board session. It is closed and dropped when its
// stream ends; a reconnect opens a new Device.
type Device interface {
	Reset(ctx context.Context) (Handshake, error)
	// Next blocks for the next complete snapshot. io.EOF means the stream ended.
	Next(ctx context.Context) (board.Occupancy, error)
	Close() error
}

// Enumerator lists currently attached devices.
type Enumerator interface {
	List(ctx context.Context) ([]PortInfo, error)
}

// Opener opens a Device on a port path.
type Opener interface {
	Open(ctx context.Context, path string) (Device, error)
}

// State is the acquisition loop phase.
type State int

const (
	StateDiscovering State = iota
	StateConnecting
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateDiscovering:
		return "DISCOVERING"
	case StateConnecting:
		return "CONNECTING"
	case StateStreaming:
		return "STREAMING"
	default:
		return "UNKNOWN"
	}
}

type StateCallback func(state State)
