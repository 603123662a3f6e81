package dgt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/dgtviewer/internal/acquire"
	"github.com/park285/dgtviewer/internal/board"
)

var (
	ErrClosed = errors.New("board handle closed")
	// ErrSilent is returned when the board stops answering dump requests,
	// which is how an unplugged cable shows up on some platforms.
	ErrSilent = errors.New("board stopped responding")
)

// Port is the byte transport under a Board. Reads must return (0, nil) on a
// read timeout rather than block forever.
type Port interface {
	io.ReadWriteCloser
}

type Options struct {
	// HandshakeTimeout bounds each reply awaited during Reset.
	HandshakeTimeout time.Duration
	// DumpInterval is how often a full dump is requested while streaming.
	DumpInterval time.Duration
	// SilenceTimeout ends the stream when nothing arrives for this long.
	SilenceTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		HandshakeTimeout: 3 * time.Second,
		DumpInterval:     5 * time.Second,
		SilenceTimeout:   15 * time.Second,
	}
}

// Board is one session with a DGT board. It implements acquire.Device.
type Board struct {
	port   Port
	opts   Options
	logger *zap.Logger

	occ       board.Occupancy
	streaming bool
	lastHeard time.Time
	nextDump  time.Time

	writeM    sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

var _ acquire.Device = (*Board)(nil)

func NewBoard(port Port, opts Options, logger *zap.Logger) *Board {
	def := DefaultOptions()
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = def.HandshakeTimeout
	}
	if opts.DumpInterval <= 0 {
		opts.DumpInterval = def.DumpInterval
	}
	if opts.SilenceTimeout <= 0 {
		opts.SilenceTimeout = 3 * opts.DumpInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Board{port: port, opts: opts, logger: logger, closed: make(chan struct{})}
}

// Reset puts the board in a known state and reads its serial number,
// firmware version and current position, then enables field updates.
func (b *Board) Reset(ctx context.Context) (acquire.Handshake, error) {
	var hs acquire.Handshake
	if err := b.send(cmdReset); err != nil {
		return hs, err
	}

	payload, err := b.request(ctx, cmdSerialNumber, msgSerialNumber)
	if err != nil {
		return hs, fmt.Errorf("serial number: %w", err)
	}
	hs.SerialNumber = decodeSerial(payload)

	payload, err = b.request(ctx, cmdVersion, msgVersion)
	if err != nil {
		return hs, fmt.Errorf("version: %w", err)
	}
	hs.Version = decodeVersion(payload)

	payload, err = b.request(ctx, cmdSendBoard, msgBoardDump)
	if err != nil {
		return hs, fmt.Errorf("board dump: %w", err)
	}
	occ, err := decodeDump(payload)
	if err != nil {
		return hs, err
	}
	hs.Snapshot = occ
	b.occ = occ

	if err := b.send(cmdSendUpdate); err != nil {
		return hs, err
	}
	now := time.Now()
	b.streaming = true
	b.lastHeard = now
	b.nextDump = now.Add(b.opts.DumpInterval)
	return hs, nil
}

// Next returns the full position after the next change the board reports.
func (b *Board) Next(ctx context.Context) (board.Occupancy, error) {
	if !b.streaming {
		return board.Occupancy{}, errors.New("board not reset")
	}
	for {
		id, payload, err := b.readMessage(ctx)
		if err != nil {
			return board.Occupancy{}, err
		}
		switch id {
		case msgFieldUpdate:
			if err := applyFieldUpdate(&b.occ, payload); err != nil {
				return board.Occupancy{}, err
			}
			return b.occ, nil
		case msgBoardDump:
			occ, err := decodeDump(payload)
			if err != nil {
				return board.Occupancy{}, err
			}
			b.occ = occ
			return occ, nil
		default:
			b.logger.Debug("dgt_message_ignored", zap.Uint8("id", id), zap.Int("len", len(payload)))
		}
	}
}

func (b *Board) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.closed)
		err = b.port.Close()
	})
	return err
}

func (b *Board) isClosed() bool {
	select {
	case <-b.closed:
		return true
	default:
		return false
	}
}

func (b *Board) send(cmd byte) error {
	b.writeM.Lock()
	defer b.writeM.Unlock()
	if b.isClosed() {
		return ErrClosed
	}
	if _, err := b.port.Write([]byte{cmd}); err != nil {
		return fmt.Errorf("write 0x%02x: %w", cmd, err)
	}
	return nil
}

// request sends cmd and waits for a reply with id want, skipping anything
// else the board sends meanwhile.
func (b *Board) request(ctx context.Context, cmd, want byte) ([]byte, error) {
	if err := b.send(cmd); err != nil {
		return nil, err
	}
	rctx, cancel := context.WithTimeout(ctx, b.opts.HandshakeTimeout)
	defer cancel()
	for {
		id, payload, err := b.readMessage(rctx)
		if err != nil {
			return nil, err
		}
		if id == want {
			return payload, nil
		}
	}
}

func (b *Board) readMessage(ctx context.Context) (byte, []byte, error) {
	var hdr [headerSize]byte
	// Skip stray bytes until a message id shows up.
	for {
		if err := b.readFull(ctx, hdr[:1]); err != nil {
			return 0, nil, err
		}
		if hdr[0]&messageBit != 0 {
			break
		}
	}
	if err := b.readFull(ctx, hdr[1:]); err != nil {
		return 0, nil, err
	}
	size := frameSize(hdr[1], hdr[2])
	if size < headerSize || size > maxMessageSize {
		return 0, nil, fmt.Errorf("%w: message 0x%02x with size %d", ErrFraming, hdr[0], size)
	}
	payload := make([]byte, size-headerSize)
	if err := b.readFull(ctx, payload); err != nil {
		return 0, nil, err
	}
	return hdr[0], payload, nil
}

func (b *Board) readFull(ctx context.Context, buf []byte) error {
	n := 0
	for n < len(buf) {
		if b.isClosed() {
			return ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.keepAlive(); err != nil {
			return err
		}
		k, err := b.port.Read(buf[n:])
		if k > 0 {
			n += k
			b.lastHeard = time.Now()
		}
		if err != nil {
			if b.isClosed() {
				return ErrClosed
			}
			return err
		}
	}
	return nil
}

// keepAlive asks for a dump every DumpInterval while streaming and gives up
// once the board has been quiet for SilenceTimeout.
func (b *Board) keepAlive() error {
	if !b.streaming {
		return nil
	}
	now := time.Now()
	if now.Sub(b.lastHeard) > b.opts.SilenceTimeout {
		return ErrSilent
	}
	if now.After(b.nextDump) {
		b.nextDump = now.Add(b.opts.DumpInterval)
		return b.send(cmdSendBoard)
	}
	return nil
}
