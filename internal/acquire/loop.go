// Package acquire runs the discover, connect and stream cycle that keeps the
// shared board state in step with a physical board.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/dgtviewer/internal/state"
	"github.com/park285/dgtviewer/pkg/boardstate"
)

// DGTVendorID is the USB vendor id of DGT boards.
const DGTVendorID = "045b"

type Config struct {
	VendorID string
	// DiscoveryInterval is the pause between enumerations when no board is
	// attached, and after a stream ends.
	DiscoveryInterval time.Duration
	// RetryDelay is the first backoff after a failed connect; it doubles
	// per consecutive failure up to MaxRetryDelay.
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		VendorID:          DGTVendorID,
		DiscoveryInterval: 500 * time.Millisecond,
		RetryDelay:        time.Second,
		MaxRetryDelay:     30 * time.Second,
	}
}

type Loop struct {
	enum   Enumerator
	opener Opener
	store  *state.Store
	cfg    Config
	logger *zap.Logger

	stateM sync.RWMutex
	state  State
	info   boardstate.DeviceInfo

	cbM      sync.RWMutex
	stateCbs []StateCallback

	failures int
}

func New(enum Enumerator, opener Opener, store *state.Store, cfg Config, logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if strings.TrimSpace(cfg.VendorID) == "" {
		cfg.VendorID = def.VendorID
	}
	if cfg.DiscoveryInterval <= 0 {
		cfg.DiscoveryInterval = def.DiscoveryInterval
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.MaxRetryDelay < cfg.RetryDelay {
		cfg.MaxRetryDelay = cfg.RetryDelay
	}
	return &Loop{
		enum:   enum,
		opener: opener,
		store:  store,
		cfg:    cfg,
		logger: logger,
		state:  StateDiscovering,
		info:   boardstate.DeviceInfo{State: StateDiscovering.String()},
	}
}

// OnStateChange registers cb for every phase transition.
func (l *Loop) OnStateChange(cb StateCallback) {
	l.cbM.Lock()
	defer l.cbM.Unlock()
	l.stateCbs = append(l.stateCbs, cb)
}

// State returns the current phase.
func (l *Loop) State() State {
	l.stateM.RLock()
	defer l.stateM.RUnlock()
	return l.state
}

// Device describes the current or last connected board.
func (l *Loop) Device() boardstate.DeviceInfo {
	l.stateM.RLock()
	defer l.stateM.RUnlock()
	return l.info
}

// Run loops until ctx is cancelled. Discovery misses, connect failures and
// stream errors are all handled here and never returned.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.setState(StateDiscovering)
		port, ok := l.discover(ctx)
		if !ok {
			if err := sleepWithContext(ctx, l.cfg.DiscoveryInterval); err != nil {
				return err
			}
			continue
		}

		l.setState(StateConnecting)
		dev, err := l.connect(ctx, port)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.failures++
			delay := backoffDuration(l.failures, l.cfg.RetryDelay, l.cfg.MaxRetryDelay)
			l.logger.Warn("device_connect_failed",
				zap.String("path", port.Path),
				zap.Int("attempt", l.failures),
				zap.Duration("retry_in", delay),
				zap.Error(err),
			)
			if err := sleepWithContext(ctx, delay); err != nil {
				return err
			}
			continue
		}
		l.failures = 0

		l.setState(StateStreaming)
		err = l.stream(ctx, dev)
		l.store.SetConnected(false)
		l.markDisconnected()
		_ = dev.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.logger.Warn("device_disconnected", zap.String("path", port.Path), zap.Error(err))
		if err := sleepWithContext(ctx, l.cfg.DiscoveryInterval); err != nil {
			return err
		}
	}
}

func (l *Loop) discover(ctx context.Context) (PortInfo, bool) {
	ports, err := l.enum.List(ctx)
	if err != nil {
		l.logger.Debug("device_enumerate_failed", zap.Error(err))
		return PortInfo{}, false
	}
	for _, p := range ports {
		if strings.EqualFold(strings.TrimSpace(p.VendorID), l.cfg.VendorID) {
			return p, true
		}
	}
	return PortInfo{}, false
}

func (l *Loop) connect(ctx context.Context, port PortInfo) (Device, error) {
	l.logger.Info("device_connecting", zap.String("path", port.Path))
	dev, err := l.opener.Open(ctx, port.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", port.Path, err)
	}
	hs, err := dev.Reset(ctx)
	if err != nil {
		_ = dev.Close()
		return nil, fmt.Errorf("handshake %s: %w", port.Path, err)
	}
	if err := hs.Snapshot.Validate(); err != nil {
		_ = dev.Close()
		return nil, fmt.Errorf("handshake %s: %w", port.Path, err)
	}

	l.store.Replace(hs.Snapshot, true)

	sessionID := uuid.NewString()
	l.stateM.Lock()
	reconnects := l.info.Reconnects
	if l.info.SessionID != "" {
		reconnects++
	}
	l.info = boardstate.DeviceInfo{
		SessionID:    sessionID,
		Path:         port.Path,
		SerialNumber: hs.SerialNumber,
		Version:      hs.Version,
		State:        l.state.String(),
		Connected:    true,
		ConnectedAt:  time.Now(),
		Reconnects:   reconnects,
	}
	l.stateM.Unlock()

	l.logger.Info("device_connected",
		zap.String("session_id", sessionID),
		zap.String("path", port.Path),
		zap.String("serial", hs.SerialNumber),
		zap.String("version", hs.Version),
	)
	return dev, nil
}

func (l *Loop) stream(ctx context.Context, dev Device) error {
	for {
		occ, err := dev.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("stream ended: %w", err)
			}
			return err
		}
		if err := occ.Validate(); err != nil {
			return fmt.Errorf("malformed snapshot: %w", err)
		}
		l.store.Replace(occ, true)
	}
}

func (l *Loop) markDisconnected() {
	l.stateM.Lock()
	l.info.Connected = false
	l.stateM.Unlock()
}

func (l *Loop) setState(s State) {
	l.stateM.Lock()
	if l.state == s {
		l.stateM.Unlock()
		return
	}
	l.state = s
	l.info.State = s.String()
	l.stateM.Unlock()

	l.logger.Debug("acquire_state", zap.String("state", s.String()))

	l.cbM.RLock()
	callbacks := make([]StateCallback, len(l.stateCbs))
	copy(callbacks, l.stateCbs)
	l.cbM.RUnlock()
	for _, cb := range callbacks {
		if cb != nil {
			cb(s)
		}
	}
}
