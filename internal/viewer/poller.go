// Package viewer polls a board state source and redraws only when the
// state changes.
package viewer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/park285/dgtviewer/internal/board"
	"github.com/park285/dgtviewer/pkg/boardstate"
)

const DefaultInterval = 200 * time.Millisecond

type Fetcher interface {
	Fetch(ctx context.Context) (boardstate.BoardState, error)
}

// View is what a Renderer draws.
type View struct {
	Orientation board.Color
	Encoded     string
	Connected   bool
}

type Renderer interface {
	Render(ctx context.Context, v View) error
}

type Config struct {
	Interval    time.Duration
	Orientation board.Color
}

type Poller struct {
	fetcher  Fetcher
	renderer Renderer
	cfg      Config
	logger   *zap.Logger

	last *boardstate.BoardState
}

func NewPoller(f Fetcher, r Renderer, cfg Config, logger *zap.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Orientation == "" {
		cfg.Orientation = board.White
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{fetcher: f, renderer: r, cfg: cfg, logger: logger}
}

// Run polls until ctx is done. The next cycle is scheduled only after the
// previous one finished, so results are applied in order.
func (p *Poller) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		p.cycle(ctx)
		timer.Reset(p.cfg.Interval)
	}
}

func (p *Poller) cycle(ctx context.Context) {
	st, err := p.fetcher.Fetch(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("viewer_fetch_failed", zap.Error(err))
		}
		return
	}
	if p.last != nil && boardstate.Equal(*p.last, st) {
		return
	}
	view := View{Orientation: p.cfg.Orientation, Encoded: st.Encoded, Connected: st.Connected}
	if err := p.renderer.Render(ctx, view); err != nil {
		p.logger.Warn("viewer_render_failed", zap.String("encoded", st.Encoded), zap.Error(err))
		return
	}
	p.logger.Debug("viewer_rendered", zap.String("encoded", st.Encoded), zap.Bool("connected", st.Connected))
	p.last = &st
}
