// Package httpapi serves the board state to browsers and other readers.
package httpapi

import (
	"embed"
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/park285/dgtviewer/internal/render"
	"github.com/park285/dgtviewer/pkg/boardstate"
)

//go:embed static
var staticFiles embed.FS

// StateSource is the read side of the shared board state.
type StateSource interface {
	Load() boardstate.BoardState
	Changed() <-chan struct{}
}

type DeviceSource interface {
	Device() boardstate.DeviceInfo
}

type Server struct {
	states   StateSource
	device   DeviceSource
	renderer render.Renderer
	logger   *zap.Logger
}

// New builds the handlers. device may be nil, in which case /device.json
// reports 404.
func New(states StateSource, device DeviceSource, renderer render.Renderer, logger *zap.Logger) *Server {
	if renderer == nil {
		renderer = render.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{states: states, device: device, renderer: renderer, logger: logger}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))

	static, _ := fs.Sub(staticFiles, "static")

	r.Get("/", s.index(static))
	r.Get("/state.json", s.getState)
	r.Get("/board.json", s.getState)
	r.Get("/board.png", s.getBoardPNG)
	r.Get("/device.json", s.getDevice)
	r.Get("/ws", s.watch)
	r.Get("/healthz", s.healthz)
	r.Handle("/static/*", http.StripPrefix("/static", http.FileServer(http.FS(static))))
	return r
}
