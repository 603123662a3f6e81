package httpapi

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/park285/dgtviewer/internal/board"
	"github.com/park285/dgtviewer/internal/render"
)

func (s *Server) index(static fs.FS) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := fs.ReadFile(static, "index.html")
		if err != nil {
			http.Error(w, "index missing", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(page)
	}
}

func (s *Server) getState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	respondJSON(w, http.StatusOK, s.states.Load())
}

func (s *Server) getDevice(w http.ResponseWriter, r *http.Request) {
	if s.device == nil {
		respondError(w, http.StatusNotFound, "no device source")
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	respondJSON(w, http.StatusOK, s.device.Device())
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok", "connected": s.states.Load().Connected})
}

// getBoardPNG renders ?fen= (default: the current position) with
// ?orientation=white|black, ?size= square pixels and ?connected=false
// adding a disconnected caption.
func (s *Server) getBoardPNG(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var occ board.Occupancy
	fen := q.Get("fen")
	if fen != "" {
		decoded, err := board.Decode(fen)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		occ = decoded
	} else {
		occ = s.states.Load().Occupancy
	}

	orientation, err := render.ParseOrientation(q.Get("orientation"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	opts := render.Options{Orientation: orientation}
	if v := q.Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > render.MaxSquareSize {
			respondError(w, http.StatusBadRequest, "size must be 1.."+strconv.Itoa(render.MaxSquareSize))
			return
		}
		opts.SquareSize = n
	}
	if v := q.Get("connected"); v != "" {
		if connected, err := strconv.ParseBool(v); err == nil && !connected {
			opts.Caption = "Board disconnected"
		}
	}

	data, err := s.renderer.RenderPNG(r.Context(), occ, opts)
	if err != nil {
		if errors.Is(err, r.Context().Err()) {
			return
		}
		s.logger.Error("board_png_failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "render failed")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if fen != "" {
		w.Header().Set("Cache-Control", "public, max-age=86400")
	} else {
		w.Header().Set("Cache-Control", "no-store")
	}
	_, _ = w.Write(data)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// requestLogger logs at debug level; browsers poll several times a second.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", time.Since(start)),
			)
		})
	}
}
