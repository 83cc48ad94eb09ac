// internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/AlverezYari/poseframe/internal/capture"
	"github.com/AlverezYari/poseframe/internal/sampler"
	"github.com/AlverezYari/poseframe/pkg/camera"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const DefaultFrameInterval = 100 * time.Millisecond

// SessionSource is the part of the sequencer the server reads from.
type SessionSource interface {
	Snapshot() capture.Snapshot
	Subscribe() (<-chan capture.Snapshot, func())
}

type Options struct {
	Host    string
	Port    string
	Session SessionSource
	// Gatherer backs /metrics. The route is omitted when nil.
	Gatherer      prometheus.Gatherer
	Encoder       sampler.Encoder
	FrameInterval time.Duration
	Logger        *slog.Logger
}

// Server exposes the camera preview, session snapshots and metrics. It is
// also the camera sink: a bound source is streamed to /ws/preview clients.
type Server struct {
	server    *http.Server
	host      string
	port      string
	addr      string
	isRunning bool
	runMu     sync.Mutex

	session       SessionSource
	gatherer      prometheus.Gatherer
	encoder       sampler.Encoder
	frameInterval time.Duration
	logger        *slog.Logger

	upgrader        websocket.Upgrader
	wsConnections   map[*websocket.Conn]bool
	wsConnectionsMu sync.Mutex

	previewMu   sync.Mutex
	previewStop chan struct{}
	previewDone chan struct{}
}

func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Encoder == nil {
		opts.Encoder = sampler.JPEGEncoder{Quality: 75}
	}
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = DefaultFrameInterval
	}
	return &Server{
		host:          opts.Host,
		port:          opts.Port,
		session:       opts.Session,
		gatherer:      opts.Gatherer,
		encoder:       opts.Encoder,
		frameInterval: opts.FrameInterval,
		logger:        opts.Logger.With("component", "server"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		wsConnections: make(map[*websocket.Conn]bool),
	}
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/preview", s.handleWebSocketPreview)
	if s.session != nil {
		mux.HandleFunc("/ws/session", s.handleWebSocketSession)
		mux.HandleFunc("/status", s.handleStatus)
	}
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, "poseframe preview server")
	})
	return mux
}

func (s *Server) Start() error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.isRunning {
		s.logger.Error("server is already running", "port", s.port)
		return fmt.Errorf("server is already running")
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(s.host, s.port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.addr = ln.Addr().String()

	go func() {
		if err := s.server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", "err", err)
		}
	}()

	s.isRunning = true
	s.logger.Info("server is running", "addr", s.addr)
	return nil
}

func (s *Server) Stop() error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if !s.isRunning {
		return fmt.Errorf("server is not running")
	}

	s.logger.Info("stopping server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.closeConnections()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.isRunning = false
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) IsRunning() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.isRunning
}

func (s *Server) Port() string {
	return s.port
}

// Addr returns the bound listen address once the server is running.
func (s *Server) Addr() string {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.addr
}

// Bind starts streaming src to preview clients, replacing any earlier source.
func (s *Server) Bind(src camera.Source) {
	s.previewMu.Lock()
	defer s.previewMu.Unlock()

	s.stopPreviewLocked()
	stop, done := make(chan struct{}), make(chan struct{})
	s.previewStop, s.previewDone = stop, done
	go s.streamPreview(src, stop, done)
}

// Unbind stops the preview stream and waits for it to exit.
func (s *Server) Unbind() {
	s.previewMu.Lock()
	defer s.previewMu.Unlock()
	s.stopPreviewLocked()
}

func (s *Server) stopPreviewLocked() {
	if s.previewStop == nil {
		return
	}
	close(s.previewStop)
	<-s.previewDone
	s.previewStop, s.previewDone = nil, nil
}

func (s *Server) streamPreview(src camera.Source, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.frameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		if s.connectionCount() == 0 {
			continue
		}
		img, ok := src.Frame()
		if !ok {
			continue
		}
		payload, err := s.encoder.Encode(img)
		if err != nil {
			s.logger.Warn("preview encode failed", "err", err)
			continue
		}
		s.BroadcastFrame(payload.Data)
	}
}

func (s *Server) handleWebSocketPreview(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("error upgrading websocket connection", "remote", r.RemoteAddr, "err", err)
		return
	}

	s.logger.Info("preview connection established", "remote", r.RemoteAddr)

	s.wsConnectionsMu.Lock()
	s.wsConnections[conn] = true
	s.wsConnectionsMu.Unlock()

	defer func() {
		conn.Close()
		s.wsConnectionsMu.Lock()
		delete(s.wsConnections, conn)
		s.wsConnectionsMu.Unlock()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.logger.Debug("preview connection closed", "remote", r.RemoteAddr, "err", err)
			return
		}
	}
}

// BroadcastFrame sends one JPEG frame to every preview client. Clients that
// fail the write are dropped.
func (s *Server) BroadcastFrame(frameBytes []byte) {
	s.wsConnectionsMu.Lock()
	defer s.wsConnectionsMu.Unlock()
	for conn := range s.wsConnections {
		if err := conn.WriteMessage(websocket.BinaryMessage, frameBytes); err != nil {
			s.logger.Warn("error writing preview frame", "err", err)
			conn.Close()
			delete(s.wsConnections, conn)
		}
	}
}

func (s *Server) connectionCount() int {
	s.wsConnectionsMu.Lock()
	defer s.wsConnectionsMu.Unlock()
	return len(s.wsConnections)
}

func (s *Server) closeConnections() {
	s.wsConnectionsMu.Lock()
	defer s.wsConnectionsMu.Unlock()
	for conn := range s.wsConnections {
		conn.Close()
		delete(s.wsConnections, conn)
	}
}

func (s *Server) handleWebSocketSession(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("error upgrading websocket connection", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer conn.Close()

	updates, cancel := s.session.Subscribe()
	defer cancel()

	// The reader only exists to notice the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case snap, ok := <-updates:
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"))
				return
			}
			if err := conn.WriteJSON(newSnapshotView(snap)); err != nil {
				s.logger.Debug("session stream write failed", "err", err)
				return
			}
		}
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(newSnapshotView(s.session.Snapshot())); err != nil {
		s.logger.Warn("status encode failed", "err", err)
	}
}
