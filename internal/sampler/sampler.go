// Package sampler produces encoded still frames from a live source on a
// fixed cadence. It makes no decisions about the frames it produces.
package sampler

import (
	"log/slog"
	"sync"
	"time"

	"github.com/AlverezYari/poseframe/internal/clock"
	"github.com/AlverezYari/poseframe/pkg/camera"
)

// DefaultInterval is the sampling period used by the capture flow.
const DefaultInterval = 90 * time.Millisecond

// Handler receives each encoded frame.
type Handler func(Payload)

// Sampler samples one frame every interval while started. At most one timer is
// armed at any time; Start replaces whatever was running before.
type Sampler struct {
	clock    clock.Clock
	interval time.Duration
	encoder  Encoder
	logger   *slog.Logger

	mu      sync.Mutex
	timer   clock.Timer
	run     uint64
	source  camera.Source
	handler Handler
}

func New(clk clock.Clock, interval time.Duration, encoder Encoder, logger *slog.Logger) *Sampler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if encoder == nil {
		encoder = JPEGEncoder{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Sampler{
		clock:    clk,
		interval: interval,
		encoder:  encoder,
		logger:   logger,
	}
}

// Start begins sampling src, cancelling any previous run first.
func (s *Sampler) Start(src camera.Source, handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked()
	s.source = src
	s.handler = handler
	s.armLocked(s.run)
}

// Stop cancels the timer. No tick starts after Stop returns.
func (s *Sampler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
	s.source = nil
	s.handler = nil
}

// Active reports whether a timer is armed.
func (s *Sampler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

func (s *Sampler) cancelLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.run++
}

func (s *Sampler) armLocked(run uint64) {
	s.timer = s.clock.AfterFunc(s.interval, func() { s.fire(run) })
}

func (s *Sampler) fire(run uint64) {
	s.mu.Lock()
	if run != s.run || s.timer == nil {
		s.mu.Unlock()
		return
	}
	s.armLocked(run)
	src, handler := s.source, s.handler
	s.mu.Unlock()

	s.tick(src, handler)
}

func (s *Sampler) tick(src camera.Source, handler Handler) {
	if src == nil || handler == nil {
		return
	}

	img, ok := src.Frame()
	if !ok {
		return
	}

	payload, err := s.encoder.Encode(img)
	if err != nil {
		s.logger.Warn("frame encode failed", "error", err)
		return
	}
	handler(payload)
}
