package camera

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Session owns the device handle for one capture session. Acquire opens the
// configured device and binds it to the sink; Release undoes both and is
// safe to call any number of times.
type Session struct {
	manager  Manager
	deviceID string
	config   StreamConfig
	sink     Sink
	logger   *slog.Logger

	mu     sync.Mutex
	source Source
}

func NewSession(manager Manager, deviceID string, config StreamConfig, sink Sink, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Session{
		manager:  manager,
		deviceID: deviceID,
		config:   config,
		sink:     sink,
		logger:   logger,
	}
}

// Acquire returns the live source, opening the device on first use. Errors
// from the manager are reported as ErrDeviceUnavailable.
func (s *Session) Acquire(ctx context.Context) (Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.source != nil {
		return s.source, nil
	}

	src, err := s.manager.Open(ctx, s.deviceID, s.config)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, s.deviceID, err)
	}
	s.source = src
	if s.sink != nil {
		s.sink.Bind(src)
	}
	s.logger.Info("camera acquired", "device", s.deviceID)
	return src, nil
}

// Release stops the device if it is open.
func (s *Session) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.source == nil {
		return nil
	}
	if s.sink != nil {
		s.sink.Unbind()
	}
	s.source = nil
	if err := s.manager.Close(s.deviceID); err != nil {
		return fmt.Errorf("closing camera %s: %w", s.deviceID, err)
	}
	s.logger.Info("camera released", "device", s.deviceID)
	return nil
}

// Held reports whether the device is currently open.
func (s *Session) Held() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source != nil
}
