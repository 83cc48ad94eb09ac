// Package opencv implements camera.Manager on top of gocv.
package opencv

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"strconv"
	"sync"

	"github.com/AlverezYari/poseframe/pkg/camera"
	"gocv.io/x/gocv"
)

const maxScanIndex = 5

type Manager struct {
	mu          sync.Mutex
	openDevices map[string]*grabber
	logger      *slog.Logger
}

func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		openDevices: make(map[string]*grabber),
		logger:      logger,
	}
}

// ScanDevices probes the first few device indexes. Index 0 is usually the
// built-in webcam.
func (m *Manager) ScanDevices() ([]camera.Device, error) {
	var devices []camera.Device

	for i := 0; i < maxScanIndex; i++ {
		capture, err := gocv.OpenVideoCapture(i)
		if err != nil {
			continue
		}
		opened := capture.IsOpened()
		capture.Close()
		if !opened {
			continue
		}

		device := camera.Device{
			ID:          strconv.Itoa(i),
			Name:        fmt.Sprintf("Camera %d", i),
			IsAvailable: true,
			DeviceType:  camera.USBCamera,
		}
		if i == 0 {
			device.Name = "Built-in Camera"
			device.DeviceType = camera.BuiltinCamera
		}
		devices = append(devices, device)
	}

	return devices, nil
}

func (m *Manager) Open(ctx context.Context, deviceID string, config camera.StreamConfig) (camera.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if g, exists := m.openDevices[deviceID]; exists {
		return g, nil
	}

	index, err := strconv.Atoi(deviceID)
	if err != nil {
		return nil, fmt.Errorf("invalid device ID: %s", deviceID)
	}

	capture, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return nil, fmt.Errorf("opening camera %s: %w", deviceID, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("camera %s is not open", deviceID)
	}

	if config.Width > 0 && config.Height > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(config.Width))
		capture.Set(gocv.VideoCaptureFrameHeight, float64(config.Height))
	}
	if config.Framerate > 0 {
		capture.Set(gocv.VideoCaptureFPS, float64(config.Framerate))
	}

	g := newGrabber(capture, m.logger.With("device", deviceID))
	go g.run()
	m.openDevices[deviceID] = g
	return g, nil
}

func (m *Manager) Close(deviceID string) error {
	m.mu.Lock()
	g, exists := m.openDevices[deviceID]
	delete(m.openDevices, deviceID)
	m.mu.Unlock()

	if !exists {
		return nil
	}
	if err := g.stop(); err != nil {
		return fmt.Errorf("closing camera %s: %w", deviceID, err)
	}
	return nil
}

// grabber reads frames continuously so that Frame never blocks on the
// device. Only the latest frame is kept.
type grabber struct {
	capture *gocv.VideoCapture
	logger  *slog.Logger
	done    chan struct{}
	exited  chan struct{}

	mu     sync.Mutex
	latest image.Image

	stopOnce sync.Once
	stopErr  error
}

func newGrabber(capture *gocv.VideoCapture, logger *slog.Logger) *grabber {
	return &grabber{
		capture: capture,
		logger:  logger,
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
	}
}

func (g *grabber) run() {
	defer close(g.exited)

	mat := gocv.NewMat()
	defer mat.Close()

	for {
		select {
		case <-g.done:
			return
		default:
		}

		if ok := g.capture.Read(&mat); !ok {
			g.logger.Warn("failed to read frame, stopping capture loop")
			return
		}
		if mat.Empty() {
			continue
		}

		img, err := mat.ToImage()
		if err != nil {
			g.logger.Debug("frame conversion failed", "error", err)
			continue
		}

		g.mu.Lock()
		g.latest = img
		g.mu.Unlock()
	}
}

func (g *grabber) Frame() (image.Image, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.latest, camera.Ready(g.latest)
}

func (g *grabber) stop() error {
	g.stopOnce.Do(func() {
		close(g.done)
		<-g.exited
		g.stopErr = g.capture.Close()
	})
	return g.stopErr
}
