package camera

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// StillsManager replays the images in a directory as a live feed. Each
// directory is one device; the device ID is the directory path.
type StillsManager struct {
	mu   sync.Mutex
	open map[string]*stillsSource
}

func NewStillsManager() *StillsManager {
	return &StillsManager{open: make(map[string]*stillsSource)}
}

func (m *StillsManager) ScanDevices() ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	devices := make([]Device, 0, len(m.open))
	for id := range m.open {
		devices = append(devices, Device{
			ID:          id,
			Name:        filepath.Base(id),
			IsAvailable: true,
			DeviceType:  VirtualCamera,
		})
	}
	return devices, nil
}

func (m *StillsManager) Open(ctx context.Context, deviceID string, _ StreamConfig) (Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if src, exists := m.open[deviceID]; exists {
		return src, nil
	}

	frames, err := loadStills(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no images in %s", deviceID)
	}

	src := &stillsSource{frames: frames}
	m.open[deviceID] = src
	return src, nil
}

func (m *StillsManager) Close(deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.open, deviceID)
	return nil
}

func loadStills(ctx context.Context, dir string) ([]image.Image, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jpg", ".jpeg", ".png":
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	frames := make([]image.Image, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := decodeFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		frames = append(frames, img)
	}
	return frames, nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return img, nil
}

type stillsSource struct {
	mu     sync.Mutex
	frames []image.Image
	next   int
}

// Frame returns the stills in name order, wrapping around at the end.
func (s *stillsSource) Frame() (image.Image, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	img := s.frames[s.next]
	s.next = (s.next + 1) % len(s.frames)
	return img, Ready(img)
}
