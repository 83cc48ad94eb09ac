// pkg/camera/camera.go
package camera

import (
	"context"
	"errors"
	"image"
)

// ErrDeviceUnavailable is returned when no capture device can be opened,
// either because none is present or because access was denied.
var ErrDeviceUnavailable = errors.New("camera: device unavailable")

type DeviceType int

const (
	USBCamera DeviceType = iota
	BuiltinCamera
	VirtualCamera
)

type Device struct {
	ID          string
	Name        string
	IsAvailable bool
	DeviceType  DeviceType
}

type StreamConfig struct {
	Width     int
	Height    int
	Framerate int
}

// Source is a live frame source. Frame returns the most recent frame, or
// false when the device has not produced a usable frame yet.
type Source interface {
	Frame() (image.Image, bool)
}

// Manager opens and closes capture devices.
type Manager interface {
	ScanDevices() ([]Device, error)
	Open(ctx context.Context, deviceID string, config StreamConfig) (Source, error)
	Close(deviceID string) error
}

// Sink displays a live source somewhere, typically the preview server.
type Sink interface {
	Bind(src Source)
	Unbind()
}

// Ready reports whether img holds at least one pixel.
func Ready(img image.Image) bool {
	if img == nil {
		return false
	}
	return !img.Bounds().Empty()
}
