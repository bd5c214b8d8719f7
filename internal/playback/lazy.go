// ABOUTME: Lazily opened output device
// ABOUTME: Defers device creation to first use and survives session teardown
package playback

import (
	"sync"

	"go.uber.org/zap"

	"github.com/voxline/voxline-go/internal/audio"
)

// LazyDevice opens the underlying device on first use and keeps it open
// until Close. A failed open is retried on the next use.
type LazyDevice struct {
	open   func() (Device, error)
	logger *zap.Logger

	mu     sync.Mutex
	device Device
}

// NewLazyDevice wraps an open function, typically NewOtoDevice.
func NewLazyDevice(open func() (Device, error), logger *zap.Logger) *LazyDevice {
	return &LazyDevice{open: open, logger: logger}
}

// Now returns the device clock, or zero when the device has not been
// needed yet. The scheduler's max() rule makes zero equivalent to
// "schedule immediately".
func (d *LazyDevice) Now() float64 {
	d.mu.Lock()
	dev := d.device
	d.mu.Unlock()
	if dev == nil {
		return 0
	}
	return dev.Now()
}

// Start opens the device if needed and schedules the buffer on it.
func (d *LazyDevice) Start(buf *audio.Buffer, at float64, done func()) (Voice, error) {
	dev, err := d.get()
	if err != nil {
		return nil, err
	}
	return dev.Start(buf, at, done)
}

// Close releases the underlying device if it was ever opened. A later
// use reopens it.
func (d *LazyDevice) Close() error {
	d.mu.Lock()
	dev := d.device
	d.device = nil
	d.mu.Unlock()

	if dev == nil {
		return nil
	}
	return dev.Close()
}

func (d *LazyDevice) get() (Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device != nil {
		return d.device, nil
	}
	dev, err := d.open()
	if err != nil {
		return nil, err
	}
	d.device = dev
	d.logger.Info("output device opened")
	return dev, nil
}
