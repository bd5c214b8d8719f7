// ABOUTME: Microphone capture using malgo/miniaudio
// ABOUTME: Emits fixed-size 16kHz PCM chunks to the active session sink
package capture

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"
	"go.uber.org/zap"

	"github.com/voxline/voxline-go/internal/audio"
)

// Typed capture failures. Both are user-actionable and terminal for the
// session being started.
var (
	ErrPermissionDenied = errors.New("microphone access denied")
	ErrDeviceNotFound   = errors.New("no microphone found")
)

// Capture owns the microphone device and produces a lazy, non-restartable
// sequence of fixed-size PCM chunks. Each chunk goes to the installed
// sink; with no sink installed, chunks are dropped rather than buffered,
// so no backlog survives a disconnect.
type Capture struct {
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	logger   *zap.Logger

	mu      sync.Mutex
	chunker *Chunker
	closed  bool
}

// Open requests the microphone and starts capturing at the outbound wire
// format (16kHz mono S16). Fails with ErrPermissionDenied or
// ErrDeviceNotFound when the platform refuses or lacks a capture device.
func Open(logger *zap.Logger) (*Capture, error) {
	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, classifyDeviceError(err)
	}

	c := &Capture{
		malgoCtx: malgoCtx,
		logger:   logger,
		chunker:  NewChunker(audio.CaptureChunkSamples * 2),
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(audio.Channels)
	deviceConfig.SampleRate = uint32(audio.CaptureSampleRate)

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			c.mu.Lock()
			chunker := c.chunker
			c.mu.Unlock()
			chunker.Push(input)
		},
	}

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		c.uninitContext()
		return nil, classifyDeviceError(err)
	}
	c.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		c.uninitContext()
		return nil, classifyDeviceError(err)
	}

	logger.Info("microphone capture started",
		zap.Int("sample_rate", audio.CaptureSampleRate),
		zap.Int("chunk_samples", audio.CaptureChunkSamples))

	return c, nil
}

// SetSink installs the chunk consumer. Passing nil detaches it; chunks
// produced while detached are dropped.
func (c *Capture) SetSink(fn func(chunk []byte)) {
	c.mu.Lock()
	c.chunker.SetSink(fn)
	c.mu.Unlock()
}

// Close detaches the sink before stopping the device so the capture
// callback cannot fire into a torn-down session, then releases the
// device. Each release step swallows its own failure. Safe to call more
// than once.
func (c *Capture) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.chunker.SetSink(nil)
	c.mu.Unlock()

	if c.device != nil {
		if err := c.device.Stop(); err != nil {
			c.logger.Warn("failed to stop capture device", zap.Error(err))
		}
		c.device.Uninit()
		c.device = nil
	}
	c.uninitContext()
	c.logger.Info("microphone capture stopped")
}

func (c *Capture) uninitContext() {
	if c.malgoCtx == nil {
		return
	}
	if err := c.malgoCtx.Uninit(); err != nil {
		c.logger.Warn("failed to uninit audio context", zap.Error(err))
	}
	c.malgoCtx.Free()
	c.malgoCtx = nil
}

// classifyDeviceError maps platform capture failures onto the typed
// causes. miniaudio reports conditions as error strings, so matching is
// textual.
func classifyDeviceError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "access denied") || strings.Contains(msg, "permission"):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	case strings.Contains(msg, "no device") || strings.Contains(msg, "device not found") ||
		strings.Contains(msg, "no backend"):
		return fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
	default:
		return fmt.Errorf("failed to open microphone: %w", err)
	}
}
