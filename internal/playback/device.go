// ABOUTME: Output device abstraction for scheduled playback
// ABOUTME: Exposes the device clock and timed voice rendering
package playback

import "github.com/voxline/voxline-go/internal/audio"

// Voice is one in-flight rendering of a scheduled buffer. Stop cancels
// rendering immediately and never invokes the completion callback.
type Voice interface {
	Stop()
}

// Device renders audio buffers against its own playback clock. The clock
// advances independently of chunk arrival, starting at zero when the
// device is created.
type Device interface {
	// Now returns the current device clock in seconds.
	Now() float64

	// Start schedules buf to begin rendering at the given device-clock
	// time, calling done when playback finishes naturally.
	Start(buf *audio.Buffer, at float64, done func()) (Voice, error)

	// Close releases the device.
	Close() error
}
