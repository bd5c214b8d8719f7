// ABOUTME: Audio output device using the oto library
// ABOUTME: Renders scheduled PCM voices against a monotonic device clock
package playback

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"go.uber.org/zap"

	"github.com/voxline/voxline-go/internal/audio"
)

// OtoDevice is the production Device backed by an oto context. The
// context is created once and reused across sessions so the text-mode
// speech path can share it after a voice session tears down.
type OtoDevice struct {
	otoCtx *oto.Context
	epoch  time.Time
	rate   int
	logger *zap.Logger
}

// NewOtoDevice opens the shared audio output at the playback rate.
func NewOtoDevice(logger *zap.Logger) (*OtoDevice, error) {
	op := &oto.NewContextOptions{
		SampleRate:   audio.PlaybackSampleRate,
		ChannelCount: audio.Channels,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-readyChan

	logger.Info("audio output initialized",
		zap.Int("sample_rate", audio.PlaybackSampleRate),
		zap.Int("channels", audio.Channels))

	return &OtoDevice{
		otoCtx: ctx,
		epoch:  time.Now(),
		rate:   audio.PlaybackSampleRate,
		logger: logger,
	}, nil
}

// Now returns seconds elapsed since the device was opened.
func (d *OtoDevice) Now() float64 {
	return time.Since(d.epoch).Seconds()
}

// Start schedules a buffer. Rendering is armed with a timer so the voice
// begins at the requested device-clock time; completion fires after the
// buffer duration has drained.
func (d *OtoDevice) Start(buf *audio.Buffer, at float64, done func()) (Voice, error) {
	if len(buf.Samples) == 0 {
		return nil, fmt.Errorf("empty buffer")
	}

	buf = audio.Resample(buf, d.rate)

	v := &otoVoice{device: d, done: done}

	delay := time.Duration((at - d.Now()) * float64(time.Second))
	if delay < 0 {
		delay = 0
	}

	data := buf.Bytes()
	duration := buf.DurationTime()
	v.startTimer = time.AfterFunc(delay, func() {
		v.begin(data, duration)
	})

	return v, nil
}

// Close suspends the oto context. oto contexts cannot be destroyed, so
// suspend is the strongest release available.
func (d *OtoDevice) Close() error {
	return d.otoCtx.Suspend()
}

// otoVoice renders one buffer through its own oto player.
type otoVoice struct {
	device *OtoDevice
	done   func()

	mu         sync.Mutex
	startTimer *time.Timer
	doneTimer  *time.Timer
	player     *oto.Player
	stopped    bool
}

// begin runs when the start timer fires.
func (v *otoVoice) begin(data []byte, duration time.Duration) {
	v.mu.Lock()
	if v.stopped {
		v.mu.Unlock()
		return
	}
	v.player = v.device.otoCtx.NewPlayer(bytes.NewReader(data))
	v.player.Play()
	v.doneTimer = time.AfterFunc(duration, v.finish)
	v.mu.Unlock()
}

// finish runs when the buffer has fully drained.
func (v *otoVoice) finish() {
	v.mu.Lock()
	if v.stopped {
		v.mu.Unlock()
		return
	}
	v.stopped = true
	player := v.player
	v.player = nil
	v.mu.Unlock()

	if player != nil {
		if err := player.Close(); err != nil {
			v.device.logger.Warn("failed to close voice player", zap.Error(err))
		}
	}
	if v.done != nil {
		v.done()
	}
}

// Stop cancels the voice immediately without running the completion
// callback. Safe to call more than once.
func (v *otoVoice) Stop() {
	v.mu.Lock()
	if v.stopped {
		v.mu.Unlock()
		return
	}
	v.stopped = true
	if v.startTimer != nil {
		v.startTimer.Stop()
	}
	if v.doneTimer != nil {
		v.doneTimer.Stop()
	}
	player := v.player
	v.player = nil
	v.mu.Unlock()

	if player != nil {
		player.Pause()
		if err := player.Close(); err != nil {
			v.device.logger.Warn("failed to close stopped voice", zap.Error(err))
		}
	}
}
