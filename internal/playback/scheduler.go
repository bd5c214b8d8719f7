// ABOUTME: Gapless playback scheduler for inbound audio chunks
// ABOUTME: Schedules decoded buffers back-to-back and owns the barge-in reset
package playback

import (
	"sync"

	"go.uber.org/zap"

	"github.com/voxline/voxline-go/internal/audio"
)

// Scheduler renders an unbounded sequence of inbound audio chunks with no
// gap or overlap between consecutive chunks of the same uninterrupted
// stream. Each new chunk starts at max(nextStart, clock now): never before
// the previous chunk ends, and never behind real time after a gap in
// arrivals. A single instance is shared between the live voice path and
// the text-mode speech fallback so the invariants hold across modes.
type Scheduler struct {
	device Device
	logger *zap.Logger

	mu        sync.Mutex
	nextStart float64
	nextID    uint64
	active    map[uint64]Voice

	stats Stats
}

// Stats tracks scheduler counters.
type Stats struct {
	Scheduled   int64
	Skipped     int64
	Interrupted int64
}

// NewScheduler creates a scheduler rendering through the given device.
func NewScheduler(device Device, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		device: device,
		logger: logger,
		active: make(map[uint64]Voice),
	}
}

// Enqueue decodes one inbound chunk and schedules it for gapless
// playback. A chunk that fails to decode is logged and skipped; it never
// aborts the session.
func (s *Scheduler) Enqueue(data []byte, mimeType string) {
	buf, err := audio.DecodeChunk(data, mimeType)
	if err != nil {
		s.mu.Lock()
		s.stats.Skipped++
		s.mu.Unlock()
		s.logger.Warn("skipping undecodable audio chunk",
			zap.String("mime_type", mimeType),
			zap.Int("size", len(data)),
			zap.Error(err))
		return
	}
	s.EnqueueBuffer(buf)
}

// EnqueueBuffer schedules an already-decoded buffer.
func (s *Scheduler) EnqueueBuffer(buf *audio.Buffer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.nextStart
	if now := s.device.Now(); now > start {
		start = now
	}

	id := s.nextID
	s.nextID++

	voice, err := s.device.Start(buf, start, func() { s.release(id) })
	if err != nil {
		s.stats.Skipped++
		s.logger.Warn("failed to start voice", zap.Error(err))
		return
	}

	s.active[id] = voice
	s.nextStart = start + buf.Duration()
	s.stats.Scheduled++
}

// release removes a voice from the active set on natural completion.
// Removal is by arena index: a voice already evicted by an interruption
// reset is simply gone.
func (s *Scheduler) release(id uint64) {
	s.mu.Lock()
	delete(s.active, id)
	s.mu.Unlock()
}

// Interrupt stops every active voice immediately, clears the active set,
// and resets the next start time to zero so the next chunk schedules from
// the current device clock. This is the barge-in contract: playback must
// stop instantly, not after the current chunk drains. Also used by
// session teardown.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	voices := make([]Voice, 0, len(s.active))
	for _, v := range s.active {
		voices = append(voices, v)
	}
	s.active = make(map[uint64]Voice)
	s.nextStart = 0
	s.stats.Interrupted += int64(len(voices))
	s.mu.Unlock()

	// Stop outside the lock; Voice.Stop never calls back into release.
	for _, v := range voices {
		v.Stop()
	}
}

// ActiveVoices returns the number of in-flight voices.
func (s *Scheduler) ActiveVoices() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// NextStart returns the next scheduled start time in device-clock seconds.
func (s *Scheduler) NextStart() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStart
}

// Stats returns scheduler counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
