// ABOUTME: Live voice session lifecycle state machine
// ABOUTME: Owns capture wiring, channel dispatch, and idempotent teardown
package session

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/voxline/voxline-go/internal/audio"
	"github.com/voxline/voxline-go/internal/history"
	"github.com/voxline/voxline-go/internal/live"
	"github.com/voxline/voxline-go/internal/playback"
	"github.com/voxline/voxline-go/internal/transcript"
	"github.com/voxline/voxline-go/internal/version"
)

// State is the session lifecycle state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateActive
	StateClosing
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// outboundQueueSize bounds in-flight capture chunks; chunks beyond it are
// dropped rather than queued so a stalled send never blocks capture.
const outboundQueueSize = 32

// CaptureSource is the microphone dependency of a session.
type CaptureSource interface {
	SetSink(fn func(chunk []byte))
	Close()
}

// Callbacks are surfaced upward to the UI collaborator. Any may be nil.
// OnError receives the single active user-visible message; it is called
// with an empty string when a new operation clears a prior error.
type Callbacks struct {
	OnConnecting  func()
	OnActive      func()
	OnError       func(message string)
	OnLivePreview func(input, output string)
}

// Config wires a Manager's dependencies. Dial and OpenCapture are
// injectable so the state machine is testable without hardware.
type Config struct {
	Model             string
	SystemInstruction string
	Voice             string
	Dial              live.Dialer
	OpenCapture       func() (CaptureSource, error)
}

// Manager owns one live voice session at a time: the capture pipeline,
// the duplex channel lifecycle, transcript assembly, and playback
// scheduling. All mutable session state is serialized behind one mutex.
type Manager struct {
	cfg         Config
	logger      *zap.Logger
	scheduler   *playback.Scheduler
	transcripts *transcript.Aggregator
	store       *history.Store
	cb          Callbacks

	mu        sync.Mutex
	state     State
	lastError string
	capture   CaptureSource
	channel   live.Channel
	outbound  chan []byte
	done      chan struct{}
}

// NewManager creates an idle session manager. The scheduler is shared
// with the text-mode speech path and is not owned exclusively.
func NewManager(cfg Config, scheduler *playback.Scheduler, store *history.Store, cb Callbacks, logger *zap.Logger) *Manager {
	m := &Manager{
		cfg:         cfg,
		logger:      logger,
		scheduler:   scheduler,
		transcripts: transcript.NewAggregator(),
		store:       store,
		cb:          cb,
		state:       StateIdle,
	}
	m.transcripts.SetOnPreview(func(in, out string) {
		if cb.OnLivePreview != nil {
			cb.OnLivePreview(in, out)
		}
	})
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastError returns the active user-visible error message, if any.
func (m *Manager) LastError() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastError
}

// ResetTranscripts discards any in-flight transcript partials and
// clears the live preview. Used when the conversation history is
// cleared mid-session.
func (m *Manager) ResetTranscripts() {
	m.transcripts.Reset()
}

// ClearError discards the active error and returns to idle.
func (m *Manager) ClearError() {
	m.mu.Lock()
	if m.state == StateError {
		m.state = StateIdle
	}
	m.lastError = ""
	m.mu.Unlock()

	if m.cb.OnError != nil {
		m.cb.OnError("")
	}
}

// Start opens the microphone, dials the duplex channel, and transitions
// Idle → Connecting → Active. Valid only from Idle (a prior Error state
// is cleared first). Failures run teardown before surfacing and leave
// the manager in Error.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateIdle && m.state != StateError {
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("session already %s", state)
	}
	m.state = StateConnecting
	m.lastError = ""
	m.mu.Unlock()

	m.transcripts.Reset()
	if m.cb.OnError != nil {
		m.cb.OnError("")
	}
	if m.cb.OnConnecting != nil {
		m.cb.OnConnecting()
	}

	cap, err := m.cfg.OpenCapture()
	if err != nil {
		m.fail(captureErrorMessage(err))
		return err
	}
	if !m.stillConnecting() {
		cap.Close()
		return fmt.Errorf("session stopped")
	}

	setup := live.Setup{
		ClientName:        version.Product,
		ClientVersion:     version.Version,
		Model:             m.cfg.Model,
		SystemInstruction: m.cfg.SystemInstruction,
		ResponseModality:  live.ModalityAudio,
		Voice:             m.cfg.Voice,
		InputSampleRate:   audio.CaptureSampleRate,
		OutputSampleRate:  audio.PlaybackSampleRate,
	}

	ch, err := m.cfg.Dial(ctx, setup)
	if err != nil {
		cap.Close()
		m.fail(connectErrorMessage(err))
		return err
	}

	outbound := make(chan []byte, outboundQueueSize)
	done := make(chan struct{})

	m.mu.Lock()
	// A Stop issued while the mic was opening or the dial was in flight
	// found nothing to release; it wins over activation.
	if m.state != StateConnecting {
		m.mu.Unlock()
		cap.Close()
		if err := ch.Close(); err != nil {
			m.logger.Warn("failed to close channel", zap.Error(err))
		}
		m.logger.Info("session stopped during connect")
		return fmt.Errorf("session stopped")
	}
	m.capture = cap
	m.channel = ch
	m.outbound = outbound
	m.done = done
	m.state = StateActive
	m.mu.Unlock()

	go m.sendLoop(ch, outbound, done)
	go m.dispatch(ch)

	// The capture sink queues without blocking; a full queue drops the
	// chunk so the device callback never stalls.
	cap.SetSink(func(chunk []byte) {
		select {
		case outbound <- chunk:
		default:
			m.logger.Debug("outbound queue full, dropping capture chunk")
		}
	})

	m.logger.Info("session active")
	if m.cb.OnActive != nil {
		m.cb.OnActive()
	}
	return nil
}

func (m *Manager) stillConnecting() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateConnecting
}

// Stop tears the session down unconditionally. Safe to call from any
// state, any number of times.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.state == StateConnecting || m.state == StateActive {
		m.state = StateClosing
	}
	m.mu.Unlock()

	m.release()

	m.mu.Lock()
	if m.state != StateError {
		m.state = StateIdle
	}
	m.mu.Unlock()
}

// fail runs teardown, records the single user-visible message, and
// parks the manager in Error. Never retries.
func (m *Manager) fail(message string) {
	m.release()

	m.mu.Lock()
	m.state = StateError
	m.lastError = message
	m.mu.Unlock()

	m.logger.Warn("session failed", zap.String("message", message))
	if m.cb.OnError != nil {
		m.cb.OnError(message)
	}
}

// release frees session resources exactly once per session. Each step is
// independently best-effort; re-entrant calls (an error callback during
// an explicit stop) find nothing left to do.
func (m *Manager) release() {
	m.mu.Lock()
	cap := m.capture
	ch := m.channel
	done := m.done
	m.capture = nil
	m.channel = nil
	m.outbound = nil
	m.done = nil
	m.mu.Unlock()

	if cap == nil && ch == nil && done == nil {
		return
	}

	// Detach the sink before the device stops so no capture callback
	// fires into a dead session. A racing callback that already holds
	// the old sink lands in the bounded queue nobody drains.
	if cap != nil {
		cap.SetSink(nil)
		cap.Close()
	}
	if done != nil {
		close(done)
	}
	if ch != nil {
		if err := ch.Close(); err != nil {
			m.logger.Warn("failed to close channel", zap.Error(err))
		}
	}

	m.scheduler.Interrupt()
	m.transcripts.Reset()
	m.logger.Info("session released")
}

// sendLoop forwards queued capture chunks in order until release signals
// teardown.
func (m *Manager) sendLoop(ch live.Channel, outbound <-chan []byte, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case chunk := <-outbound:
			if err := ch.SendAudio(chunk); err != nil {
				m.logger.Debug("audio send failed", zap.Error(err))
				return
			}
		}
	}
}

// dispatch processes inbound events strictly in arrival order until the
// channel dies, then routes the outcome: a fatal error surfaces once and
// tears down; a clean close just tears down.
func (m *Manager) dispatch(ch live.Channel) {
	for ev := range ch.Events() {
		m.handleEvent(ev)
	}

	if err := ch.Err(); err != nil {
		m.fail(runtimeErrorMessage(err))
		return
	}
	m.Stop()
}

// handleEvent demultiplexes one inbound server event. Unknown or empty
// events fall through untouched.
func (m *Manager) handleEvent(ev live.ServerEvent) {
	if ev.InputTranscription != nil {
		m.transcripts.AddInput(ev.InputTranscription.Text)
	}
	if ev.OutputTranscription != nil {
		m.transcripts.AddOutput(ev.OutputTranscription.Text)
	}
	if ev.TurnComplete {
		m.transcripts.FlushTurn(m.store)
	}
	if ev.ModelTurn != nil && len(ev.ModelTurn.AudioData) > 0 {
		m.scheduler.Enqueue(ev.ModelTurn.AudioData, ev.ModelTurn.MIMEType)
	}
	if ev.Interrupted {
		m.scheduler.Interrupt()
	}
}
