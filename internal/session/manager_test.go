// ABOUTME: Tests for the session lifecycle state machine
// ABOUTME: Tests start/stop transitions, event dispatch, and teardown safety
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/voxline/voxline-go/internal/audio"
	"github.com/voxline/voxline-go/internal/capture"
	"github.com/voxline/voxline-go/internal/history"
	"github.com/voxline/voxline-go/internal/live"
	"github.com/voxline/voxline-go/internal/playback"
)

// fakeCapture records sink wiring and close counts.
type fakeCapture struct {
	mu         sync.Mutex
	sink       func([]byte)
	closeCount int
}

func (f *fakeCapture) SetSink(fn func(chunk []byte)) {
	f.mu.Lock()
	f.sink = fn
	f.mu.Unlock()
}

func (f *fakeCapture) Close() {
	f.mu.Lock()
	f.closeCount++
	f.mu.Unlock()
}

func (f *fakeCapture) emit(chunk []byte) bool {
	f.mu.Lock()
	sink := f.sink
	f.mu.Unlock()
	if sink == nil {
		return false
	}
	sink(chunk)
	return true
}

func (f *fakeCapture) closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCount
}

// fakeChannel scripts inbound events and records uploaded audio.
type fakeChannel struct {
	events chan live.ServerEvent

	mu         sync.Mutex
	sent       [][]byte
	fatal      error
	closeCount int
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{events: make(chan live.ServerEvent, 16)}
}

func (f *fakeChannel) Events() <-chan live.ServerEvent { return f.events }

func (f *fakeChannel) SendAudio(chunk []byte) error {
	f.mu.Lock()
	f.sent = append(f.sent, chunk)
	f.mu.Unlock()
	return nil
}

func (f *fakeChannel) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fatal
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	f.closeCount++
	first := f.closeCount == 1
	f.mu.Unlock()
	if first {
		close(f.events)
	}
	return nil
}

// dies terminates the channel as if the transport failed.
func (f *fakeChannel) die(err error) {
	f.mu.Lock()
	f.fatal = err
	f.closeCount++ // mark closed so a later Close does not re-close events
	f.mu.Unlock()
	close(f.events)
}

func (f *fakeChannel) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeChannel) closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCount
}

// recorder collects upward callbacks.
type recorder struct {
	mu         sync.Mutex
	connecting int
	active     int
	errs       []string
	previews   [][2]string
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnConnecting: func() {
			r.mu.Lock()
			r.connecting++
			r.mu.Unlock()
		},
		OnActive: func() {
			r.mu.Lock()
			r.active++
			r.mu.Unlock()
		},
		OnError: func(msg string) {
			r.mu.Lock()
			r.errs = append(r.errs, msg)
			r.mu.Unlock()
		},
		OnLivePreview: func(in, out string) {
			r.mu.Lock()
			r.previews = append(r.previews, [2]string{in, out})
			r.mu.Unlock()
		},
	}
}

func (r *recorder) surfacedErrors() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.errs {
		if e != "" {
			out = append(out, e)
		}
	}
	return out
}

// fakeDevice mirrors the playback test device.
type fakeDevice struct {
	mu     sync.Mutex
	now    float64
	starts []float64
}

type fakeVoice struct{ stopped bool }

func (v *fakeVoice) Stop() { v.stopped = true }

func (d *fakeDevice) Now() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.now
}

func (d *fakeDevice) Start(buf *audio.Buffer, at float64, done func()) (playback.Voice, error) {
	d.mu.Lock()
	d.starts = append(d.starts, at)
	d.mu.Unlock()
	return &fakeVoice{}, nil
}

func (d *fakeDevice) Close() error { return nil }

func (d *fakeDevice) startCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.starts)
}

type fixture struct {
	manager   *Manager
	capture   *fakeCapture
	channel   *fakeChannel
	device    *fakeDevice
	store     *history.Store
	rec       *recorder
	scheduler *playback.Scheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		capture: &fakeCapture{},
		channel: newFakeChannel(),
		device:  &fakeDevice{},
		store:   history.NewStore(),
		rec:     &recorder{},
	}
	f.scheduler = playback.NewScheduler(f.device, zap.NewNop())

	cfg := Config{
		SystemInstruction: "be helpful",
		Voice:             "Zephyr",
		Dial: func(ctx context.Context, setup live.Setup) (live.Channel, error) {
			return f.channel, nil
		},
		OpenCapture: func() (CaptureSource, error) {
			return f.capture, nil
		},
	}
	f.manager = NewManager(cfg, f.scheduler, f.store, f.rec.callbacks(), zap.NewNop())
	return f
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestStartTransitionsToActive(t *testing.T) {
	f := newFixture(t)

	if err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	if f.manager.State() != StateActive {
		t.Errorf("expected active state, got %s", f.manager.State())
	}
	if f.rec.connecting != 1 || f.rec.active != 1 {
		t.Errorf("expected connecting/active callbacks once, got %d/%d",
			f.rec.connecting, f.rec.active)
	}

	f.manager.Stop()
}

func TestStopDuringConnectWins(t *testing.T) {
	f := newFixture(t)
	f.manager.cfg.Dial = func(ctx context.Context, setup live.Setup) (live.Channel, error) {
		// The user stops while the dial is still in flight.
		f.manager.Stop()
		return f.channel, nil
	}

	if err := f.manager.Start(context.Background()); err == nil {
		t.Fatal("expected start to report the stop")
	}

	if f.manager.State() != StateIdle {
		t.Errorf("expected idle state, got %s", f.manager.State())
	}
	if f.capture.closes() != 1 {
		t.Errorf("expected capture released, got %d closes", f.capture.closes())
	}
	if f.channel.closes() != 1 {
		t.Errorf("expected channel closed, got %d closes", f.channel.closes())
	}
	if f.capture.emit([]byte{1}) {
		t.Error("expected no sink wired after stopped connect")
	}
	if f.rec.active != 0 {
		t.Errorf("expected no active callback, got %d", f.rec.active)
	}
}

func TestStopDuringCaptureOpenWins(t *testing.T) {
	f := newFixture(t)
	dialCalled := false
	f.manager.cfg.OpenCapture = func() (CaptureSource, error) {
		f.manager.Stop()
		return f.capture, nil
	}
	f.manager.cfg.Dial = func(ctx context.Context, setup live.Setup) (live.Channel, error) {
		dialCalled = true
		return f.channel, nil
	}

	if err := f.manager.Start(context.Background()); err == nil {
		t.Fatal("expected start to report the stop")
	}

	if dialCalled {
		t.Error("channel must not be dialed after a stop")
	}
	if f.manager.State() != StateIdle {
		t.Errorf("expected idle state, got %s", f.manager.State())
	}
	if f.capture.closes() != 1 {
		t.Errorf("expected capture released, got %d closes", f.capture.closes())
	}
}

func TestStartForwardsSetup(t *testing.T) {
	f := newFixture(t)
	f.manager.cfg.Model = "voice-model-1"
	var got live.Setup
	f.manager.cfg.Dial = func(ctx context.Context, setup live.Setup) (live.Channel, error) {
		got = setup
		return f.channel, nil
	}

	if err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer f.manager.Stop()

	if got.Model != "voice-model-1" {
		t.Errorf("expected model forwarded, got %q", got.Model)
	}
	if got.Voice != "Zephyr" {
		t.Errorf("expected voice forwarded, got %q", got.Voice)
	}
	if got.SystemInstruction != "be helpful" {
		t.Errorf("expected system instruction forwarded, got %q", got.SystemInstruction)
	}
	if got.ResponseModality != live.ModalityAudio {
		t.Errorf("expected audio modality, got %q", got.ResponseModality)
	}
	if got.InputSampleRate != audio.CaptureSampleRate || got.OutputSampleRate != audio.PlaybackSampleRate {
		t.Errorf("unexpected sample rates: %d/%d", got.InputSampleRate, got.OutputSampleRate)
	}
}

func TestResetTranscriptsClearsPreview(t *testing.T) {
	f := newFixture(t)
	f.manager.Start(context.Background())

	f.channel.events <- live.ServerEvent{InputTranscription: &live.Transcription{Text: "partial"}}
	waitFor(t, "preview fired", func() bool {
		f.rec.mu.Lock()
		defer f.rec.mu.Unlock()
		n := len(f.rec.previews)
		return n > 0 && f.rec.previews[n-1][0] == "partial"
	})

	f.manager.ResetTranscripts()

	f.rec.mu.Lock()
	last := f.rec.previews[len(f.rec.previews)-1]
	f.rec.mu.Unlock()
	if last[0] != "" || last[1] != "" {
		t.Errorf("expected empty preview after reset, got %q / %q", last[0], last[1])
	}

	f.manager.Stop()
}

func TestStartWhileActiveFails(t *testing.T) {
	f := newFixture(t)
	f.manager.Start(context.Background())

	if err := f.manager.Start(context.Background()); err == nil {
		t.Error("expected second start to fail")
	}

	f.manager.Stop()
}

func TestCaptureChunksForwardedInOrder(t *testing.T) {
	f := newFixture(t)
	f.manager.Start(context.Background())

	f.capture.emit([]byte{1})
	f.capture.emit([]byte{2})

	waitFor(t, "chunks sent", func() bool { return f.channel.sentCount() == 2 })

	f.channel.mu.Lock()
	first, second := f.channel.sent[0][0], f.channel.sent[1][0]
	f.channel.mu.Unlock()
	if first != 1 || second != 2 {
		t.Errorf("chunks sent out of capture order: %d, %d", first, second)
	}

	f.manager.Stop()
}

func TestChunkDroppedWhenNotActive(t *testing.T) {
	f := newFixture(t)

	// No session: the capture fake has no sink at all.
	if f.capture.emit([]byte{9}) {
		t.Error("expected no sink before start")
	}

	f.manager.Start(context.Background())
	f.manager.Stop()

	// After teardown the sink is detached again; nothing is sent and no
	// state is mutated.
	if f.capture.emit([]byte{9}) {
		t.Error("expected sink detached after stop")
	}
	if f.channel.sentCount() != 0 {
		t.Errorf("expected no sends, got %d", f.channel.sentCount())
	}
}

func TestEventDispatchToTranscriptsAndHistory(t *testing.T) {
	f := newFixture(t)
	f.manager.Start(context.Background())

	f.channel.events <- live.ServerEvent{InputTranscription: &live.Transcription{Text: "what is"}}
	f.channel.events <- live.ServerEvent{InputTranscription: &live.Transcription{Text: " the time"}}
	f.channel.events <- live.ServerEvent{OutputTranscription: &live.Transcription{Text: "noon"}}
	f.channel.events <- live.ServerEvent{TurnComplete: true}

	waitFor(t, "turn flushed", func() bool { return f.store.Len() == 2 })

	msgs := f.store.Messages()
	if msgs[0].Role != history.RoleUser || msgs[0].Text != "what is the time" {
		t.Errorf("unexpected user message: %+v", msgs[0])
	}
	if msgs[1].Role != history.RoleModel || msgs[1].Text != "noon" {
		t.Errorf("unexpected model message: %+v", msgs[1])
	}

	f.manager.Stop()
}

func TestInlineAudioSchedulesPlayback(t *testing.T) {
	f := newFixture(t)
	f.manager.Start(context.Background())

	pcm := make([]byte, 4800) // 100ms at 24kHz
	f.channel.events <- live.ServerEvent{
		ModelTurn: &live.ModelTurn{AudioData: pcm, MIMEType: "audio/pcm;rate=24000"},
	}

	waitFor(t, "audio scheduled", func() bool { return f.device.startCount() == 1 })

	f.manager.Stop()
}

func TestInterruptedEventClearsPlayback(t *testing.T) {
	f := newFixture(t)
	f.manager.Start(context.Background())

	pcm := make([]byte, 48000)
	f.channel.events <- live.ServerEvent{
		ModelTurn: &live.ModelTurn{AudioData: pcm, MIMEType: "audio/pcm;rate=24000"},
	}
	waitFor(t, "audio scheduled", func() bool { return f.device.startCount() == 1 })

	f.channel.events <- live.ServerEvent{Interrupted: true}
	waitFor(t, "playback cleared", func() bool { return f.scheduler.ActiveVoices() == 0 })

	f.manager.Stop()
}

func TestEmptyEventsIgnored(t *testing.T) {
	f := newFixture(t)
	f.manager.Start(context.Background())

	f.channel.events <- live.ServerEvent{}
	f.channel.events <- live.ServerEvent{TurnComplete: true}

	// A real turn behind the empty ones proves dispatch processed them
	// in order without appending anything.
	f.channel.events <- live.ServerEvent{InputTranscription: &live.Transcription{Text: "ping"}}
	f.channel.events <- live.ServerEvent{TurnComplete: true}

	waitFor(t, "sentinel turn flushed", func() bool { return f.store.Len() >= 1 })

	msgs := f.store.Messages()
	if len(msgs) != 1 || msgs[0].Text != "ping" {
		t.Errorf("expected only the sentinel message, got %+v", msgs)
	}

	f.manager.Stop()
}

func TestPermissionDeniedLeavesErrorStateWithTeardown(t *testing.T) {
	f := newFixture(t)
	f.manager.cfg.OpenCapture = func() (CaptureSource, error) {
		return nil, fmt.Errorf("%w: os says no", capture.ErrPermissionDenied)
	}
	dialCalled := false
	f.manager.cfg.Dial = func(ctx context.Context, setup live.Setup) (live.Channel, error) {
		dialCalled = true
		return f.channel, nil
	}

	if err := f.manager.Start(context.Background()); err == nil {
		t.Fatal("expected start to fail")
	}

	if dialCalled {
		t.Error("channel must not be dialed when the microphone fails")
	}
	if f.manager.State() != StateError {
		t.Errorf("expected error state, got %s", f.manager.State())
	}
	if msg := f.manager.LastError(); msg == "" || !strings.Contains(msg, "Microphone access was denied") {
		t.Errorf("expected permission message, got %q", msg)
	}

	// A later start clears the error and can proceed.
	f.manager.cfg.OpenCapture = func() (CaptureSource, error) { return f.capture, nil }
	if err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	if f.manager.LastError() != "" {
		t.Error("expected error cleared by new start")
	}
	f.manager.Stop()
}

func TestDeviceNotFoundMessage(t *testing.T) {
	f := newFixture(t)
	f.manager.cfg.OpenCapture = func() (CaptureSource, error) {
		return nil, capture.ErrDeviceNotFound
	}

	f.manager.Start(context.Background())

	if msg := f.manager.LastError(); !strings.Contains(msg, "No microphone was found") {
		t.Errorf("expected device message, got %q", msg)
	}
}

func TestDialFailureClosesCapture(t *testing.T) {
	f := newFixture(t)
	f.manager.cfg.Dial = func(ctx context.Context, setup live.Setup) (live.Channel, error) {
		return nil, errors.New("gateway unreachable")
	}

	if err := f.manager.Start(context.Background()); err == nil {
		t.Fatal("expected start to fail")
	}

	if f.capture.closes() != 1 {
		t.Errorf("expected capture closed once, got %d", f.capture.closes())
	}
	if f.manager.State() != StateError {
		t.Errorf("expected error state, got %s", f.manager.State())
	}
}

func TestDoubleTeardownReleasesOnce(t *testing.T) {
	f := newFixture(t)
	f.manager.Start(context.Background())

	f.manager.Stop()
	f.manager.Stop()

	// The dispatch goroutine observing the closed channel runs its own
	// teardown path as well; give it time to finish.
	waitFor(t, "idle", func() bool { return f.manager.State() == StateIdle })

	if f.capture.closes() != 1 {
		t.Errorf("expected exactly one capture release, got %d", f.capture.closes())
	}
	if f.channel.closes() != 1 {
		t.Errorf("expected exactly one channel close, got %d", f.channel.closes())
	}
}

func TestFatalChannelErrorSurfacesOnceAndTearsDown(t *testing.T) {
	f := newFixture(t)
	f.manager.Start(context.Background())

	f.channel.die(errors.New("connection reset"))

	waitFor(t, "error state", func() bool { return f.manager.State() == StateError })

	if f.capture.closes() != 1 {
		t.Errorf("expected capture released, got %d closes", f.capture.closes())
	}

	errs := f.rec.surfacedErrors()
	if len(errs) != 1 {
		t.Fatalf("expected exactly one surfaced error, got %v", errs)
	}
	if !strings.Contains(errs[0], "Session error") || !strings.Contains(errs[0], "connection reset") {
		t.Errorf("unexpected error message: %q", errs[0])
	}
}

func TestRemoteCleanCloseReturnsToIdle(t *testing.T) {
	f := newFixture(t)
	f.manager.Start(context.Background())

	f.channel.Close()

	waitFor(t, "idle", func() bool { return f.manager.State() == StateIdle })

	if errs := f.rec.surfacedErrors(); len(errs) != 0 {
		t.Errorf("clean close must not surface an error, got %v", errs)
	}
}

func TestClearError(t *testing.T) {
	f := newFixture(t)
	f.manager.cfg.OpenCapture = func() (CaptureSource, error) {
		return nil, capture.ErrDeviceNotFound
	}
	f.manager.Start(context.Background())

	f.manager.ClearError()

	if f.manager.State() != StateIdle {
		t.Errorf("expected idle after clear, got %s", f.manager.State())
	}
	if f.manager.LastError() != "" {
		t.Errorf("expected empty error, got %q", f.manager.LastError())
	}
}

