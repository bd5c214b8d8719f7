// ABOUTME: High-level client API for voice and text conversations
// ABOUTME: Wires capture, session, playback, history, and the chat fallback
package voxline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/voxline/voxline-go/internal/capture"
	"github.com/voxline/voxline-go/internal/chat"
	"github.com/voxline/voxline-go/internal/config"
	"github.com/voxline/voxline-go/internal/history"
	"github.com/voxline/voxline-go/internal/live"
	"github.com/voxline/voxline-go/internal/playback"
	"github.com/voxline/voxline-go/internal/session"
)

// Config holds client configuration
type Config struct {
	// APIKey authenticates the turn-based Gemini path. Required for
	// text, speech, and image turns.
	APIKey string

	// GatewayAddr is the live duplex gateway (host:port). Required for
	// voice sessions.
	GatewayAddr string

	// SystemInstruction steers both conversation modes.
	SystemInstruction string

	// Voice selects the prebuilt voice for live and synthesized speech.
	Voice string

	// Model overrides; empty fields use the service defaults.
	LiveModel      string
	TextModel      string
	SpeechModel    string
	ImageEditModel string
	ImageGenModel  string

	// OnConnecting fires when a voice session starts dialing.
	OnConnecting func()

	// OnActive fires when a voice session is established.
	OnActive func()

	// OnReplying fires around spoken text-mode replies.
	OnReplying func(bool)

	// OnError carries the single active user-visible message; an empty
	// string clears it.
	OnError func(message string)

	// OnLivePreview carries in-progress transcriptions.
	OnLivePreview func(input, output string)

	// OnHistoryChanged fires with a snapshot after every history change.
	OnHistoryChanged func([]history.Message)

	// Logger receives structured logs. Defaults to a no-op logger.
	Logger *zap.Logger
}

// Message is one finalized chat entry.
type Message = history.Message

// Client provides duplex voice conversations with a text and image
// fallback sharing one playback pipeline.
type Client struct {
	cfg    Config
	logger *zap.Logger

	store     *history.Store
	device    *playback.LazyDevice
	scheduler *playback.Scheduler
	session   *session.Manager
	chat      *chat.Service
}

// New creates a client. The output device opens lazily on first playback
// and is shared by the live and text paths.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Voice == "" {
		cfg.Voice = config.DefaultVoice
	}
	if cfg.SystemInstruction == "" {
		cfg.SystemInstruction = config.DefaultSystemInstruction
	}
	if cfg.LiveModel == "" {
		cfg.LiveModel = config.DefaultLiveModel
	}
	if cfg.APIKey == "" && cfg.GatewayAddr == "" {
		return nil, fmt.Errorf("either an api key or a gateway address is required")
	}

	c := &Client{
		cfg:    cfg,
		logger: cfg.Logger,
		store:  history.NewStore(),
	}
	c.store.SetOnChange(func(msgs []history.Message) {
		if cfg.OnHistoryChanged != nil {
			cfg.OnHistoryChanged(msgs)
		}
	})

	c.device = playback.NewLazyDevice(func() (playback.Device, error) {
		return playback.NewOtoDevice(c.logger)
	}, c.logger)
	c.scheduler = playback.NewScheduler(c.device, c.logger)

	if cfg.GatewayAddr != "" {
		c.session = session.NewManager(session.Config{
			Model:             cfg.LiveModel,
			SystemInstruction: cfg.SystemInstruction,
			Voice:             cfg.Voice,
			Dial:              live.NewWSDialer(cfg.GatewayAddr, c.logger),
			OpenCapture: func() (session.CaptureSource, error) {
				return capture.Open(c.logger)
			},
		}, c.scheduler, c.store, session.Callbacks{
			OnConnecting:  cfg.OnConnecting,
			OnActive:      cfg.OnActive,
			OnError:       cfg.OnError,
			OnLivePreview: cfg.OnLivePreview,
		}, c.logger)
	}

	if cfg.APIKey != "" {
		gen, err := chat.NewGeminiGenerator(ctx, cfg.APIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize chat: %w", err)
		}
		c.chat = chat.NewService(gen, chat.Config{
			TextModel:         cfg.TextModel,
			SpeechModel:       cfg.SpeechModel,
			ImageEditModel:    cfg.ImageEditModel,
			ImageGenModel:     cfg.ImageGenModel,
			Voice:             cfg.Voice,
			SystemInstruction: cfg.SystemInstruction,
		}, c.store, c.scheduler, cfg.OnReplying, c.logger)
	}

	return c, nil
}

// StartVoice begins a live voice session.
func (c *Client) StartVoice(ctx context.Context) error {
	if c.session == nil {
		return fmt.Errorf("no gateway configured for voice sessions")
	}
	return c.session.Start(ctx)
}

// StopVoice ends the live voice session, if any.
func (c *Client) StopVoice() {
	if c.session != nil {
		c.session.Stop()
	}
}

// VoiceActive reports whether a live session is connecting or active.
func (c *Client) VoiceActive() bool {
	if c.session == nil {
		return false
	}
	switch c.session.State() {
	case session.StateConnecting, session.StateActive:
		return true
	default:
		return false
	}
}

// SessionState returns the live session lifecycle state as text.
func (c *Client) SessionState() string {
	if c.session == nil {
		return "unavailable"
	}
	return c.session.State().String()
}

// SendText runs one turn-based text exchange with a spoken reply.
func (c *Client) SendText(ctx context.Context, text string) error {
	if c.chat == nil {
		return c.surface(fmt.Errorf("no api key configured for text chat"))
	}
	c.clearError()
	if err := c.chat.SendText(ctx, text); err != nil {
		return c.surface(err)
	}
	return nil
}

// EditImage runs one image-editing turn.
func (c *Client) EditImage(ctx context.Context, prompt string, image []byte, imageMIME string) error {
	if c.chat == nil {
		return c.surface(fmt.Errorf("no api key configured for image turns"))
	}
	c.clearError()
	if err := c.chat.EditImage(ctx, prompt, image, imageMIME); err != nil {
		return c.surface(err)
	}
	return nil
}

// GenerateImage creates an image from a prompt.
func (c *Client) GenerateImage(ctx context.Context, prompt string) error {
	if c.chat == nil {
		return c.surface(fmt.Errorf("no api key configured for image turns"))
	}
	c.clearError()
	if err := c.chat.GenerateImage(ctx, prompt); err != nil {
		return c.surface(err)
	}
	return nil
}

// History returns a snapshot of the conversation log.
func (c *Client) History() []Message {
	return c.store.Messages()
}

// ClearHistory empties the conversation log, live previews, and the
// text-model conversation.
func (c *Client) ClearHistory() {
	c.store.Clear()
	if c.session != nil {
		c.session.ResetTranscripts()
	}
	if c.chat != nil {
		c.chat.Reset()
	}
}

// ClearError dismisses the active user-visible error.
func (c *Client) ClearError() {
	if c.session != nil {
		c.session.ClearError()
		return
	}
	c.clearError()
}

// Close stops any live session and releases the output device.
func (c *Client) Close() error {
	c.StopVoice()
	c.scheduler.Interrupt()
	return c.device.Close()
}

// surface routes a turn failure to the error callback and returns it.
func (c *Client) surface(err error) error {
	c.logger.Warn("request failed", zap.Error(err))
	if c.cfg.OnError != nil {
		c.cfg.OnError(err.Error())
	}
	return err
}

func (c *Client) clearError() {
	if c.cfg.OnError != nil {
		c.cfg.OnError("")
	}
}
