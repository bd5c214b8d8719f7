// ABOUTME: Turn-based text and image chat with spoken replies
// ABOUTME: Optimistic history updates with rollback, best-effort speech synthesis
package chat

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/voxline/voxline-go/internal/history"
	"github.com/voxline/voxline-go/internal/playback"
)

// Default models, matching the live path's conversational family.
const (
	DefaultTextModel      = "gemini-2.5-flash"
	DefaultSpeechModel    = "gemini-2.5-flash-preview-tts"
	DefaultImageEditModel = "gemini-2.5-flash-image"
	DefaultImageGenModel  = "imagen-4.0-generate-001"
)

const speechTimeout = 30 * time.Second

// Config selects the models and voice for the turn-based path.
type Config struct {
	TextModel         string
	SpeechModel       string
	ImageEditModel    string
	ImageGenModel     string
	Voice             string
	SystemInstruction string
}

func (c Config) withDefaults() Config {
	if c.TextModel == "" {
		c.TextModel = DefaultTextModel
	}
	if c.SpeechModel == "" {
		c.SpeechModel = DefaultSpeechModel
	}
	if c.ImageEditModel == "" {
		c.ImageEditModel = DefaultImageEditModel
	}
	if c.ImageGenModel == "" {
		c.ImageGenModel = DefaultImageGenModel
	}
	return c
}

// Service is the turn-based fallback to a live voice session: text chat
// with spoken replies, image editing, and image generation. Replies are
// voiced through the same playback scheduler as the live path. The
// text-model conversation is kept in RAM and excludes image messages.
type Service struct {
	gen        Generator
	store      *history.Store
	scheduler  *playback.Scheduler
	logger     *zap.Logger
	cfg        Config
	onReplying func(bool)

	mu    sync.Mutex
	convo []*genai.Content
}

// NewService creates a chat service sharing the given history store and
// playback scheduler. onReplying may be nil.
func NewService(gen Generator, cfg Config, store *history.Store, scheduler *playback.Scheduler, onReplying func(bool), logger *zap.Logger) *Service {
	return &Service{
		gen:        gen,
		store:      store,
		scheduler:  scheduler,
		logger:     logger,
		cfg:        cfg.withDefaults(),
		onReplying: onReplying,
	}
}

// SendText runs one text turn: the user message is appended optimistically,
// the model reply is appended on success and spoken best-effort. On failure
// the optimistic entry is rolled back and the error returned for surfacing.
func (s *Service) SendText(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("empty message")
	}

	s.setReplying(true)

	userMsg := s.store.Append(history.RoleUser, text)
	userContent := genai.NewContentFromText(text, genai.RoleUser)

	s.mu.Lock()
	contents := make([]*genai.Content, 0, len(s.convo)+1)
	contents = append(contents, s.convo...)
	contents = append(contents, userContent)
	s.mu.Unlock()

	config := &genai.GenerateContentConfig{}
	if s.cfg.SystemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(s.cfg.SystemInstruction, genai.RoleUser)
	}

	resp, err := s.gen.GenerateContent(ctx, s.cfg.TextModel, contents, config)
	if err != nil {
		s.store.Remove(userMsg.ID)
		s.setReplying(false)
		s.logger.Warn("text request failed", zap.Error(err))
		return fmt.Errorf("failed to send message: %w", err)
	}

	reply := responseText(resp)
	if reply == "" {
		s.store.Remove(userMsg.ID)
		s.setReplying(false)
		return fmt.Errorf("model returned an empty reply")
	}

	s.store.Append(history.RoleModel, reply)

	s.mu.Lock()
	s.convo = append(s.convo, userContent, genai.NewContentFromText(reply, genai.RoleModel))
	s.mu.Unlock()

	// Speech is decoration on the text reply; its failure never touches
	// history or the caller. The turn stays in the replying state until
	// synthesis hands off.
	go func() {
		s.speak(reply)
		s.setReplying(false)
	}()
	return nil
}

// speak synthesizes the reply and hands the audio to the shared playback
// scheduler. Every failure is swallowed after logging.
func (s *Service) speak(text string) {
	ctx, cancel := context.WithTimeout(context.Background(), speechTimeout)
	defer cancel()

	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: s.cfg.Voice},
			},
		},
	}

	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}
	resp, err := s.gen.GenerateContent(ctx, s.cfg.SpeechModel, contents, config)
	if err != nil {
		s.logger.Warn("speech synthesis failed", zap.Error(err))
		return
	}

	blob := responseAudio(resp)
	if blob == nil {
		s.logger.Warn("speech synthesis returned no audio")
		return
	}
	s.scheduler.Enqueue(blob.Data, blob.MIMEType)
}

// EditImage runs one image-editing turn against the provided source image.
// The result is stored as a data-URL image message. Image turns reset the
// text-model conversation.
func (s *Service) EditImage(ctx context.Context, prompt string, image []byte, imageMIME string) error {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" || len(image) == 0 {
		return fmt.Errorf("image edit needs a prompt and an image")
	}

	s.setReplying(true)
	defer s.setReplying(false)

	userMsg := s.store.AppendImage(history.RoleUser, prompt, dataURL(image, imageMIME))

	parts := []*genai.Part{
		genai.NewPartFromText(prompt),
		genai.NewPartFromBytes(image, imageMIME),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
	}

	resp, err := s.gen.GenerateContent(ctx, s.cfg.ImageEditModel, contents, config)
	if err != nil {
		s.store.Remove(userMsg.ID)
		s.logger.Warn("image edit failed", zap.Error(err))
		return fmt.Errorf("failed to edit image: %w", err)
	}

	caption := responseText(resp)
	blob := responseAudioOrImage(resp)
	if blob == nil {
		s.store.Remove(userMsg.ID)
		return fmt.Errorf("model returned no image")
	}

	s.store.AppendImage(history.RoleModel, caption, dataURL(blob.Data, blob.MIMEType))
	s.resetConversation()
	return nil
}

// GenerateImage creates one square PNG from a prompt. Image turns reset
// the text-model conversation.
func (s *Service) GenerateImage(ctx context.Context, prompt string) error {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return fmt.Errorf("empty prompt")
	}

	s.setReplying(true)
	defer s.setReplying(false)

	userMsg := s.store.Append(history.RoleUser, prompt)

	config := &genai.GenerateImagesConfig{
		NumberOfImages:   1,
		OutputMIMEType:   "image/png",
		AspectRatio:      "1:1",
		IncludeRAIReason: true,
	}

	resp, err := s.gen.GenerateImages(ctx, s.cfg.ImageGenModel, prompt, config)
	if err != nil {
		s.store.Remove(userMsg.ID)
		s.logger.Warn("image generation failed", zap.Error(err))
		return fmt.Errorf("failed to generate image: %w", err)
	}
	if len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil {
		s.store.Remove(userMsg.ID)
		return fmt.Errorf("model returned no image")
	}

	img := resp.GeneratedImages[0].Image
	mime := img.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	s.store.AppendImage(history.RoleModel, "", dataURL(img.ImageBytes, mime))
	s.resetConversation()
	return nil
}

// Reset discards the in-RAM text-model conversation. The history store is
// cleared by the caller; the two are reset together.
func (s *Service) Reset() {
	s.resetConversation()
}

func (s *Service) setReplying(on bool) {
	if s.onReplying != nil {
		s.onReplying(on)
	}
}

func (s *Service) resetConversation() {
	s.mu.Lock()
	s.convo = nil
	s.mu.Unlock()
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			b.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(b.String())
}

func responseAudio(resp *genai.GenerateContentResponse) *genai.Blob {
	return responseAudioOrImage(resp)
}

// responseAudioOrImage returns the first inline blob in the response.
func responseAudioOrImage(resp *genai.GenerateContentResponse) *genai.Blob {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return part.InlineData
		}
	}
	return nil
}

func dataURL(data []byte, mime string) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}
