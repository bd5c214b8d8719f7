// ABOUTME: Environment-driven configuration
// ABOUTME: Best-effort .env load plus typed accessors with defaults
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Defaults matching the hosted conversational service.
const (
	DefaultLiveModel      = "gemini-2.5-flash-native-audio-preview-09-2025"
	DefaultTextModel      = "gemini-2.5-flash"
	DefaultSpeechModel    = "gemini-2.5-flash-preview-tts"
	DefaultImageEditModel = "gemini-2.5-flash-image"
	DefaultImageGenModel  = "imagen-4.0-generate-001"
	DefaultVoice          = "Zephyr"

	DefaultSystemInstruction = "You are a friendly and helpful voice assistant. " +
		"Keep your responses concise and conversational, as they will be spoken aloud."
)

// Config is the resolved runtime configuration.
type Config struct {
	APIKey            string
	GatewayAddr       string
	LiveModel         string
	TextModel         string
	SpeechModel       string
	ImageEditModel    string
	ImageGenModel     string
	Voice             string
	SystemInstruction string
}

// Load reads configuration from the environment, after a best-effort
// .env load. The API key is the only required setting.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		APIKey:            firstEnv("VOXLINE_API_KEY", "GEMINI_API_KEY"),
		GatewayAddr:       envOr("VOXLINE_GATEWAY", ""),
		LiveModel:         envOr("VOXLINE_LIVE_MODEL", DefaultLiveModel),
		TextModel:         envOr("VOXLINE_TEXT_MODEL", DefaultTextModel),
		SpeechModel:       envOr("VOXLINE_SPEECH_MODEL", DefaultSpeechModel),
		ImageEditModel:    envOr("VOXLINE_IMAGE_EDIT_MODEL", DefaultImageEditModel),
		ImageGenModel:     envOr("VOXLINE_IMAGE_GEN_MODEL", DefaultImageGenModel),
		Voice:             envOr("VOXLINE_VOICE", DefaultVoice),
		SystemInstruction: envOr("VOXLINE_SYSTEM_INSTRUCTION", DefaultSystemInstruction),
	}

	if cfg.APIKey == "" && cfg.GatewayAddr == "" {
		return cfg, fmt.Errorf("VOXLINE_API_KEY (or GEMINI_API_KEY) is required")
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}
