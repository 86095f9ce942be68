package config

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/pipiwyoux/midinaiver2/pkg/logger"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress string

	// Generative backend
	GenAIKey     string
	ChatModelID  string
	ImageModelID string
	EditModelID  string

	// Speech providers
	STTKey string
	TTSKey string

	// Assistant defaults
	DefaultLanguage string
	LogLevel        string
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		logger.Debugf("no .env file loaded: %v", err)
	}

	addr := os.Getenv("HTTP_ADDRESS")
	if addr == "" {
		addr = ":8080"
	}

	genaiKey := os.Getenv("GENAI_API_KEY")
	if genaiKey == "" {
		logger.Warnf("GENAI_API_KEY not set - backend calls will not work")
	}

	chatModel := os.Getenv("GENAI_CHAT_MODEL_ID")
	if chatModel == "" {
		chatModel = "gemini-2.5-flash"
	}
	imageModel := os.Getenv("GENAI_IMAGE_MODEL_ID")
	if imageModel == "" {
		imageModel = "imagen-4.0-generate-001"
	}
	editModel := os.Getenv("GENAI_EDIT_MODEL_ID")
	if editModel == "" {
		editModel = "gemini-2.5-flash-image-preview"
	}

	sttKey := os.Getenv("STT_API_KEY")
	if sttKey == "" {
		logger.Warnf("STT_API_KEY not set - speech recognition will not work")
	}
	ttsKey := os.Getenv("TTS_API_KEY")
	if ttsKey == "" {
		logger.Warnf("TTS_API_KEY not set - speech output will not work")
	}

	lang := os.Getenv("DEFAULT_LANGUAGE")
	if lang == "" {
		lang = "id-ID"
	}

	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "info"
	}

	logger.Infof("config: HTTP_ADDRESS=%s chat=%s image=%s edit=%s lang=%s", addr, chatModel, imageModel, editModel, lang)
	return Config{
		HTTPAddress:     addr,
		GenAIKey:        genaiKey,
		ChatModelID:     chatModel,
		ImageModelID:    imageModel,
		EditModelID:     editModel,
		STTKey:          sttKey,
		TTSKey:          ttsKey,
		DefaultLanguage: lang,
		LogLevel:        level,
	}
}
