package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pipiwyoux/midinaiver2/pkg/logger"
)

const defaultTTSBaseURL = "https://api.elevenlabs.io"

// AudioSink consumes synthesized audio chunks and performs delivery.
type AudioSink interface {
	WriteAudio(chunk []byte)
}

// Synthesizer streams text-to-speech audio into an AudioSink. At most one
// utterance is active at a time; a new Speak cancels the previous one.
type Synthesizer struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client

	sink AudioSink

	mu           sync.Mutex
	enabled      bool
	language     string
	voices       []Voice
	selectedURI  string
	userSelected bool
	queued       string
	cancel       context.CancelFunc
}

func NewSynthesizer(apiKey, language string, sink AudioSink) *Synthesizer {
	if sink == nil {
		sink = nopSink{}
	}
	return &Synthesizer{
		APIKey:     apiKey,
		BaseURL:    defaultTTSBaseURL,
		HTTPClient: &http.Client{Timeout: 0},
		sink:       sink,
		enabled:    true,
		language:   language,
	}
}

type nopSink struct{}

func (nopSink) WriteAudio([]byte) {}

// SetEnabled toggles speech output. Disabling cancels any in-flight
// utterance.
func (s *Synthesizer) SetEnabled(on bool) {
	s.mu.Lock()
	s.enabled = on
	if !on {
		s.queued = ""
	}
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if !on && cancel != nil {
		cancel()
	}
}

func (s *Synthesizer) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Cancel stops the in-flight utterance, if any.
func (s *Synthesizer) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Speak vocalizes text with the selected voice. Cancels any in-flight
// utterance first (newest wins); no-ops silently when disabled or when the
// sanitized text is empty.
func (s *Synthesizer) Speak(text string) {
	s.SpeakWith(text, "")
}

// SpeakWith vocalizes text with an explicit voice URI, falling back to the
// current selection when empty.
func (s *Synthesizer) SpeakWith(text, voiceURI string) {
	sanitized, voice, ok := s.prepareUtterance(text, voiceURI)
	if !ok {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.mu.Unlock()

	go func() {
		defer cancel()
		if err := s.stream(ctx, sanitized, voice); err != nil && ctx.Err() == nil {
			logger.Errorf("speech: synthesis failed: %v", err)
		}
	}()
}

// prepareUtterance applies the speak gates and resolves the voice. Returns
// ok=false when nothing should be vocalized.
func (s *Synthesizer) prepareUtterance(text, voiceURI string) (string, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled {
		return "", "", false
	}
	sanitized := stripMarkup(text)
	if strings.TrimSpace(sanitized) == "" {
		return "", "", false
	}
	voice := voiceURI
	if voice == "" {
		voice = s.selectedURI
	}
	if voice == "" {
		// The voice list loads asynchronously; hold the utterance until it
		// arrives instead of dropping it. Newest wins.
		s.queued = sanitized
		return "", "", false
	}
	s.queued = ""
	return sanitized, voice, true
}

// stripMarkup removes markup punctuation that reads badly aloud.
func stripMarkup(text string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '*', '`', '#':
			return -1
		}
		return r
	}, text)
}

// stream posts the utterance to the TTS provider and forwards audio chunks
// to the sink until the body is exhausted or ctx is cancelled.
func (s *Synthesizer) stream(ctx context.Context, text, voiceURI string) error {
	if s.APIKey == "" {
		return fmt.Errorf("speech: tts api key missing")
	}
	body := map[string]any{
		"model_id": "eleven_flash_v2_5",
		"text":     text,
	}
	buf, _ := json.Marshal(body)
	url := s.BaseURL + "/v1/text-to-speech/" + voiceURI + "/stream?output_format=pcm_48000"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("xi-api-key", s.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("speech: tts request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("speech: tts status=%d body=%s", resp.StatusCode, string(b))
	}

	chunk := make([]byte, 4096)
	for {
		n, rerr := resp.Body.Read(chunk)
		if n > 0 {
			out := make([]byte, n)
			copy(out, chunk[:n])
			s.sink.WriteAudio(out)
		}
		if rerr != nil {
			if rerr == io.EOF {
				return nil
			}
			return fmt.Errorf("speech: tts read: %w", rerr)
		}
	}
}

// RefreshVoices fetches the provider voice list and republishes it through
// the default-selection logic. May be called any number of times; the voice
// list loads asynchronously on some providers.
func (s *Synthesizer) RefreshVoices(ctx context.Context) error {
	if s.APIKey == "" {
		return fmt.Errorf("speech: tts api key missing")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+"/v1/voices", nil)
	if err != nil {
		return err
	}
	req.Header.Set("xi-api-key", s.APIKey)
	client := s.HTTPClient
	if client.Timeout == 0 {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("speech: list voices: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("speech: list voices status=%d body=%s", resp.StatusCode, string(b))
	}
	var wire struct {
		Voices []struct {
			VoiceID  string `json:"voice_id"`
			Name     string `json:"name"`
			Category string `json:"category"`
			Labels   struct {
				Language string `json:"language"`
			} `json:"labels"`
		} `json:"voices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return err
	}
	voices := make([]Voice, 0, len(wire.Voices))
	for _, v := range wire.Voices {
		voices = append(voices, Voice{URI: v.VoiceID, Name: v.Name, Language: v.Labels.Language, Provider: v.Category})
	}
	s.SetVoices(voices)
	return nil
}
