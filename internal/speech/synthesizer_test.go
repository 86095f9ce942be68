package speech

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type captureSink struct {
	mu     sync.Mutex
	chunks [][]byte
}

func (c *captureSink) WriteAudio(chunk []byte) {
	c.mu.Lock()
	c.chunks = append(c.chunks, chunk)
	c.mu.Unlock()
}

func (c *captureSink) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, ch := range c.chunks {
		n += len(ch)
	}
	return n
}

func TestStripMarkup(t *testing.T) {
	cases := []struct{ in, want string }{
		{"**Halo** `dunia` #1", "Halo dunia 1"},
		{"tanpa markup", "tanpa markup"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := stripMarkup(tc.in); got != tc.want {
			t.Fatalf("stripMarkup(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestPrepareUtterance_Gates(t *testing.T) {
	s := NewSynthesizer("key", "id-ID", nil)
	s.SetVoices(catalog)

	if _, _, ok := s.prepareUtterance("", ""); ok {
		t.Fatalf("empty text must not speak")
	}
	if _, _, ok := s.prepareUtterance("**``##", ""); ok {
		t.Fatalf("markup-only text must not speak")
	}
	s.SetEnabled(false)
	if _, _, ok := s.prepareUtterance("halo", ""); ok {
		t.Fatalf("disabled synthesizer must not speak")
	}
	s.SetEnabled(true)
	text, voice, ok := s.prepareUtterance("**halo**", "")
	if !ok || text != "halo" || voice == "" {
		t.Fatalf("expected sanitized speak, got %q %q %v", text, voice, ok)
	}
	// Explicit voice overrides the selection.
	_, voice, _ = s.prepareUtterance("halo", "v2")
	if voice != "v2" {
		t.Fatalf("expected explicit voice v2, got %q", voice)
	}
}

func TestPrepareUtterance_NoVoiceSelected(t *testing.T) {
	s := NewSynthesizer("key", "id-ID", nil)
	if _, _, ok := s.prepareUtterance("halo", ""); ok {
		t.Fatalf("must not speak before any voice is known")
	}
}

func TestSpeak_HeldUntilVoicesArrive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 100))
	}))
	defer srv.Close()

	sink := &captureSink{}
	s := NewSynthesizer("key", "id-ID", sink)
	s.BaseURL = srv.URL
	s.HTTPClient = &http.Client{Timeout: 2 * time.Second}

	// Spoken before the voice list has loaded: nothing plays yet.
	s.Speak("Halo! Selamat datang.")
	if sink.total() != 0 {
		t.Fatalf("expected no audio before voices load, got %d bytes", sink.total())
	}

	// The voice list arriving flushes the held utterance.
	s.SetVoices(catalog)
	deadline := time.Now().Add(2 * time.Second)
	for sink.total() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("held utterance was never spoken after voices arrived")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSpeak_HeldUtteranceNewestWins(t *testing.T) {
	s := NewSynthesizer("key", "id-ID", nil)
	s.Speak("pertama")
	s.Speak("kedua")
	s.mu.Lock()
	queued := s.queued
	s.mu.Unlock()
	if queued != "kedua" {
		t.Fatalf("expected newest held utterance, got %q", queued)
	}

	// Disabling speech discards the held utterance.
	s.SetEnabled(false)
	s.mu.Lock()
	queued = s.queued
	s.mu.Unlock()
	if queued != "" {
		t.Fatalf("expected held utterance cleared on disable, got %q", queued)
	}
}

func TestStream_ForwardsAudioToSink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("xi-api-key") != "key" {
			t.Errorf("missing api key header")
		}
		_, _ = w.Write(make([]byte, 10000))
	}))
	defer srv.Close()

	sink := &captureSink{}
	s := NewSynthesizer("key", "id-ID", sink)
	s.BaseURL = srv.URL
	s.HTTPClient = &http.Client{Timeout: 2 * time.Second}

	if err := s.stream(context.Background(), "halo", "v3"); err != nil {
		t.Fatalf("stream: %v", err)
	}
	if sink.total() != 10000 {
		t.Fatalf("expected 10000 audio bytes, got %d", sink.total())
	}
}

func TestStream_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()
	s := NewSynthesizer("key", "id-ID", &captureSink{})
	s.BaseURL = srv.URL
	s.HTTPClient = &http.Client{Timeout: 2 * time.Second}
	if err := s.stream(context.Background(), "halo", "v3"); err == nil {
		t.Fatalf("expected error on 401")
	}
}

func TestRefreshVoices_ParsesAndSelects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"voices":[
			{"voice_id":"a","name":"Adam","category":"cloned","labels":{"language":"en-US"}},
			{"voice_id":"b","name":"Dewi","category":"premade","labels":{"language":"id-ID"}}
		]}`))
	}))
	defer srv.Close()
	s := NewSynthesizer("key", "id-ID", nil)
	s.BaseURL = srv.URL
	s.HTTPClient = &http.Client{Timeout: 2 * time.Second}
	if err := s.RefreshVoices(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if v, ok := s.SelectedVoice(); !ok || v.URI != "b" {
		t.Fatalf("expected default selection b, got %+v", v)
	}
}

func TestCancel_WithoutUtteranceIsSafe(t *testing.T) {
	s := NewSynthesizer("key", "id-ID", nil)
	s.Cancel()
	s.SetEnabled(false)
	s.SetEnabled(true)
}
