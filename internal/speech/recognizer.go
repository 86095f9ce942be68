package speech

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pipiwyoux/midinaiver2/pkg/logger"
)

// RecognitionEvent is one transcript segment from the streaming recognizer.
// Interim segments are display-only; final segments contribute to utterances.
type RecognitionEvent struct {
	Text  string
	Final bool
}

// Recognizer is a continuous speech-to-text client over a streaming
// WebSocket. Final transcript segments are concatenated per utterance and
// forwarded on Utterances(); interim results only surface on Events().
type Recognizer struct {
	apiKey string

	mu        sync.RWMutex
	conn      *websocket.Conn
	listening bool
	language  string
	stopCh    chan struct{}

	events     chan RecognitionEvent
	utterances chan string
	audio      chan []byte

	accMu  sync.Mutex
	finals []string
}

// Recognizer wire messages.
type beginMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	ExpiresAt int64  `json:"expires_at"`
}

type turnMessage struct {
	Type       string `json:"type"`
	Transcript string `json:"transcript"`
	EndOfTurn  bool   `json:"end_of_turn"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func NewRecognizer(apiKey, language string) *Recognizer {
	return &Recognizer{
		apiKey:     apiKey,
		language:   language,
		events:     make(chan RecognitionEvent, 100),
		utterances: make(chan string, 10),
		audio:      make(chan []byte, 1000),
	}
}

// Events streams interim and final transcript segments for display.
func (r *Recognizer) Events() <-chan RecognitionEvent { return r.events }

// Utterances streams completed user utterances, ready for dispatch.
func (r *Recognizer) Utterances() <-chan string { return r.utterances }

// Listening reports whether a recognition session is active.
func (r *Recognizer) Listening() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listening
}

// SetLanguage changes the recognition language for subsequent sessions.
func (r *Recognizer) SetLanguage(tag string) {
	r.mu.Lock()
	r.language = tag
	r.mu.Unlock()
}

// Start opens the streaming session. Starting an already-listening
// recognizer is a no-op.
func (r *Recognizer) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listening {
		return nil
	}
	if r.apiKey == "" {
		return fmt.Errorf("speech: recognizer api key is empty")
	}

	params := url.Values{}
	params.Set("sample_rate", "16000")
	params.Set("encoding", "pcm_s16le")
	params.Set("language", r.language)
	wsURL := fmt.Sprintf("wss://streaming.assemblyai.com/v3/ws?%s", params.Encode())

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.Dial(wsURL, map[string][]string{"Authorization": {r.apiKey}})
	if err != nil {
		if resp != nil {
			logger.Errorf("speech: recognizer connect failed with status %d", resp.StatusCode)
		}
		return fmt.Errorf("speech: connect recognizer: %w", err)
	}

	r.conn = conn
	r.listening = true
	r.stopCh = make(chan struct{})
	go r.readLoop(conn, r.stopCh)
	go r.writeLoop(conn, r.stopCh)
	logger.Infof("speech: recognition started (language=%s)", r.language)
	return nil
}

// Stop ends the recognition session. Stopping a non-listening recognizer is
// swallowed as a warning, not an error.
func (r *Recognizer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.listening {
		logger.Warnf("speech: stop requested but recognizer is not listening")
		return
	}
	close(r.stopCh)
	if r.conn != nil {
		_ = r.conn.WriteJSON(map[string]string{"type": "Terminate"})
		_ = r.conn.Close()
		r.conn = nil
	}
	r.listening = false
	r.accMu.Lock()
	r.finals = nil
	r.accMu.Unlock()
	logger.Infof("speech: recognition stopped")
}

// SendAudio queues PCM16LE mono 16kHz audio for the active session. Audio
// arriving while not listening is dropped.
func (r *Recognizer) SendAudio(pcm []byte) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.listening {
		return fmt.Errorf("speech: recognizer not listening")
	}
	select {
	case r.audio <- pcm:
	default:
		logger.Warnf("speech: audio buffer full, dropping packet")
	}
	return nil
}

func (r *Recognizer) readLoop(conn *websocket.Conn, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-stop:
			default:
				logger.Errorf("speech: read message: %v", err)
			}
			return
		}
		r.handleMessage(message)
	}
}

func (r *Recognizer) writeLoop(conn *websocket.Conn, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case pcm := <-r.audio:
			if err := conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
				logger.Errorf("speech: send audio: %v", err)
				return
			}
		}
	}
}
