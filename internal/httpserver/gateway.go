package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/pipiwyoux/midinaiver2/internal/attach"
	"github.com/pipiwyoux/midinaiver2/internal/camera"
	"github.com/pipiwyoux/midinaiver2/internal/config"
	"github.com/pipiwyoux/midinaiver2/internal/router"
	"github.com/pipiwyoux/midinaiver2/internal/speech"
	"github.com/pipiwyoux/midinaiver2/internal/transcript"
	"github.com/pipiwyoux/midinaiver2/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  65536,
	WriteBufferSize: 65536,
	CheckOrigin: func(r *http.Request) bool {
		// Allow any origin for demo use; restrict in production
		return true
	},
}

// clientMessage is the browser-to-server protocol envelope.
type clientMessage struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	Name      string `json:"name,omitempty"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	On        bool   `json:"on,omitempty"`
	URI       string `json:"uri,omitempty"`
}

// serverMessage is the server-to-browser envelope. Synthesized audio travels
// separately as binary frames.
type serverMessage struct {
	Type   string           `json:"type"`
	Turn   *transcript.Turn `json:"turn,omitempty"`
	State  *wireState       `json:"state,omitempty"`
	Voices []speech.Voice   `json:"voices,omitempty"`
	Text   string           `json:"text,omitempty"`
	Final  bool             `json:"final,omitempty"`
}

type wireState struct {
	Loading   bool   `json:"loading"`
	Listening bool   `json:"listening"`
	Error     string `json:"error,omitempty"`
}

// gateway owns the /ws route. Each accepted connection gets its own engine,
// attachment store, frame holder and speech adapters; nothing is shared
// between clients.
type gateway struct {
	cfg     config.Config
	backend router.Backend
}

func (g *gateway) handle(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Warnf("ws upgrade failed: %v", err)
		return nil
	}
	sess := newWSSession(g.cfg, g.backend, ws)
	sess.run(c.Request().Context())
	return nil
}

// wsSession is one connected client: the page session lives and dies with it.
type wsSession struct {
	ws      *websocket.Conn
	writeMu sync.Mutex

	engine *router.Engine
	store  *attach.Store
	frames *camera.FrameSource
	synth  *speech.Synthesizer
	rec    *speech.Recognizer
	done   chan struct{}

	stateMu   sync.Mutex
	lastState router.State
}

func newWSSession(cfg config.Config, backend router.Backend, ws *websocket.Conn) *wsSession {
	s := &wsSession{
		ws:     ws,
		store:  attach.NewStore(),
		frames: camera.NewFrameSource(),
		done:   make(chan struct{}),
	}
	s.synth = speech.NewSynthesizer(cfg.TTSKey, cfg.DefaultLanguage, s)
	s.rec = speech.NewRecognizer(cfg.STTKey, cfg.DefaultLanguage)
	s.engine = router.New(router.Options{
		Backend:     backend,
		Speaker:     s.synth,
		Listener:    s.rec,
		Camera:      s.frames,
		Attachments: s.store,
		Events: router.Events{
			OnTurn:  func(t transcript.Turn) { s.send(serverMessage{Type: "turn", Turn: &t}) },
			OnState: s.publishState,
		},
	})
	return s
}

// WriteAudio implements speech.AudioSink: synthesized audio goes to the
// browser as binary frames.
func (s *wsSession) WriteAudio(chunk []byte) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.ws.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
		logger.Debugf("ws audio write failed: %v", err)
	}
}

func (s *wsSession) run(ctx context.Context) {
	defer func() {
		close(s.done)
		s.rec.Stop()
		s.synth.Cancel()
		_ = s.ws.Close()
	}()

	go s.loadVoices(ctx)
	go s.pumpUtterances(ctx)
	go s.pumpInterim()

	for {
		mt, data, err := s.ws.ReadMessage()
		if err != nil {
			logger.Debugf("ws closed: %v", err)
			return
		}
		switch mt {
		case websocket.BinaryMessage:
			// Microphone audio for the recognizer.
			if err := s.rec.SendAudio(data); err != nil {
				logger.Debugf("drop mic audio: %v", err)
			}
		case websocket.TextMessage:
			var msg clientMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				logger.Warnf("bad client message: %v", err)
				continue
			}
			s.dispatch(ctx, msg)
		}
	}
}

func (s *wsSession) dispatch(ctx context.Context, msg clientMessage) {
	switch msg.Type {
	case "start":
		s.engine.Start()
	case "send":
		go s.sendText(ctx, msg.Text)
	case "frame":
		// Continuous video feed: refreshes the latest frame only. Vision
		// chat captures from here; nothing becomes a pending attachment.
		if err := s.frames.Push(msg.Data); err != nil {
			logger.Warnf("frame rejected: %v", err)
		}
	case "capture":
		// Explicit snapshot action: the latest frame becomes the pending
		// attachment.
		if frame := s.frames.CaptureFrame(); frame != "" {
			s.store.SetFrame(frame)
		}
	case "attach_file":
		s.store.SetFile(msg.Name, msg.MediaType, msg.Data)
	case "clear_frame":
		s.store.ClearFrame()
	case "clear_file":
		s.store.ClearFile()
	case "listen":
		s.setListening(msg.On)
	case "tts":
		s.synth.SetEnabled(msg.On)
	case "camera":
		s.frames.SetEnabled(msg.On)
		if !msg.On {
			s.store.ClearFrame()
		}
	case "voice":
		s.changeVoice(msg.URI)
	default:
		logger.Warnf("unknown client message type %q", msg.Type)
	}
}

func (s *wsSession) sendText(ctx context.Context, text string) {
	if err := s.engine.Send(ctx, text); err != nil {
		logger.Warnf("send rejected: %v", err)
	}
}

func (s *wsSession) setListening(on bool) {
	if on {
		s.synth.Cancel()
		if err := s.rec.Start(); err != nil {
			logger.Warnf("recognizer start failed: %v", err)
			s.engine.RecognitionFailed(err.Error())
		}
	} else {
		s.rec.Stop()
	}
	s.stateMu.Lock()
	last := s.lastState
	s.stateMu.Unlock()
	s.publishState(last)
}

func (s *wsSession) changeVoice(uri string) {
	v, ok := s.synth.SelectVoice(uri)
	if !ok {
		logger.Warnf("unknown voice %q", uri)
		return
	}
	s.rec.SetLanguage(v.Language)
	s.engine.ChangeVoice(v.Name, v.Language, v.URI)
}

func (s *wsSession) loadVoices(ctx context.Context) {
	if err := s.synth.RefreshVoices(ctx); err != nil {
		logger.Warnf("voice list unavailable: %v", err)
		return
	}
	s.send(serverMessage{Type: "voices", Voices: s.synth.Voices()})
}

// pumpUtterances routes completed speech-input utterances into the engine,
// exactly like typed text.
func (s *wsSession) pumpUtterances(ctx context.Context) {
	for {
		select {
		case <-s.done:
			return
		case utterance := <-s.rec.Utterances():
			if err := s.engine.Send(ctx, utterance); err != nil {
				logger.Warnf("voice send rejected: %v", err)
			}
		}
	}
}

// pumpInterim forwards interim recognition text so the browser can preview
// what is being heard.
func (s *wsSession) pumpInterim() {
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.rec.Events():
			s.send(serverMessage{Type: "stt", Text: ev.Text, Final: ev.Final})
		}
	}
}

func (s *wsSession) publishState(st router.State) {
	s.stateMu.Lock()
	s.lastState = st
	s.stateMu.Unlock()
	s.send(serverMessage{Type: "state", State: &wireState{
		Loading:   st.Loading,
		Listening: s.rec.Listening(),
		Error:     st.Error,
	}})
}

func (s *wsSession) send(msg serverMessage) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.ws.WriteJSON(msg); err != nil {
		logger.Debugf("ws write failed: %v", err)
	}
}
