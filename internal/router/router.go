package router

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/pipiwyoux/midinaiver2/internal/attach"
	"github.com/pipiwyoux/midinaiver2/internal/genai"
	"github.com/pipiwyoux/midinaiver2/internal/intent"
	"github.com/pipiwyoux/midinaiver2/internal/transcript"
	"github.com/pipiwyoux/midinaiver2/pkg/logger"
)

var (
	ErrSessionNotInitialized = errors.New("router: session not initialized")
	ErrBusy                  = errors.New("router: a dispatch is already in flight")
	ErrEmptySend             = errors.New("router: nothing to send")
	ErrNoImageProduced       = errors.New("router: backend produced no image")
)

// Backend is the generative collaborator seen from the engine's side.
type Backend interface {
	NewSession(systemInstruction string) Session
	GenerateImage(ctx context.Context, prompt string, count int, outputMimeType string) ([]string, error)
	GenerateOrEditImage(ctx context.Context, parts []genai.Part) ([]genai.Part, error)
}

// Session is one stateful chat handle. A voice change discards the current
// session and opens a new one; there is never more than one live session.
type Session interface {
	SendStreaming(ctx context.Context, parts []genai.Part) (TextStream, error)
}

// TextStream is a finite, forward-only fragment stream.
type TextStream interface {
	Recv() (string, error)
	Close() error
}

// Speaker vocalizes assistant output. Implementations own voice selection;
// SpeakWith forces a specific voice for one utterance.
type Speaker interface {
	Speak(text string)
	SpeakWith(text, voiceURI string)
	Cancel()
}

// Listener is the speech-input side; the engine only ever halts it.
type Listener interface {
	Stop()
}

// Camera supplies the freshest mirrored frame for vision-augmented chat.
type Camera interface {
	CaptureFrame() string
	Enabled() bool
}

// State is the engine's publishable status snapshot.
type State struct {
	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`
}

// Events are the engine's outbound callbacks. Both fire synchronously on the
// dispatching goroutine and must not block.
type Events struct {
	OnTurn  func(transcript.Turn)
	OnState func(State)
}

// Options wires an Engine. Nil Speaker, Listener or Camera collapse to no-ops.
type Options struct {
	Backend     Backend
	Speaker     Speaker
	Listener    Listener
	Camera      Camera
	Attachments *attach.Store
	Events      Events
}

// Engine owns one conversation: the live chat session, the transcript, the
// pending attachment, the last generated image and the loading gate. One
// engine per connected client.
type Engine struct {
	backend     Backend
	speaker     Speaker
	listener    Listener
	camera      Camera
	attachments *attach.Store
	log         *transcript.Transcript
	events      Events

	mu        sync.Mutex
	session   Session
	loading   bool
	errText   string
	lastImage string
}

func New(opts Options) *Engine {
	e := &Engine{
		backend:     opts.Backend,
		speaker:     opts.Speaker,
		listener:    opts.Listener,
		camera:      opts.Camera,
		attachments: opts.Attachments,
		log:         transcript.New(),
		events:      opts.Events,
	}
	if e.speaker == nil {
		e.speaker = nopSpeaker{}
	}
	if e.listener == nil {
		e.listener = nopListener{}
	}
	if e.camera == nil {
		e.camera = nopCamera{}
	}
	if e.attachments == nil {
		e.attachments = attach.NewStore()
	}
	return e
}

// Start opens the chat session and greets the user. Calling it again on a
// started engine is a no-op.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.session != nil {
		e.mu.Unlock()
		return
	}
	e.session = e.backend.NewSession(defaultSystemInstruction)
	e.mu.Unlock()

	e.emitTurn(e.log.Reset(welcomeMessage))
	e.speaker.Speak(welcomeMessage)
}

// Send runs one full dispatch: gate, classify, invoke the backend, fold the
// response into the transcript and trigger speech. It blocks until the turn
// settles; the loading gate rejects overlapping calls instead of queueing.
func (e *Engine) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)

	e.mu.Lock()
	if e.session == nil {
		e.mu.Unlock()
		return ErrSessionNotInitialized
	}
	if e.loading {
		e.mu.Unlock()
		return ErrBusy
	}
	// The attachment is consumed under the same lock as the gates so the
	// empty-send check and the dispatched attachment cannot disagree.
	pending := e.attachments.TakeForSend()
	if text == "" && pending.Kind == attach.None {
		e.mu.Unlock()
		return ErrEmptySend
	}
	e.loading = true
	e.errText = ""
	sess := e.session
	hasPrior := e.lastImage != ""
	e.mu.Unlock()
	e.emitState()

	defer func() {
		e.mu.Lock()
		e.loading = false
		e.mu.Unlock()
		e.emitState()
	}()

	e.listener.Stop()

	var fileRef *transcript.FileRef
	promptImage := ""
	switch pending.Kind {
	case attach.File:
		fileRef = &transcript.FileRef{Name: pending.Name, MediaType: pending.MediaType}
	case attach.Frame:
		promptImage = pending.Data
	}
	e.emitTurn(e.log.AppendUser(text, promptImage, fileRef))

	decision := intent.Classify(intent.Request{
		Text:          text,
		Attachment:    pending,
		HasPriorImage: hasPrior,
		CameraEnabled: e.camera.Enabled(),
	})
	logger.Debugf("dispatch intent=%s", decision.Kind)

	switch decision.Kind {
	case intent.FileAnalysis:
		e.analyzeFile(ctx, sess, text, pending)
	case intent.ImageProcess:
		e.processFrame(ctx, text, pending)
	case intent.Generate:
		e.generate(ctx, decision.GenPrompt)
	case intent.Edit:
		e.edit(ctx, text)
	default:
		e.chat(ctx, sess, text, decision.Visual)
	}
	return nil
}

// ChangeVoice swaps the output voice: it silences any in-flight utterance,
// stops listening, opens a fresh session pinned to the voice's language and
// collapses the transcript to a single notification turn.
func (e *Engine) ChangeVoice(name, language, voiceURI string) {
	e.mu.Lock()
	if e.session == nil {
		e.mu.Unlock()
		return
	}
	e.session = e.backend.NewSession(languageSystemInstruction(language))
	e.mu.Unlock()

	e.speaker.Cancel()
	e.listener.Stop()

	display := strings.TrimSpace(strings.SplitN(name, "(", 2)[0])
	notice := voiceChangedNotice(display)
	e.emitTurn(e.log.Reset(notice))
	e.speaker.SpeakWith(notice, voiceURI)
}

// RecognitionFailed surfaces a speech-input failure as the error banner.
func (e *Engine) RecognitionFailed(detail string) {
	e.mu.Lock()
	e.errText = errRecognitionPrefix + detail
	e.mu.Unlock()
	e.emitState()
}

// Snapshot returns the transcript so far.
func (e *Engine) Snapshot() []transcript.Turn { return e.log.Snapshot() }

// Started reports whether the chat session exists.
func (e *Engine) Started() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session != nil
}

func (e *Engine) analyzeFile(ctx context.Context, sess Session, text string, pending attach.Pending) {
	turn := e.log.AppendModel("")
	e.emitTurn(turn)

	prompt := text
	if prompt == "" {
		prompt = defaultFilePrompt(pending.Name)
	}
	parts := []genai.Part{genai.TextPart(prompt), genai.ImagePart(pending.MediaType, pending.Data)}
	final, err := e.streamInto(ctx, sess, turn.ID, parts)
	if err != nil {
		logger.Errorf("file analysis failed: %v", err)
		e.failTurn(turn.ID, errFileAnalysis, false)
		return
	}
	if final != "" {
		e.speaker.Speak(final)
	}
}

func (e *Engine) processFrame(ctx context.Context, text string, pending attach.Pending) {
	placeholder := processingPlaceholder(text)
	turn := e.log.AppendModel(placeholder)
	e.emitTurn(turn)
	e.speaker.Speak(placeholder)

	prompt := text
	if prompt == "" {
		prompt = defaultFramePrompt
	}
	parts := []genai.Part{genai.ImagePart(pending.MediaType, pending.Data), genai.TextPart(prompt)}
	result, err := e.backend.GenerateOrEditImage(ctx, parts)
	if err != nil {
		logger.Errorf("frame processing failed: %v", err)
		e.failTurn(turn.ID, errImageProcess, true)
		return
	}

	caption, image := foldResult(result, captionProcessed)
	if image != "" {
		e.setLastImage(image)
	}
	e.settleTurn(turn.ID, caption, image)
	e.speaker.Speak(caption)
}

func (e *Engine) generate(ctx context.Context, prompt string) {
	placeholder := generationPlaceholder(prompt)
	turn := e.log.AppendModel(placeholder)
	e.emitTurn(turn)
	e.speaker.Speak(placeholder)

	images, err := e.backend.GenerateImage(ctx, prompt, 1, "image/jpeg")
	if err == nil && len(images) == 0 {
		err = ErrNoImageProduced
	}
	if err != nil {
		logger.Errorf("image generation failed: %v", err)
		msg := errGenerate
		if genai.IsPolicyRejection(err) {
			msg = errGeneratePolicy
		}
		e.failTurn(turn.ID, msg, true)
		return
	}

	e.setLastImage(images[0])
	e.settleTurn(turn.ID, captionGenerated, images[0])
	e.speaker.Speak(captionGenerated)
}

func (e *Engine) edit(ctx context.Context, text string) {
	turn := e.log.AppendModel(editPlaceholder)
	e.emitTurn(turn)
	e.speaker.Speak(editPlaceholder)

	e.mu.Lock()
	last := e.lastImage
	e.mu.Unlock()

	parts := []genai.Part{genai.ImagePart("image/jpeg", last), genai.TextPart(text)}
	result, err := e.backend.GenerateOrEditImage(ctx, parts)
	if err == nil {
		caption, image := foldResult(result, captionEdited)
		if image == "" {
			err = ErrNoImageProduced
		} else {
			e.setLastImage(image)
			e.settleTurn(turn.ID, caption, image)
			e.speaker.Speak(caption)
			return
		}
	}
	logger.Errorf("image edit failed: %v", err)
	e.failTurn(turn.ID, errEdit, true)
}

func (e *Engine) chat(ctx context.Context, sess Session, text string, visual bool) {
	turn := e.log.AppendModel("")
	e.emitTurn(turn)

	var parts []genai.Part
	if frame := e.captureIfVisual(visual); frame != "" {
		parts = []genai.Part{genai.TextPart(visualQuestion(text)), genai.ImagePart("image/jpeg", frame)}
	} else {
		parts = []genai.Part{genai.TextPart(text)}
	}

	final, err := e.streamInto(ctx, sess, turn.ID, parts)
	if err != nil {
		logger.Errorf("chat failed: %v", err)
		detail := strings.TrimSpace(err.Error())
		if detail == "" {
			detail = errChatFallback
		}
		e.failTurn(turn.ID, errChatPrefix+detail, false)
		return
	}
	if final != "" {
		e.speaker.Speak(final)
	}
}

func (e *Engine) captureIfVisual(visual bool) string {
	if !visual {
		return ""
	}
	return e.camera.CaptureFrame()
}

// streamInto drains a fragment stream into the turn: each fragment extends
// the accumulated text and republishes the turn in full, then the turn
// settles on the final text.
func (e *Engine) streamInto(ctx context.Context, sess Session, id int64, parts []genai.Part) (string, error) {
	stream, err := sess.SendStreaming(ctx, parts)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var acc strings.Builder
	for {
		fragment, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		acc.WriteString(fragment)
		if t, ok := e.log.SetText(id, acc.String()); ok {
			e.emitTurn(t)
		}
	}
	final := acc.String()
	e.settleTurn(id, final, "")
	return final, nil
}

// foldResult reduces backend parts to one caption and at most one image:
// the last text wins, the last image wins.
func foldResult(parts []genai.Part, defaultCaption string) (string, string) {
	caption := defaultCaption
	image := ""
	for _, p := range parts {
		if p.InlineData != nil {
			image = p.InlineData.Data
		} else if p.Text != "" {
			caption = p.Text
		}
	}
	return caption, image
}

func (e *Engine) failTurn(id int64, msg string, speak bool) {
	e.mu.Lock()
	e.errText = msg
	e.mu.Unlock()
	e.settleTurn(id, msg, "")
	if speak {
		e.speaker.Speak(msg)
	}
}

func (e *Engine) settleTurn(id int64, text, image string) {
	if t, ok := e.log.Settle(id, text, image); ok {
		e.emitTurn(t)
	}
}

func (e *Engine) setLastImage(image string) {
	e.mu.Lock()
	e.lastImage = image
	e.mu.Unlock()
}

func (e *Engine) emitTurn(t transcript.Turn) {
	if e.events.OnTurn != nil {
		e.events.OnTurn(t)
	}
}

func (e *Engine) emitState() {
	e.mu.Lock()
	st := State{Loading: e.loading, Error: e.errText}
	e.mu.Unlock()
	if e.events.OnState != nil {
		e.events.OnState(st)
	}
}

type nopSpeaker struct{}

func (nopSpeaker) Speak(string)             {}
func (nopSpeaker) SpeakWith(string, string) {}
func (nopSpeaker) Cancel()                  {}

type nopListener struct{}

func (nopListener) Stop() {}

type nopCamera struct{}

func (nopCamera) CaptureFrame() string { return "" }
func (nopCamera) Enabled() bool        { return false }
