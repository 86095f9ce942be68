package httpserver

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipiwyoux/midinaiver2/internal/config"
	"github.com/pipiwyoux/midinaiver2/internal/genai"
	"github.com/pipiwyoux/midinaiver2/internal/router"
)

type stubStream struct {
	fragments []string
}

func (s *stubStream) Recv() (string, error) {
	if len(s.fragments) == 0 {
		return "", io.EOF
	}
	f := s.fragments[0]
	s.fragments = s.fragments[1:]
	return f, nil
}

func (s *stubStream) Close() error { return nil }

type stubSession struct {
	fragments []string

	mu    sync.Mutex
	calls [][]genai.Part
}

func (s *stubSession) SendStreaming(_ context.Context, parts []genai.Part) (router.TextStream, error) {
	s.mu.Lock()
	s.calls = append(s.calls, parts)
	s.mu.Unlock()
	return &stubStream{fragments: s.fragments}, nil
}

func (s *stubSession) sentParts() [][]genai.Part {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]genai.Part, len(s.calls))
	copy(out, s.calls)
	return out
}

type stubBackend struct {
	session *stubSession

	mu        sync.Mutex
	editCalls [][]genai.Part
}

func newStubBackend(fragments ...string) *stubBackend {
	return &stubBackend{session: &stubSession{fragments: fragments}}
}

func (b *stubBackend) NewSession(string) router.Session {
	return b.session
}

func (b *stubBackend) GenerateImage(context.Context, string, int, string) ([]string, error) {
	return []string{"aW1n"}, nil
}

func (b *stubBackend) GenerateOrEditImage(_ context.Context, parts []genai.Part) ([]genai.Part, error) {
	b.mu.Lock()
	b.editCalls = append(b.editCalls, parts)
	b.mu.Unlock()
	return []genai.Part{genai.ImagePart("image/png", "aW1n")}, nil
}

func (b *stubBackend) editCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.editCalls)
}

// jpegB64 renders a tiny valid JPEG frame for the camera protocol.
func jpegB64(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4)), nil))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestServer_Healthz(t *testing.T) {
	srv := New(config.Config{}, newStubBackend())
	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	srv.Echo.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func dialWS(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(srv.Echo)
	t.Cleanup(ts.Close)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

// readUntil pumps server messages until match returns true or the deadline
// passes. Binary frames (audio) are skipped.
func readUntil(t *testing.T, ws *websocket.Conn, match func(serverMessage) bool) serverMessage {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	require.NoError(t, ws.SetReadDeadline(deadline))
	for {
		mt, data, err := ws.ReadMessage()
		require.NoError(t, err, "ws read")
		if mt != websocket.TextMessage {
			continue
		}
		var msg serverMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		if match(msg) {
			return msg
		}
	}
}

func TestGateway_StartGreetsClient(t *testing.T) {
	srv := New(config.Config{DefaultLanguage: "id-ID"}, newStubBackend())
	ws := dialWS(t, srv)

	require.NoError(t, ws.WriteJSON(map[string]any{"type": "start"}))

	msg := readUntil(t, ws, func(m serverMessage) bool { return m.Type == "turn" })
	require.NotNil(t, msg.Turn)
	assert.Contains(t, msg.Turn.Text, "MIDIN AI")
}

func TestGateway_SendStreamsTurnUpdates(t *testing.T) {
	srv := New(config.Config{DefaultLanguage: "id-ID"}, newStubBackend("Halo ", "dunia"))
	ws := dialWS(t, srv)

	require.NoError(t, ws.WriteJSON(map[string]any{"type": "start"}))
	readUntil(t, ws, func(m serverMessage) bool { return m.Type == "turn" })

	require.NoError(t, ws.WriteJSON(map[string]any{"type": "send", "text": "halo"}))

	loading := readUntil(t, ws, func(m serverMessage) bool { return m.Type == "state" })
	require.NotNil(t, loading.State)
	assert.True(t, loading.State.Loading)

	final := readUntil(t, ws, func(m serverMessage) bool {
		return m.Type == "turn" && m.Turn.Text == "Halo dunia"
	})
	assert.Equal(t, "model", string(final.Turn.Role))

	done := readUntil(t, ws, func(m serverMessage) bool {
		return m.Type == "state" && !m.State.Loading
	})
	assert.Empty(t, done.State.Error)
}

func TestGateway_SendBeforeStartIsIgnored(t *testing.T) {
	srv := New(config.Config{DefaultLanguage: "id-ID"}, newStubBackend())
	ws := dialWS(t, srv)

	// Rejected sends produce no turn; start afterwards still works.
	require.NoError(t, ws.WriteJSON(map[string]any{"type": "send", "text": "halo"}))
	require.NoError(t, ws.WriteJSON(map[string]any{"type": "start"}))

	msg := readUntil(t, ws, func(m serverMessage) bool { return m.Type == "turn" })
	assert.Contains(t, msg.Turn.Text, "MIDIN AI")
}

func TestGateway_StreamedFramesStayOutOfAttachments(t *testing.T) {
	backend := newStubBackend("Itu kucing.")
	srv := New(config.Config{DefaultLanguage: "id-ID"}, backend)
	ws := dialWS(t, srv)

	require.NoError(t, ws.WriteJSON(map[string]any{"type": "start"}))
	readUntil(t, ws, func(m serverMessage) bool { return m.Type == "turn" })

	// A live video frame plus a visual question must run as vision chat,
	// not as frame processing.
	require.NoError(t, ws.WriteJSON(map[string]any{"type": "frame", "data": jpegB64(t)}))
	require.NoError(t, ws.WriteJSON(map[string]any{"type": "send", "text": "apa ini"}))

	readUntil(t, ws, func(m serverMessage) bool {
		return m.Type == "turn" && m.Turn.Text == "Itu kucing."
	})

	calls := backend.session.sentParts()
	require.Len(t, calls, 1)
	require.Len(t, calls[0], 2)
	assert.Contains(t, calls[0][0].Text, "apa ini")
	require.NotNil(t, calls[0][1].InlineData)
	assert.Zero(t, backend.editCount())
}

func TestGateway_CaptureTurnsFrameIntoAttachment(t *testing.T) {
	backend := newStubBackend()
	srv := New(config.Config{DefaultLanguage: "id-ID"}, backend)
	ws := dialWS(t, srv)

	require.NoError(t, ws.WriteJSON(map[string]any{"type": "start"}))
	readUntil(t, ws, func(m serverMessage) bool { return m.Type == "turn" })

	require.NoError(t, ws.WriteJSON(map[string]any{"type": "frame", "data": jpegB64(t)}))
	require.NoError(t, ws.WriteJSON(map[string]any{"type": "capture"}))
	require.NoError(t, ws.WriteJSON(map[string]any{"type": "send", "text": "apa ini"}))

	readUntil(t, ws, func(m serverMessage) bool {
		return m.Type == "turn" && m.Turn.Text == "Berikut adalah hasilnya."
	})
	assert.Equal(t, 1, backend.editCount())
	assert.Empty(t, backend.session.sentParts())
}

func TestGateway_UnknownMessageTolerated(t *testing.T) {
	srv := New(config.Config{DefaultLanguage: "id-ID"}, newStubBackend())
	ws := dialWS(t, srv)

	require.NoError(t, ws.WriteJSON(map[string]any{"type": "mystery"}))
	require.NoError(t, ws.WriteJSON(map[string]any{"type": "start"}))
	readUntil(t, ws, func(m serverMessage) bool { return m.Type == "turn" })
}
