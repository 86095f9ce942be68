package genai

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ChatSession is a stateful chat handle: it accumulates conversation history
// and replays it on every streaming send.
type ChatSession struct {
	ID string

	client            *Client
	systemInstruction string

	mu      sync.Mutex
	history []content
}

// CreateSession opens a fresh chat handle with the given system instruction.
// No network call happens until the first send.
func (c *Client) CreateSession(systemInstruction string) *ChatSession {
	return &ChatSession{
		ID:                uuid.NewString(),
		client:            c,
		systemInstruction: systemInstruction,
	}
}

// SendStreaming submits the parts as the next user message and returns a
// finite, forward-only stream of text fragments. The user message joins the
// session history only once the request is accepted, so a failed send is not
// replayed on the next one; the model reply joins the history once the stream
// is exhausted.
func (s *ChatSession) SendStreaming(ctx context.Context, parts []Part) (*Stream, error) {
	userContent := content{Role: "user", Parts: parts}

	s.mu.Lock()
	contents := make([]content, len(s.history), len(s.history)+1)
	copy(contents, s.history)
	contents = append(contents, userContent)
	s.mu.Unlock()

	body := generateContentRequest{Contents: contents}
	if s.systemInstruction != "" {
		body.SystemInstruction = &content{Parts: []Part{TextPart(s.systemInstruction)}}
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	url := s.client.BaseURL + "/models/" + s.client.ChatModel + ":streamGenerateContent?alt=sse"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(buf)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", s.client.APIKey)

	resp, err := s.client.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := readAPIError(resp)
		resp.Body.Close()
		return nil, err
	}

	s.mu.Lock()
	s.history = append(s.history, userContent)
	s.mu.Unlock()
	return &Stream{sess: s, body: resp.Body, reader: bufio.NewReader(resp.Body)}, nil
}

// Stream is a lazy sequence of text fragments from a streaming send. Not
// restartable; there is no mid-stream cancel beyond closing it.
type Stream struct {
	sess   *ChatSession
	body   io.ReadCloser
	reader *bufio.Reader
	acc    strings.Builder
	done   bool
}

// Recv returns the next text fragment, or io.EOF when the stream is
// exhausted. On EOF the accumulated model reply is committed to the session
// history.
func (st *Stream) Recv() (string, error) {
	if st.done {
		return "", io.EOF
	}
	for {
		line, err := st.reader.ReadString('\n')
		if err != nil {
			st.finish()
			if err == io.EOF {
				return "", io.EOF
			}
			return "", err
		}
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			continue
		}
		var chunk generateContentResponse
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		fragment := chunkText(chunk)
		if fragment == "" {
			continue
		}
		st.acc.WriteString(fragment)
		return fragment, nil
	}
}

// Close releases the underlying connection. Safe to call multiple times.
func (st *Stream) Close() error {
	st.finish()
	return nil
}

func (st *Stream) finish() {
	if st.done {
		return
	}
	st.done = true
	_ = st.body.Close()
	if text := st.acc.String(); text != "" {
		st.sess.commitModel(text)
	}
}

func (s *ChatSession) commitModel(text string) {
	s.mu.Lock()
	s.history = append(s.history, content{Role: "model", Parts: []Part{TextPart(text)}})
	s.mu.Unlock()
}

func chunkText(resp generateContentResponse) string {
	if len(resp.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}
