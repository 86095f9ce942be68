package attach

import "sync"

// Kind discriminates the pending attachment union.
type Kind int

const (
	None Kind = iota
	Frame
	File
)

// Pending is the at-most-one artifact awaiting submission: a captured camera
// frame or an uploaded file, never both.
type Pending struct {
	Kind      Kind
	Name      string // file name, empty for frames
	MediaType string
	Data      string // base64 payload
}

// Store holds the pending attachment. Setting one variant clears the other;
// TakeForSend moves the value out so a slow backend call cannot be
// contaminated by a later UI change.
type Store struct {
	mu      sync.Mutex
	pending Pending
}

func NewStore() *Store { return &Store{} }

// SetFrame stores a captured frame, clearing any uploaded file.
func (s *Store) SetFrame(data string) {
	s.mu.Lock()
	s.pending = Pending{Kind: Frame, MediaType: "image/jpeg", Data: data}
	s.mu.Unlock()
}

// SetFile stores an uploaded file, clearing any captured frame.
func (s *Store) SetFile(name, mediaType, data string) {
	s.mu.Lock()
	s.pending = Pending{Kind: File, Name: name, MediaType: mediaType, Data: data}
	s.mu.Unlock()
}

// ClearFrame drops the pending frame, if any. A pending file is untouched.
func (s *Store) ClearFrame() {
	s.mu.Lock()
	if s.pending.Kind == Frame {
		s.pending = Pending{}
	}
	s.mu.Unlock()
}

// ClearFile drops the pending file, if any. A pending frame is untouched.
func (s *Store) ClearFile() {
	s.mu.Lock()
	if s.pending.Kind == File {
		s.pending = Pending{}
	}
	s.mu.Unlock()
}

// TakeForSend atomically reads and clears the pending attachment. Called
// exactly once per dispatch.
func (s *Store) TakeForSend() Pending {
	s.mu.Lock()
	p := s.pending
	s.pending = Pending{}
	s.mu.Unlock()
	return p
}

// HasPending reports whether an attachment is waiting, without consuming it.
func (s *Store) HasPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Kind != None
}
