package transcript

import (
	"sync"
	"time"
)

// Role identifies the author of a turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// FileRef names an uploaded file on a user turn. Raw bytes are not retained
// in the transcript; they travel with the dispatch only.
type FileRef struct {
	Name      string `json:"name"`
	MediaType string `json:"media_type"`
}

// Turn is one transcript entry. Model turns start as placeholders and are
// mutated in place while a response streams; once settled they are immutable.
type Turn struct {
	ID           int64     `json:"id"`
	Role         Role      `json:"role"`
	Text         string    `json:"text"`
	Timestamp    time.Time `json:"timestamp"`
	PromptImage  string    `json:"prompt_image,omitempty"` // base64 JPEG captured with a user turn
	AttachedFile *FileRef  `json:"attached_file,omitempty"`
	ResultImage  string    `json:"result_image,omitempty"` // base64 image produced by a model turn
	Settled      bool      `json:"-"`
}

// Transcript is the ordered, append-only conversation log. The single
// exception to append-only is the in-place update of an unsettled model turn,
// addressed by its stable id, never by position.
type Transcript struct {
	mu     sync.Mutex
	nextID int64
	turns  []Turn
}

func New() *Transcript {
	return &Transcript{nextID: 1}
}

// AppendUser appends a settled user turn and returns it.
func (t *Transcript) AppendUser(text, promptImage string, file *FileRef) Turn {
	t.mu.Lock()
	defer t.mu.Unlock()
	turn := Turn{
		ID:           t.nextID,
		Role:         RoleUser,
		Text:         text,
		Timestamp:    time.Now(),
		PromptImage:  promptImage,
		AttachedFile: file,
		Settled:      true,
	}
	t.nextID++
	t.turns = append(t.turns, turn)
	return turn
}

// AppendModel appends an unsettled model turn (placeholder or empty streaming
// target) and returns it.
func (t *Transcript) AppendModel(text string) Turn {
	t.mu.Lock()
	defer t.mu.Unlock()
	turn := Turn{
		ID:        t.nextID,
		Role:      RoleModel,
		Text:      text,
		Timestamp: time.Now(),
	}
	t.nextID++
	t.turns = append(t.turns, turn)
	return turn
}

// SetText replaces the full text of an unsettled turn. Returns the updated
// turn and false if the id is unknown or the turn is already settled.
func (t *Transcript) SetText(id int64, text string) (Turn, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.turns {
		if t.turns[i].ID != id {
			continue
		}
		if t.turns[i].Settled {
			return Turn{}, false
		}
		t.turns[i].Text = text
		return t.turns[i], true
	}
	return Turn{}, false
}

// Settle finalizes a model turn with its final text and optional result
// image. After settling, the turn rejects further mutation.
func (t *Transcript) Settle(id int64, text, resultImage string) (Turn, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.turns {
		if t.turns[i].ID != id {
			continue
		}
		if t.turns[i].Settled {
			return Turn{}, false
		}
		t.turns[i].Text = text
		t.turns[i].ResultImage = resultImage
		t.turns[i].Settled = true
		return t.turns[i], true
	}
	return Turn{}, false
}

// Reset discards all turns and appends a single settled model turn, used for
// session restarts where prior history is intentionally dropped.
func (t *Transcript) Reset(text string) Turn {
	t.mu.Lock()
	defer t.mu.Unlock()
	turn := Turn{
		ID:        t.nextID,
		Role:      RoleModel,
		Text:      text,
		Timestamp: time.Now(),
		Settled:   true,
	}
	t.nextID++
	t.turns = []Turn{turn}
	return turn
}

// Snapshot returns a copy of all turns in order.
func (t *Transcript) Snapshot() []Turn {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Turn, len(t.turns))
	copy(out, t.turns)
	return out
}

func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.turns)
}
