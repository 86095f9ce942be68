package intent

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pipiwyoux/midinaiver2/internal/attach"
)

// Kind is the dispatch decision for a user utterance.
type Kind int

const (
	Chat Kind = iota
	FileAnalysis
	ImageProcess
	Generate
	Edit
)

func (k Kind) String() string {
	switch k {
	case FileAnalysis:
		return "file-analysis"
	case ImageProcess:
		return "image-process"
	case Generate:
		return "generate"
	case Edit:
		return "edit"
	default:
		return "chat"
	}
}

// Keyword sets are data, not scattered literals, so localization and tests
// stay cheap. Matching is case-insensitive substring containment.
var (
	// GenerationKeywords trigger image generation when no attachment is pending.
	GenerationKeywords = []string{"buatkan gambar", "generate gambar", "create an image", "lukiskan"}

	// EditKeywords trigger an edit of the last generated image.
	EditKeywords = []string{"ubah", "tambahkan", "ganti", "edit", "add", "change", "make", "jadikan"}

	// VisualKeywords promote a plain chat to a vision-augmented one when the
	// camera is available.
	VisualKeywords = []string{"lihat", "gambarkan", "apa ini", "kamera", "gambar ini"}
)

// Request carries the classification inputs.
type Request struct {
	Text          string
	Attachment    attach.Pending
	HasPriorImage bool
	CameraEnabled bool
}

// Decision is the classification outcome.
type Decision struct {
	Kind Kind
	// GenPrompt is the text after the matched generation keyword, trimmed.
	GenPrompt string
	// Visual is set on Chat decisions when a visual keyword matched and the
	// camera is enabled; the dispatcher may attach a fresh frame.
	Visual bool
}

// Classify applies the fixed, priority-ordered rules: attached file, captured
// frame, generation keyword, edit keyword (only with a prior generated image,
// otherwise falls through), then plain or vision chat.
func Classify(req Request) Decision {
	switch req.Attachment.Kind {
	case attach.File:
		return Decision{Kind: FileAnalysis}
	case attach.Frame:
		return Decision{Kind: ImageProcess}
	}
	if end, ok := matchKeyword(req.Text, GenerationKeywords); ok {
		prompt := strings.TrimSpace(req.Text[end:])
		return Decision{Kind: Generate, GenPrompt: prompt}
	}
	if _, ok := matchKeyword(req.Text, EditKeywords); ok && req.HasPriorImage {
		return Decision{Kind: Edit}
	}
	if _, ok := matchKeyword(req.Text, VisualKeywords); ok && req.CameraEnabled {
		return Decision{Kind: Chat, Visual: true}
	}
	return Decision{Kind: Chat}
}

// matchKeyword finds the first keyword contained in text, case-insensitively,
// and returns the byte offset just past the match. Offsets are computed
// against text itself: lowercasing can change rune widths, so an index into a
// lowered copy is not safe to slice with.
func matchKeyword(text string, keywords []string) (int, bool) {
	for _, kw := range keywords {
		for i := range text {
			if n, ok := foldPrefix(text[i:], kw); ok {
				return i + n, true
			}
		}
	}
	return 0, false
}

// foldPrefix reports whether s starts with the lowercase keyword under
// simple case folding, returning the matched byte length in s.
func foldPrefix(s, keyword string) (int, bool) {
	n := 0
	for _, kr := range keyword {
		r, size := utf8.DecodeRuneInString(s[n:])
		if size == 0 || unicode.ToLower(r) != kr {
			return 0, false
		}
		n += size
	}
	return n, true
}
