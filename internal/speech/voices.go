package speech

// Voice is a selectable voice profile surfaced by the TTS provider.
type Voice struct {
	URI      string `json:"uri"`
	Name     string `json:"name"`
	Language string `json:"language"` // IETF tag, e.g. id-ID
	Provider string `json:"provider"`
}

// preferredProvider marks the provider's premium voice tier, preferred by the
// default selection.
const preferredProvider = "premade"

// DefaultVoice applies the deterministic default order: a language-matching
// voice from the preferred provider, else any language match, else the first
// available voice.
func DefaultVoice(voices []Voice, language string) (Voice, bool) {
	if len(voices) == 0 {
		return Voice{}, false
	}
	for _, v := range voices {
		if v.Language == language && v.Provider == preferredProvider {
			return v, true
		}
	}
	for _, v := range voices {
		if v.Language == language {
			return v, true
		}
	}
	return voices[0], true
}

// SetVoices replaces the known voice list. The default selection is
// re-applied on every change until the user has made an explicit choice, and
// an utterance held back while no voice was available is spoken now.
func (s *Synthesizer) SetVoices(voices []Voice) {
	s.mu.Lock()
	s.voices = voices
	if !s.userSelected {
		if v, ok := DefaultVoice(voices, s.language); ok {
			s.selectedURI = v.URI
		}
	}
	var queued string
	if s.selectedURI != "" {
		queued = s.queued
		s.queued = ""
	}
	s.mu.Unlock()
	if queued != "" {
		s.SpeakWith(queued, "")
	}
}

// Voices returns a copy of the known voice list.
func (s *Synthesizer) Voices() []Voice {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Voice, len(s.voices))
	copy(out, s.voices)
	return out
}

// SelectVoice records an explicit user selection. Subsequent voice-list
// refreshes no longer override it.
func (s *Synthesizer) SelectVoice(uri string) (Voice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.voices {
		if v.URI == uri {
			s.selectedURI = uri
			s.userSelected = true
			s.language = v.Language
			return v, true
		}
	}
	return Voice{}, false
}

// SelectedVoice returns the current selection, if any.
func (s *Synthesizer) SelectedVoice() (Voice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.voices {
		if v.URI == s.selectedURI {
			return v, true
		}
	}
	return Voice{}, false
}
