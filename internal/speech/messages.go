package speech

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/pipiwyoux/midinaiver2/pkg/logger"
)

// handleMessage processes one recognizer wire message. Interim transcripts
// are published as events only; a final transcript closes the current
// utterance: accumulated final segments are concatenated and forwarded.
func (r *Recognizer) handleMessage(message []byte) {
	var base struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(message, &base); err != nil {
		logger.Errorf("speech: unmarshal message: %v", err)
		return
	}
	switch base.Type {
	case "Begin":
		var msg beginMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			return
		}
		logger.Infof("speech: session began id=%s expires=%s", msg.ID, time.Unix(msg.ExpiresAt, 0).Format(time.RFC3339))
	case "Turn":
		var msg turnMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			return
		}
		if msg.Transcript == "" {
			return
		}
		r.publishEvent(RecognitionEvent{Text: msg.Transcript, Final: msg.EndOfTurn})
		if !msg.EndOfTurn {
			return
		}
		r.accMu.Lock()
		r.finals = append(r.finals, msg.Transcript)
		utterance := strings.TrimSpace(strings.Join(r.finals, " "))
		r.finals = nil
		r.accMu.Unlock()
		if utterance == "" {
			return
		}
		select {
		case r.utterances <- utterance:
		default:
			logger.Warnf("speech: utterance channel full, dropping %q", utterance)
		}
	case "Termination":
		logger.Infof("speech: session terminated")
	case "Error":
		var msg errorMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			return
		}
		logger.Errorf("speech: recognizer error: %s", msg.Error)
	default:
		logger.Debugf("speech: unknown message type %q", base.Type)
	}
}

func (r *Recognizer) publishEvent(ev RecognitionEvent) {
	select {
	case r.events <- ev:
	default:
	}
}
