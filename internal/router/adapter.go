package router

import (
	"context"

	"github.com/pipiwyoux/midinaiver2/internal/genai"
)

// genaiBackend adapts *genai.Client to the engine's Backend interface.
type genaiBackend struct {
	client *genai.Client
}

func NewGenAIBackend(client *genai.Client) Backend {
	return &genaiBackend{client: client}
}

func (b *genaiBackend) NewSession(systemInstruction string) Session {
	return &genaiSession{sess: b.client.CreateSession(systemInstruction)}
}

func (b *genaiBackend) GenerateImage(ctx context.Context, prompt string, count int, outputMimeType string) ([]string, error) {
	return b.client.GenerateImage(ctx, prompt, count, outputMimeType)
}

func (b *genaiBackend) GenerateOrEditImage(ctx context.Context, parts []genai.Part) ([]genai.Part, error) {
	return b.client.GenerateOrEditImage(ctx, parts)
}

type genaiSession struct {
	sess *genai.ChatSession
}

func (s *genaiSession) SendStreaming(ctx context.Context, parts []genai.Part) (TextStream, error) {
	stream, err := s.sess.SendStreaming(ctx, parts)
	if err != nil {
		return nil, err
	}
	return stream, nil
}
