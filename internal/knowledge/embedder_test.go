package knowledge

import (
	"context"
	"errors"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
)

// mockEmbedder implements ai.Embedder for testing.
type mockEmbedder struct {
	embedErr    error
	returnEmpty bool
	embeddings  []float32
	callCount   int
	lastInput   string
}

func (m *mockEmbedder) Name() string { return "mock-embedder" }

func (m *mockEmbedder) Register(_ api.Registry) {}

func (m *mockEmbedder) Embed(_ context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	m.callCount++
	if len(req.Input) > 0 && len(req.Input[0].Content) > 0 {
		m.lastInput = req.Input[0].Content[0].Text
	}
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	if m.returnEmpty {
		return &ai.EmbedResponse{Embeddings: []*ai.Embedding{{Embedding: []float32{}}}}, nil
	}
	embeddings := m.embeddings
	if embeddings == nil {
		embeddings = []float32{0.1, 0.2, 0.3}
	}
	return &ai.EmbedResponse{Embeddings: []*ai.Embedding{{Embedding: embeddings}}}, nil
}

func TestEmbedText(t *testing.T) {
	mock := &mockEmbedder{embeddings: []float32{0.5, 0.6}}
	e := NewEmbedder(mock)

	vec, err := e.EmbedText(context.Background(), "what is the raid schedule?")
	if err != nil {
		t.Fatalf("EmbedText() = %v", err)
	}
	if len(vec) != 2 || vec[0] != 0.5 {
		t.Errorf("EmbedText() = %v, want [0.5 0.6]", vec)
	}
	if mock.lastInput != "what is the raid schedule?" {
		t.Errorf("embedder received %q", mock.lastInput)
	}
}

func TestEmbedText_ProviderError(t *testing.T) {
	mock := &mockEmbedder{embedErr: errors.New("quota exceeded")}
	e := NewEmbedder(mock)

	if _, err := e.EmbedText(context.Background(), "q"); err == nil {
		t.Fatal("EmbedText() = nil, want wrapped provider error")
	}
}

func TestEmbedText_EmptyEmbedding(t *testing.T) {
	mock := &mockEmbedder{returnEmpty: true}
	e := NewEmbedder(mock)

	if _, err := e.EmbedText(context.Background(), "q"); err == nil {
		t.Fatal("EmbedText() = nil, want error for empty embedding")
	}
}
