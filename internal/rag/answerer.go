// Package rag answers questions from the stored knowledge base.
//
// Answering is a two-stage flow. Retrieval resolves the question to its
// nearest stored chunks, consulting the similarity cache before the
// vector store. Generation hands the question plus the retrieved chunk
// texts to the model under a grounding prompt that forbids answers from
// outside the provided context.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/prasetya0/guildlore/internal/cache"
	"github.com/prasetya0/guildlore/internal/knowledge"
)

// ErrGeneration reports a model provider failure. Provider internals
// stay in the logs; callers only see this sentinel.
var ErrGeneration = errors.New("answer generation failed")

// systemPrompt grounds the model to the retrieved context.
const systemPrompt = `You are a knowledge assistant for a community server.
Answer using ONLY the information in the provided context.
If the context does not contain enough information to answer,
reply that the question is beyond your knowledge. Do not invent facts.`

// Embedder maps question text to its embedding vector.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Searcher performs nearest-neighbour search over stored chunks.
type Searcher interface {
	SearchByVector(ctx context.Context, vec []float32, k int) ([]knowledge.Result, error)
}

// QueryCache caches similarity results per question.
type QueryCache interface {
	GetSimilarity(ctx context.Context, key string) ([]knowledge.Result, bool, error)
	SetSimilarity(ctx context.Context, key string, results []knowledge.Result, ttl time.Duration) error
}

// Generator produces a model response for the given options.
type Generator interface {
	Generate(ctx context.Context, opts ...ai.GenerateOption) (*ai.ModelResponse, error)
}

// NewGenerator adapts an initialized genkit instance to the Generator
// interface.
func NewGenerator(g *genkit.Genkit) Generator {
	return genkitGenerator{g: g}
}

type genkitGenerator struct {
	g *genkit.Genkit
}

func (gg genkitGenerator) Generate(ctx context.Context, opts ...ai.GenerateOption) (*ai.ModelResponse, error) {
	return genkit.Generate(ctx, gg.g, opts...)
}

// Answer is one grounded reply with the chunks it was grounded on.
type Answer struct {
	Text    string
	Context []knowledge.Chunk
}

// Config tunes the answering flow.
type Config struct {
	// ModelName is the generation model in provider/name form.
	ModelName string

	// TopK is how many nearest chunks retrieval returns.
	TopK int

	// QueryTTL bounds how long a cached similarity result may serve
	// repeat questions.
	QueryTTL time.Duration

	// Scope namespaces the similarity cache, typically the guild id.
	Scope string
}

// Answerer runs the retrieve-then-generate flow.
type Answerer struct {
	embedder  Embedder
	searcher  Searcher
	cache     QueryCache
	generator Generator
	cfg       Config
	logger    *slog.Logger
}

// New creates an Answerer. A nil logger falls back to slog.Default.
func New(embedder Embedder, searcher Searcher, queryCache QueryCache, generator Generator, cfg Config, logger *slog.Logger) *Answerer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 4
	}
	return &Answerer{
		embedder:  embedder,
		searcher:  searcher,
		cache:     queryCache,
		generator: generator,
		cfg:       cfg,
		logger:    logger,
	}
}

// Answer resolves question against the knowledge base and returns a
// grounded reply. The model is consulted even when retrieval comes back
// empty so the "beyond my knowledge" wording stays the model's.
func (a *Answerer) Answer(ctx context.Context, question string) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, errors.New("empty question")
	}

	results, err := a.retrieve(ctx, question)
	if err != nil {
		return Answer{}, err
	}

	text, err := a.generate(ctx, question, results)
	if err != nil {
		return Answer{}, err
	}

	chunks := make([]knowledge.Chunk, len(results))
	for i, r := range results {
		chunks[i] = r.Chunk
	}
	return Answer{Text: text, Context: chunks}, nil
}

// retrieve returns the nearest chunks for question, serving repeats from
// the similarity cache. A cache backend failure degrades to a direct
// store search.
func (a *Answerer) retrieve(ctx context.Context, question string) ([]knowledge.Result, error) {
	key := cache.QueryKey(a.cfg.Scope, question)

	cached, ok, err := a.cache.GetSimilarity(ctx, key)
	switch {
	case err != nil:
		a.logger.Warn("similarity cache unavailable, searching store directly", "error", err)
	case ok:
		a.logger.Debug("similarity cache hit", "key", key)
		return cached, nil
	}

	vec, err := a.embedder.EmbedText(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embedding question: %w", err)
	}

	results, err := a.searcher.SearchByVector(ctx, vec, a.cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("searching knowledge base: %w", err)
	}

	if err := a.cache.SetSimilarity(ctx, key, results, a.cfg.QueryTTL); err != nil {
		a.logger.Warn("caching similarity results failed", "key", key, "error", err)
	}
	return results, nil
}

func (a *Answerer) generate(ctx context.Context, question string, results []knowledge.Result) (string, error) {
	var sb strings.Builder
	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(r.Chunk.Content)
	}
	contextText := sb.String()
	if contextText == "" {
		contextText = "(no relevant documents found)"
	}

	prompt := fmt.Sprintf("Context:\n%s\n\nQuestion: %s", contextText, question)

	opts := []ai.GenerateOption{
		ai.WithSystem(systemPrompt),
		ai.WithPrompt(prompt),
	}
	if a.cfg.ModelName != "" {
		opts = append(opts, ai.WithModelName(a.cfg.ModelName))
	}

	resp, err := a.generator.Generate(ctx, opts...)
	if err != nil {
		a.logger.Error("model generation failed", "error", err)
		return "", ErrGeneration
	}
	return resp.Text(), nil
}
