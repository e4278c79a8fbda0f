package vectorize

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

const geminiEmbedModel = "gemini-embedding-001"

// geminiClient embeds through the Gemini API. gemini-embedding-001
// produces 768-dimensional vectors.
type geminiClient struct {
	client *genai.Client
	model  string
	dim    int
}

func newGeminiClient(ctx context.Context, cfg Config) (*geminiClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("vectorize: gemini backend needs an API key")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("vectorize: gemini client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = geminiEmbedModel
	}
	dim := cfg.Dimension
	if dim <= 0 {
		dim = 768
	}
	return &geminiClient{client: client, model: model, dim: dim}, nil
}

func (g *geminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := g.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (g *geminiClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	result, err := g.client.Models.EmbedContent(ctx, g.model, contents,
		&genai.EmbedContentConfig{TaskType: "SEMANTIC_SIMILARITY"})
	if err != nil {
		return nil, fmt.Errorf("vectorize: gemini embed: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("vectorize: gemini returned %d embeddings for %d texts",
			len(result.Embeddings), len(texts))
	}

	vecs := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		vecs[i] = emb.Values
	}
	return vecs, nil
}

func (g *geminiClient) Dimension() int { return g.dim }
func (g *geminiClient) Model() string  { return g.model }
