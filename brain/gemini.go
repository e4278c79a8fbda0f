package brain

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

const geminiDefaultModel = "gemini-2.5-flash"

type geminiBrain struct {
	client *genai.Client
	model  string
	cfg    Config
}

func newGeminiBrain(ctx context.Context, cfg Config) (*geminiBrain, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("brain: gemini provider needs an API key")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("brain: gemini client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = geminiDefaultModel
	}
	return &geminiBrain{client: client, model: model, cfg: cfg}, nil
}

func (g *geminiBrain) generate(ctx context.Context, prompt string) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"})
	if err != nil {
		return "", fmt.Errorf("brain: gemini generate: %w", err)
	}
	return resp.Text(), nil
}

func (g *geminiBrain) Summarize(ctx context.Context, goal string, c Candidate) (*Analysis, error) {
	out, err := g.generate(ctx, analysisPrompt(goal, c, g.cfg.MaxDoc))
	if err != nil {
		return nil, err
	}
	return parseAnalysis(out)
}

func (g *geminiBrain) ProposeStrategy(ctx context.Context, req StrategyRequest) (*StrategyProposal, error) {
	out, err := g.generate(ctx, strategyPrompt(req))
	if err != nil {
		return nil, err
	}
	return parseStrategy(out)
}
