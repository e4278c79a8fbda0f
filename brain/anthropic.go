package brain

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicDefaultModel = "claude-sonnet-4-5-20250929"

type anthropicBrain struct {
	client *anthropic.Client
	model  string
	cfg    Config
}

func newAnthropicBrain(cfg Config) *anthropicBrain {
	client := anthropic.NewClient(option.WithAPIKey(cfg.APIKey))
	model := cfg.Model
	if model == "" {
		model = anthropicDefaultModel
	}
	return &anthropicBrain{client: &client, model: model, cfg: cfg}
}

func (a *anthropicBrain) generate(ctx context.Context, prompt string) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}

	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("brain: anthropic: %w", err)
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	return out.String(), nil
}

func (a *anthropicBrain) Summarize(ctx context.Context, goal string, c Candidate) (*Analysis, error) {
	out, err := a.generate(ctx, analysisPrompt(goal, c, a.cfg.MaxDoc))
	if err != nil {
		return nil, err
	}
	return parseAnalysis(out)
}

func (a *anthropicBrain) ProposeStrategy(ctx context.Context, req StrategyRequest) (*StrategyProposal, error) {
	out, err := a.generate(ctx, strategyPrompt(req))
	if err != nil {
		return nil, err
	}
	return parseStrategy(out)
}
