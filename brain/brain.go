// Package brain holds the LLM collaborators: the Analyst that
// summarizes and scores candidate repositories, and the Strategist that
// proposes fresh query strategies when yield collapses.
//
// Both are fallible by contract. Callers treat any error as a degraded
// cycle, never a fatal one: scoring falls back to local similarity and
// the prior strategy stays active.
package brain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ErrUnavailable is returned by the noop brain when no provider is
// configured.
var ErrUnavailable = errors.New("brain: no provider configured")

// Candidate is one repository handed to the Analyst.
type Candidate struct {
	Title       string
	Description string
	Doc         string // README content, possibly empty
}

// Analysis is the Analyst's verdict.
type Analysis struct {
	Summary string  `json:"summary"`
	Score   float64 `json:"score"`
}

// StrategyProposal is the Strategist's replacement query configuration.
type StrategyProposal struct {
	Analysis      string             `json:"analysis,omitempty"`
	Keywords      []string           `json:"keywords"`
	AvoidKeywords []string           `json:"avoid_keywords,omitempty"`
	Languages     []string           `json:"languages,omitempty"`
	MinStars      int                `json:"min_stars,omitempty"`
	TacticWeights map[string]float64 `json:"tactic_weights,omitempty"`
}

// StrategyRequest carries the context the Strategist reasons over.
// Stats, Feedback and Analytics arrive preformatted so the brain stays
// decoupled from storage types.
type StrategyRequest struct {
	Goal      string
	Stats     string
	Feedback  string
	Analytics string
}

// Analyst summarizes a candidate against a research goal and scores its
// relevance in [0, 1].
type Analyst interface {
	Summarize(ctx context.Context, goal string, c Candidate) (*Analysis, error)
}

// Strategist proposes a replacement search strategy.
type Strategist interface {
	ProposeStrategy(ctx context.Context, req StrategyRequest) (*StrategyProposal, error)
}

// Brain bundles both collaborator roles.
type Brain interface {
	Analyst
	Strategist
}

// Config selects and configures a provider.
type Config struct {
	// Provider is "gemini", "anthropic", or "" for the noop brain.
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`

	// Timeout per call. Default 60s.
	Timeout time.Duration `yaml:"timeout"`

	// MaxDoc caps the README bytes sent in a prompt. Default 5000.
	MaxDoc int `yaml:"max_doc"`
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.MaxDoc <= 0 {
		c.MaxDoc = 5000
	}
}

// New creates the configured Brain. With no provider it returns a noop
// whose calls fail with ErrUnavailable, which the pipeline absorbs as
// the degraded path.
func New(ctx context.Context, cfg Config) (Brain, error) {
	cfg.defaults()
	switch cfg.Provider {
	case "gemini":
		return newGeminiBrain(ctx, cfg)
	case "anthropic":
		return newAnthropicBrain(cfg), nil
	case "":
		slog.Warn("brain: no provider configured, scoring degrades to local similarity")
		return noopBrain{}, nil
	default:
		return nil, fmt.Errorf("brain: unknown provider %q", cfg.Provider)
	}
}

type noopBrain struct{}

func (noopBrain) Summarize(context.Context, string, Candidate) (*Analysis, error) {
	return nil, ErrUnavailable
}

func (noopBrain) ProposeStrategy(context.Context, StrategyRequest) (*StrategyProposal, error) {
	return nil, ErrUnavailable
}

// extractJSON pulls the first JSON object out of model output, tolerating
// markdown fences and prose around it. Returns "" when no object is found.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if after, ok := strings.CutPrefix(s, "```json"); ok {
		s = after
	} else if after, ok := strings.CutPrefix(s, "```"); ok {
		s = after
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func parseAnalysis(raw string) (*Analysis, error) {
	obj := extractJSON(raw)
	if obj == "" {
		return nil, fmt.Errorf("brain: no JSON object in analysis response")
	}
	var a Analysis
	if err := json.Unmarshal([]byte(obj), &a); err != nil {
		return nil, fmt.Errorf("brain: decode analysis: %w", err)
	}
	a.Score = min(1, max(0, a.Score))
	return &a, nil
}

func parseStrategy(raw string) (*StrategyProposal, error) {
	obj := extractJSON(raw)
	if obj == "" {
		return nil, fmt.Errorf("brain: no JSON object in strategy response")
	}
	var p StrategyProposal
	if err := json.Unmarshal([]byte(obj), &p); err != nil {
		return nil, fmt.Errorf("brain: decode strategy: %w", err)
	}
	if len(p.Keywords) == 0 {
		return nil, fmt.Errorf("brain: strategy proposal has no keywords")
	}
	return &p, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
