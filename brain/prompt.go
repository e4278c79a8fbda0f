package brain

import (
	"fmt"
	"strings"
)

func analysisPrompt(goal string, c Candidate, maxDoc int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a research analyst. The research goal is: %q\n\n", goal)
	fmt.Fprintf(&b, "Candidate repository: %s\n", c.Title)
	if c.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", c.Description)
	}
	if c.Doc != "" {
		fmt.Fprintf(&b, "\nREADME excerpt:\n%s\n", truncate(c.Doc, maxDoc))
	}
	b.WriteString(`
Assess how relevant this repository is to the research goal.

Respond with only a JSON object, no fences, no prose:
{"summary": "<at most two sentences>", "score": <relevance 0.0 to 1.0>}
`)
	return b.String()
}

func strategyPrompt(req StrategyRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a search strategist for an autonomous repository scout.\n\n")
	fmt.Fprintf(&b, "Research goal: %q\n", req.Goal)
	if req.Stats != "" {
		fmt.Fprintf(&b, "\nRecent cycle performance:\n%s\n", req.Stats)
	}
	if req.Feedback != "" {
		fmt.Fprintf(&b, "\nHuman feedback on recent findings:\n%s\n", req.Feedback)
	}
	if req.Analytics != "" {
		fmt.Fprintf(&b, "\nAggregate analytics:\n%s\n", req.Analytics)
	}
	b.WriteString(`
The current strategy is underperforming. Propose a replacement that finds
more relevant repositories: fresh search keywords, keywords to avoid,
target languages, a minimum star count, and optionally adjusted tactic
weights (valid tactic names only, weights between 0.1 and 2.0).

Respond with only a JSON object, no fences, no prose:
{
  "analysis": "<one short paragraph on what went wrong>",
  "keywords": ["...", "..."],
  "avoid_keywords": ["..."],
  "languages": ["..."],
  "min_stars": 10,
  "tactic_weights": {"trending": 1.2}
}
`)
	return b.String()
}
