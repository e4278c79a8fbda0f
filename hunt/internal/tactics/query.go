package tactics

import (
	"fmt"
	"strings"
)

// SearchParams samples a page within the tactic's page range and
// returns it with the tactic's page size.
func (e *Engine) SearchParams(t Tactic) (page, perPage int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	from, to := t.PageFrom, t.PageTo
	if from <= 0 {
		from = 1
	}
	if to < from {
		to = from
	}
	perPage = t.PerPage
	if perPage <= 0 {
		perPage = 10
	}
	return from + e.rng.IntN(to-from+1), perPage
}

// stopWords are goal-text tokens that never become search keywords.
var stopWords = map[string]bool{
	"and": true, "the": true, "for": true, "with": true, "this": true,
	"that": true, "from": true, "like": true, "look": true, "find": true,
	"research": true, "focus": true, "on": true, "to": true, "a": true,
	"an": true, "of": true, "in": true, "or": true, "using": true,
	"similar": true, "tools": true, "best": true, "modern": true,
	"involving": true, "analyze": true, "existing": true, "such": true,
	"as": true, "alternatives": true, "those": true, "user's": true,
	"list": true, "identify": true, "directory": true, "project": true,
	"implementations": true, "libraries": true, "patterns": true,
	"improve": true, "features": true, "practices": true,
	"enhancements": true, "component": true, "templates": true,
	"architecture": true, "app": true, "web": true,
}

// priorityKeywords are domain terms that outrank ordinary goal tokens.
var priorityKeywords = map[string]bool{
	"whatsapp": true, "crm": true, "dashboard": true, "admin": true,
	"api": true, "tui": true, "cli": true, "python": true, "rust": true,
	"react": true, "nextjs": true, "next.js": true, "daisyui": true,
	"tailwind": true, "wrapper": true, "bot": true, "agent": true,
	"workflow": true, "sdk": true, "client": true,
	"library": true,
}

// splitKeywords tokenizes a free-text goal into priority and ordinary
// keywords, dropping stop words, short tokens, URLs and path-like noise.
func splitKeywords(goal string) (priority, other []string) {
	for _, tok := range strings.Fields(goal) {
		tok = strings.ToLower(strings.Trim(tok, `,.()"'`))
		if len(tok) < 3 {
			continue
		}
		if strings.HasPrefix(tok, "http://") || strings.HasPrefix(tok, "https://") {
			continue
		}
		if strings.ContainsAny(tok, `/\`) {
			continue
		}
		if strings.HasPrefix(tok, "d:") || strings.HasPrefix(tok, "c:") {
			continue
		}
		if stopWords[tok] {
			continue
		}
		if priorityKeywords[tok] {
			priority = append(priority, tok)
		} else {
			other = append(other, tok)
		}
	}
	return priority, other
}

// BuildQuery assembles the search query for a tactic: keywords selected
// per the tactic's mode, at most one language qualifier, a star-count
// filter, and the tactic's relative date filter resolved against now.
func (e *Engine) BuildQuery(t Tactic, goal string, languages []string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buildQuery(t, goal, languages)
}

func (e *Engine) buildQuery(t Tactic, goal string, languages []string) string {
	priority, other := splitKeywords(goal)

	var keywords []string
	switch t.Keywords {
	case KeywordsRotate:
		pool := append(append([]string{}, priority...), other...)
		e.rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
		keywords = pool[:min(2, len(pool))]
	case KeywordsSingle:
		if len(priority) > 0 {
			keywords = priority[:1]
		} else if len(other) > 0 {
			keywords = other[:1]
		}
	default: // KeywordsAll
		keywords = priority[:min(3, len(priority))]
		if room := 3 - len(keywords); room > 0 {
			keywords = append(keywords, other[:min(room, len(other))]...)
		}
	}
	if len(keywords) == 0 {
		keywords = []string{"developer", "tools"}
	}

	parts := keywords[:min(3, len(keywords))]

	for _, lang := range languages {
		if lang != "" && !strings.EqualFold(lang, "any") {
			parts = append(parts, "language:"+lang)
			break
		}
	}

	if t.StarsMax > 0 {
		parts = append(parts, fmt.Sprintf("stars:%d..%d", t.StarsMin, t.StarsMax))
	} else {
		parts = append(parts, fmt.Sprintf("stars:>=%d", t.StarsMin))
	}

	if t.DateField != "" && t.DateDays > 0 {
		since := e.now().UTC().AddDate(0, 0, -t.DateDays).Format("2006-01-02")
		parts = append(parts, fmt.Sprintf("%s:>%s", t.DateField, since))
	}

	return strings.Join(parts, " ")
}
