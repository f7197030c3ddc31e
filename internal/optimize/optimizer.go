// Package optimize fits the reranked candidate list into a caller-specified
// result-count and total-token budget, trimming snippets as needed.
package optimize

import (
	"fmt"
	"strings"

	"github.com/sievedocs/sieve/models"
)

// charsPerToken is the deterministic length-based token approximation. The
// estimate only has to be stable and conservative, not exact.
const charsPerToken = 4

// minSnippetTokens is the smallest truncation still considered useful; below
// this the candidate is skipped instead.
const minSnippetTokens = 48

// resultOverheadTokens accounts for a result's title, url, and framing when
// charging the budget.
const resultOverheadTokens = 20

// Config bounds one optimization pass.
type Config struct {
	MaxResults     int
	MaxTokens      int
	IncludeReasons bool
}

// Optimizer converts reranked candidates into caller-facing results.
type Optimizer struct{}

// New returns an Optimizer.
func New() *Optimizer { return &Optimizer{} }

// EstimateTokens approximates the token cost of a text.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// Optimize walks the reranked list in order. A candidate whose snippet would
// blow the remaining budget is first truncated (keeping the start of the
// snippet, which carries the best-matched text); if even a minimal
// truncation does not fit, it is skipped and the walk continues.
func (o *Optimizer) Optimize(cands []models.Candidate, sources map[string]models.Source, cfg Config) []models.OptimizedResult {
	if cfg.MaxResults <= 0 || cfg.MaxTokens <= 0 {
		return []models.OptimizedResult{}
	}

	results := make([]models.OptimizedResult, 0, cfg.MaxResults)
	remaining := cfg.MaxTokens

	maxReranked := 0.0
	for _, c := range cands {
		if c.Scores.Reranked > maxReranked {
			maxReranked = c.Scores.Reranked
		}
	}

	for _, c := range cands {
		if len(results) >= cfg.MaxResults {
			break
		}
		if remaining <= resultOverheadTokens {
			break
		}

		snippet := c.Snippet
		cost := resultOverheadTokens + EstimateTokens(snippet)
		if cost > remaining {
			budget := remaining - resultOverheadTokens
			if budget < minSnippetTokens {
				continue
			}
			snippet = truncate(snippet, budget*charsPerToken)
			cost = resultOverheadTokens + EstimateTokens(snippet)
			if cost > remaining {
				continue
			}
		}

		score := c.Scores.Reranked
		if maxReranked > 0 {
			score = c.Scores.Reranked / maxReranked
		}

		res := models.OptimizedResult{
			ID:              c.PageID,
			Title:           c.Title,
			URL:             c.URL,
			Snippet:         snippet,
			Score:           score,
			EstimatedTokens: cost,
		}
		if src, ok := sources[c.SourceID]; ok {
			res.SourceSummary = src.Summary
		}
		if cfg.IncludeReasons {
			res.Reasons = c.Signals
		}

		results = append(results, res)
		remaining -= cost
	}
	return results
}

// truncate cuts text to at most maxChars, backing up to the last word
// boundary so snippets do not end mid-word.
func truncate(text string, maxChars int) string {
	if len(text) <= maxChars {
		return text
	}
	cut := text[:maxChars]
	if idx := strings.LastIndexByte(cut, ' '); idx > maxChars/2 {
		cut = cut[:idx]
	}
	return cut + "…"
}

// FormatMCP renders results plus the session id into a single text block for
// the MCP caller. No ranking happens here, only serialization.
func FormatMCP(results []models.OptimizedResult, sessionID string) string {
	var b strings.Builder
	if len(results) == 0 {
		b.WriteString("No matching documentation found.\n")
	}
	for i, r := range results {
		fmt.Fprintf(&b, "## %d. %s\n", i+1, r.Title)
		if r.URL != "" {
			fmt.Fprintf(&b, "URL: %s\n", r.URL)
		}
		if r.SourceSummary != "" {
			fmt.Fprintf(&b, "Source: %s\n", r.SourceSummary)
		}
		fmt.Fprintf(&b, "Relevance: %.2f\n\n", r.Score)
		b.WriteString(strings.TrimSpace(r.Snippet))
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "---\nsession_id: %s\n", sessionID)
	return b.String()
}
