package optimize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sievedocs/sieve/models"
)

func cand(id string, reranked float64, snippet string) models.Candidate {
	return models.Candidate{
		PageID:   id,
		SourceID: "s1",
		Title:    "Title " + id,
		URL:      "https://docs.example.com/" + id,
		Snippet:  snippet,
		Scores:   models.Scores{Reranked: reranked},
	}
}

func TestOptimizeRespectsBothBudgets(t *testing.T) {
	long := strings.Repeat("word ", 400) // ~500 tokens each
	cands := []models.Candidate{
		cand("p1", 0.9, long),
		cand("p2", 0.8, long),
		cand("p3", 0.7, long),
		cand("p4", 0.6, long),
	}

	got := New().Optimize(cands, nil, Config{MaxResults: 3, MaxTokens: 800})
	require.LessOrEqual(t, len(got), 3)

	total := 0
	for _, r := range got {
		total += r.EstimatedTokens
	}
	require.LessOrEqual(t, total, 800, "estimated total tokens must fit the budget")
}

func TestOptimizeTruncatesToFit(t *testing.T) {
	long := strings.Repeat("alpha beta gamma ", 200)
	cands := []models.Candidate{
		cand("p1", 0.9, strings.Repeat("x ", 100)), // ~50 tokens
		cand("p2", 0.8, long),                      // would blow the rest of the budget
	}

	got := New().Optimize(cands, nil, Config{MaxResults: 5, MaxTokens: 300})
	require.Len(t, got, 2)
	require.Less(t, len(got[1].Snippet), len(long), "second snippet should be truncated")
	require.True(t, strings.HasPrefix(long, strings.TrimSuffix(got[1].Snippet, "…")),
		"truncation must preserve the start of the snippet")
}

func TestOptimizeSkipsWhenMinimalTruncationTooBig(t *testing.T) {
	cands := []models.Candidate{
		cand("p1", 0.9, strings.Repeat("w ", 190)), // ~95 tokens + overhead
		cand("p2", 0.8, strings.Repeat("w ", 400)), // cannot fit even truncated
		cand("p3", 0.7, strings.Repeat("w ", 40)),  // ~20 tokens, fits the remainder
	}

	got := New().Optimize(cands, nil, Config{MaxResults: 5, MaxTokens: 170})
	require.NotEmpty(t, got)
	ids := make([]string, len(got))
	for i, r := range got {
		ids[i] = r.ID
	}
	require.Contains(t, ids, "p1")
	require.NotContains(t, ids, "p2", "oversized candidate should be skipped, not abort the pass")
	require.Contains(t, ids, "p3", "walk should continue past a skipped candidate")
}

func TestOptimizeNormalizesScores(t *testing.T) {
	cands := []models.Candidate{
		cand("p1", 2.4, "top result"),
		cand("p2", 1.2, "second result"),
	}

	got := New().Optimize(cands, nil, Config{MaxResults: 5, MaxTokens: 1000})
	require.Len(t, got, 2)
	require.InDelta(t, 1.0, got[0].Score, 1e-9)
	require.InDelta(t, 0.5, got[1].Score, 1e-9)
}

func TestOptimizeReasonsOnlyWhenRequested(t *testing.T) {
	c := cand("p1", 0.9, "snippet")
	c.Signals = map[string]float64{"title_match": 1.2}

	plain := New().Optimize([]models.Candidate{c}, nil, Config{MaxResults: 5, MaxTokens: 1000})
	require.Nil(t, plain[0].Reasons)

	debug := New().Optimize([]models.Candidate{c}, nil, Config{MaxResults: 5, MaxTokens: 1000, IncludeReasons: true})
	require.Equal(t, 1.2, debug[0].Reasons["title_match"])
}

func TestOptimizeAttachesSourceSummary(t *testing.T) {
	sources := map[string]models.Source{
		"s1": {ID: "s1", Summary: "Next.js official docs"},
	}
	got := New().Optimize([]models.Candidate{cand("p1", 0.9, "snippet")}, sources, Config{MaxResults: 5, MaxTokens: 1000})
	require.Equal(t, "Next.js official docs", got[0].SourceSummary)
}

func TestFormatMCP(t *testing.T) {
	results := []models.OptimizedResult{
		{ID: "p1", Title: "Auth Guide", URL: "https://docs.example.com/auth", Snippet: "Use middleware.", Score: 1.0},
	}
	out := FormatMCP(results, "sess-123")
	require.Contains(t, out, "## 1. Auth Guide")
	require.Contains(t, out, "https://docs.example.com/auth")
	require.Contains(t, out, "session_id: sess-123")

	empty := FormatMCP(nil, "sess-456")
	require.Contains(t, empty, "No matching documentation found.")
	require.Contains(t, empty, "session_id: sess-456")
}
