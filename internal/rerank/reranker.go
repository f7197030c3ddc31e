// Package rerank recomputes a final score per candidate by combining the
// hybrid score with secondary signals. Signals are independent and bounded
// multiplicative factors: no single weak signal can dominate, but several
// weak signals compound.
package rerank

import (
	"context"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/sievedocs/sieve/models"
)

// Every signal multiplier is clamped into this range before it is applied.
const (
	minMultiplier = 0.85
	maxMultiplier = 1.30
)

// Signal names used in score breakdowns.
const (
	SignalFramework = "framework_match"
	SignalTitle     = "title_match"
	SignalProximity = "keyword_proximity"
	SignalCode      = "code_quality"
	SignalRecency   = "recency"
	SignalFeedback  = "feedback"
)

// FeedbackProvider returns accumulated user feedback per page id as a score
// in [-1, 1]. Pages without feedback are simply absent from the map.
type FeedbackProvider interface {
	FeedbackScores(ctx context.Context, pageIDs []string) (map[string]float64, error)
}

// Clock abstracts time for the recency signal; tests pin it.
type Clock func() int64

// Reranker applies the multiplicative signal formula.
type Reranker struct {
	feedback FeedbackProvider
	logger   *log.Logger
	nowUnix  Clock
}

// Option configures a Reranker.
type Option func(*Reranker)

// WithClock overrides the recency reference time (unix seconds).
func WithClock(c Clock) Option {
	return func(r *Reranker) { r.nowUnix = c }
}

// New builds a Reranker. feedback may be nil; the feedback multiplier then
// stays neutral for every candidate.
func New(feedback FeedbackProvider, logger *log.Logger, opts ...Option) *Reranker {
	if logger == nil {
		logger = log.New(log.Writer(), "[RERANK] ", log.LstdFlags)
	}
	r := &Reranker{feedback: feedback, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rerank populates each candidate's reranked score and re-sorts the list.
// withSignals additionally records the per-signal multiplier breakdown.
func (r *Reranker) Rerank(ctx context.Context, cands []models.Candidate, parsed models.ParsedQuery, withSignals bool) []models.Candidate {
	feedback := r.loadFeedback(ctx, cands)

	for i := range cands {
		c := &cands[i]
		signals := map[string]float64{
			SignalFramework: clamp(frameworkMultiplier(*c, parsed)),
			SignalTitle:     clamp(titleMultiplier(*c, parsed)),
			SignalProximity: clamp(proximityMultiplier(*c, parsed)),
			SignalCode:      clamp(codeMultiplier(*c, parsed)),
			SignalRecency:   clamp(r.recencyMultiplier(*c)),
			SignalFeedback:  clamp(feedbackMultiplier(*c, feedback)),
		}
		score := c.Scores.Combined
		for _, m := range signals {
			score *= m
		}
		c.Scores.Reranked = score
		if withSignals {
			c.Signals = signals
		}
	}

	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Scores.Reranked != cands[j].Scores.Reranked {
			return cands[i].Scores.Reranked > cands[j].Scores.Reranked
		}
		if !cands[i].UpdatedAt.Equal(cands[j].UpdatedAt) {
			return cands[i].UpdatedAt.After(cands[j].UpdatedAt)
		}
		return cands[i].PageID < cands[j].PageID
	})
	return cands
}

// loadFeedback is a degraded signal: any error defaults every candidate's
// feedback multiplier to neutral.
func (r *Reranker) loadFeedback(ctx context.Context, cands []models.Candidate) map[string]float64 {
	if r.feedback == nil || len(cands) == 0 {
		return nil
	}
	ids := make([]string, len(cands))
	for i, c := range cands {
		ids[i] = c.PageID
	}
	scores, err := r.feedback.FeedbackScores(ctx, ids)
	if err != nil {
		r.logger.Printf("feedback unavailable, neutral multipliers: %v", err)
		return nil
	}
	return scores
}

// frameworkMultiplier is a page-level precision signal beyond the
// source-level boost already applied at retrieval time.
func frameworkMultiplier(c models.Candidate, parsed models.ParsedQuery) float64 {
	best := 0.0
	for _, tag := range parsed.Frameworks {
		for _, pf := range c.Frameworks {
			if strings.EqualFold(pf, tag.Name) && tag.Confidence > best {
				best = tag.Confidence
			}
		}
	}
	return 1.0 + 0.25*best
}

func titleMultiplier(c models.Candidate, parsed models.ParsedQuery) float64 {
	if len(parsed.Keywords) == 0 || c.Title == "" {
		return 1.0
	}
	title := strings.ToLower(c.Title)
	matched := 0
	for _, kw := range parsed.Keywords {
		if strings.Contains(title, kw) {
			matched++
		}
	}
	return 1.0 + 0.25*float64(matched)/float64(len(parsed.Keywords))
}

// proximityMultiplier boosts snippets whose matched keywords cluster instead
// of scattering. Needs at least two matched keywords to say anything.
func proximityMultiplier(c models.Candidate, parsed models.ParsedQuery) float64 {
	if len(parsed.Keywords) < 2 {
		return 1.0
	}
	tokens := strings.Fields(strings.ToLower(c.Snippet))
	positions := map[string]int{}
	for pos, tok := range tokens {
		tok = strings.Trim(tok, ".,!?;:'\"-()[]{}`")
		for _, kw := range parsed.Keywords {
			if tok == kw {
				if _, seen := positions[kw]; !seen {
					positions[kw] = pos
				}
			}
		}
	}
	if len(positions) < 2 {
		return 1.0
	}
	lo, hi := math.MaxInt32, -1
	for _, pos := range positions {
		if pos < lo {
			lo = pos
		}
		if pos > hi {
			hi = pos
		}
	}
	spread := hi - lo
	switch {
	case spread <= 12:
		return 1.15
	case spread <= 30:
		return 1.05
	default:
		return 1.0
	}
}

// codeMultiplier rewards well-formed fenced code blocks when the intent
// suggests the user wants runnable answers.
func codeMultiplier(c models.Candidate, parsed models.ParsedQuery) float64 {
	if parsed.Intent != models.IntentHowTo && parsed.Intent != models.IntentReference {
		return 1.0
	}
	fences := strings.Count(c.Snippet, "```")
	if fences >= 2 && fences%2 == 0 {
		return 1.1
	}
	return 1.0
}

// recencyMultiplier decays from a slight boost for fresh content toward a
// slight penalty for stale content.
func (r *Reranker) recencyMultiplier(c models.Candidate) float64 {
	if c.UpdatedAt.IsZero() {
		return 1.0
	}
	now := r.now()
	ageDays := float64(now-c.UpdatedAt.Unix()) / 86400.0
	if ageDays < 0 {
		ageDays = 0
	}
	return 0.95 + 0.15*math.Exp(-ageDays/180.0)
}

func feedbackMultiplier(c models.Candidate, feedback map[string]float64) float64 {
	score, ok := feedback[c.PageID]
	if !ok {
		return 1.0
	}
	if score > 1 {
		score = 1
	}
	if score < -1 {
		score = -1
	}
	return 1.0 + 0.15*score
}

func (r *Reranker) now() int64 {
	if r.nowUnix != nil {
		return r.nowUnix()
	}
	return time.Now().Unix()
}

func clamp(m float64) float64 {
	if m < minMultiplier {
		return minMultiplier
	}
	if m > maxMultiplier {
		return maxMultiplier
	}
	return m
}
