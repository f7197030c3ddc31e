package rerank

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/sievedocs/sieve/models"
)

type fakeFeedback struct {
	scores map[string]float64
	err    error
}

func (f *fakeFeedback) FeedbackScores(ctx context.Context, pageIDs []string) (map[string]float64, error) {
	return f.scores, f.err
}

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func fixedClock(at time.Time) Clock { return func() int64 { return at.Unix() } }

func baseCandidate(id string, combined float64) models.Candidate {
	return models.Candidate{
		PageID:   id,
		SourceID: "s1",
		Scores:   models.Scores{Combined: combined},
	}
}

func TestRerankFrameworkMatchBeatsUnmatched(t *testing.T) {
	now := time.Now()
	r := New(nil, quietLogger(), WithClock(fixedClock(now)))
	parsed := models.ParsedQuery{
		Frameworks: []models.FrameworkTag{{Name: "nextjs", Confidence: 1.0}},
	}

	matched := baseCandidate("p-match", 0.8)
	matched.Frameworks = []string{"nextjs"}
	matched.UpdatedAt = now
	other := baseCandidate("p-other", 0.8)
	other.UpdatedAt = now

	got := r.Rerank(context.Background(), []models.Candidate{other, matched}, parsed, false)
	if got[0].PageID != "p-match" {
		t.Fatalf("top = %s, want framework-matched page", got[0].PageID)
	}
}

func TestRerankSignalsBounded(t *testing.T) {
	now := time.Now()
	r := New(&fakeFeedback{scores: map[string]float64{"p1": 5.0}}, quietLogger(), WithClock(fixedClock(now)))
	parsed := models.ParsedQuery{
		Intent:     models.IntentHowTo,
		Keywords:   []string{"auth", "middleware"},
		Frameworks: []models.FrameworkTag{{Name: "nextjs", Confidence: 1.0}},
	}

	c := baseCandidate("p1", 1.0)
	c.Title = "auth middleware guide"
	c.Snippet = "auth middleware example ```js\ncode\n```"
	c.Frameworks = []string{"nextjs"}
	c.UpdatedAt = now

	got := r.Rerank(context.Background(), []models.Candidate{c}, parsed, true)
	if len(got[0].Signals) != 6 {
		t.Fatalf("expected all 6 signals recorded, got %v", got[0].Signals)
	}
	for name, m := range got[0].Signals {
		if m < minMultiplier || m > maxMultiplier {
			t.Fatalf("signal %s = %v outside [%v, %v]", name, m, minMultiplier, maxMultiplier)
		}
	}
}

func TestRerankMissingFeedbackIsNeutral(t *testing.T) {
	now := time.Now()
	parsed := models.ParsedQuery{}

	c := baseCandidate("p1", 1.0)
	c.UpdatedAt = now

	noProvider := New(nil, quietLogger(), WithClock(fixedClock(now)))
	failing := New(&fakeFeedback{err: errors.New("feedback table gone")}, quietLogger(), WithClock(fixedClock(now)))

	a := noProvider.Rerank(context.Background(), []models.Candidate{c}, parsed, true)
	b := failing.Rerank(context.Background(), []models.Candidate{c}, parsed, true)

	if a[0].Signals[SignalFeedback] != 1.0 || b[0].Signals[SignalFeedback] != 1.0 {
		t.Fatalf("feedback multiplier should be neutral: %v / %v",
			a[0].Signals[SignalFeedback], b[0].Signals[SignalFeedback])
	}
}

func TestRerankNegativeFeedbackPenalizes(t *testing.T) {
	now := time.Now()
	fb := &fakeFeedback{scores: map[string]float64{"p-bad": -1.0}}
	r := New(fb, quietLogger(), WithClock(fixedClock(now)))

	bad := baseCandidate("p-bad", 0.8)
	bad.UpdatedAt = now
	neutral := baseCandidate("p-neutral", 0.8)
	neutral.UpdatedAt = now

	got := r.Rerank(context.Background(), []models.Candidate{bad, neutral}, models.ParsedQuery{}, false)
	if got[0].PageID != "p-neutral" {
		t.Fatalf("top = %s, want p-neutral above penalized page", got[0].PageID)
	}
}

func TestRerankRecencyDecay(t *testing.T) {
	now := time.Now()
	r := New(nil, quietLogger(), WithClock(fixedClock(now)))

	fresh := baseCandidate("p-fresh", 0.8)
	fresh.UpdatedAt = now.Add(-24 * time.Hour)
	stale := baseCandidate("p-stale", 0.8)
	stale.UpdatedAt = now.Add(-2 * 365 * 24 * time.Hour)

	got := r.Rerank(context.Background(), []models.Candidate{stale, fresh}, models.ParsedQuery{}, true)
	if got[0].PageID != "p-fresh" {
		t.Fatalf("top = %s, want fresher page", got[0].PageID)
	}
	if got[0].Signals[SignalRecency] <= got[1].Signals[SignalRecency] {
		t.Fatalf("recency should decay with age: fresh=%v stale=%v",
			got[0].Signals[SignalRecency], got[1].Signals[SignalRecency])
	}
}

func TestRerankCodeSignalOnlyForHowToAndReference(t *testing.T) {
	now := time.Now()
	r := New(nil, quietLogger(), WithClock(fixedClock(now)))

	c := baseCandidate("p1", 1.0)
	c.Snippet = "setup ```go\nfunc main() {}\n```"
	c.UpdatedAt = now

	howto := r.Rerank(context.Background(), []models.Candidate{c}, models.ParsedQuery{Intent: models.IntentHowTo}, true)
	explain := r.Rerank(context.Background(), []models.Candidate{c}, models.ParsedQuery{Intent: models.IntentExplain}, true)

	if howto[0].Signals[SignalCode] <= 1.0 {
		t.Fatalf("how-to code signal = %v, want boost", howto[0].Signals[SignalCode])
	}
	if explain[0].Signals[SignalCode] != 1.0 {
		t.Fatalf("explain code signal = %v, want neutral", explain[0].Signals[SignalCode])
	}
}

func TestRerankDeterministicOrdering(t *testing.T) {
	now := time.Now()
	r := New(nil, quietLogger(), WithClock(fixedClock(now)))
	parsed := models.ParsedQuery{Keywords: []string{"auth"}}

	build := func() []models.Candidate {
		a := baseCandidate("p-a", 0.7)
		a.UpdatedAt = now
		b := baseCandidate("p-b", 0.7)
		b.UpdatedAt = now
		c := baseCandidate("p-c", 0.9)
		c.UpdatedAt = now
		return []models.Candidate{c, a, b}
	}

	first := r.Rerank(context.Background(), build(), parsed, false)
	second := r.Rerank(context.Background(), build(), parsed, false)
	for i := range first {
		if first[i].PageID != second[i].PageID {
			t.Fatalf("ordering not deterministic at %d: %s vs %s", i, first[i].PageID, second[i].PageID)
		}
	}
	if first[1].PageID != "p-a" || first[2].PageID != "p-b" {
		t.Fatalf("equal scores should break ties by page id: %s, %s", first[1].PageID, first[2].PageID)
	}
}

func TestRerankOmitsSignalsUnlessRequested(t *testing.T) {
	now := time.Now()
	r := New(nil, quietLogger(), WithClock(fixedClock(now)))
	c := baseCandidate("p1", 1.0)
	c.UpdatedAt = now

	got := r.Rerank(context.Background(), []models.Candidate{c}, models.ParsedQuery{}, false)
	if got[0].Signals != nil {
		t.Fatalf("signals should be omitted, got %v", got[0].Signals)
	}
}
