// Package retriever issues parallel lexical and vector retrieval against the
// boosted source set and merges the two ranked lists into combined
// per-candidate scores.
package retriever

import (
	"context"
	"log"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/sievedocs/sieve/models"
	"github.com/sievedocs/sieve/provider"
)

// ContentStore is the indexed-content collaborator. Both searches restrict to
// the given sources and exclude already-shown page ids at query time.
type ContentStore interface {
	SearchLexical(ctx context.Context, keywords []string, sourceIDs, excludeIDs []string, limit int) ([]models.Candidate, error)
	SearchVector(ctx context.Context, vector []float32, sourceIDs, excludeIDs []string, limit int) ([]models.Candidate, error)
}

// Retriever runs hybrid retrieval. A vector-side failure (embedding provider
// or similarity query) degrades to lexical-only ranking; a lexical-side
// failure is fatal for the request since the content store itself is down.
type Retriever struct {
	store         ContentStore
	embedder      provider.Embedder
	lexicalWeight float64
	vectorWeight  float64
	logger        *log.Logger
}

// New builds a Retriever. Weights apply to min-max normalized scores.
func New(store ContentStore, embedder provider.Embedder, lexicalWeight, vectorWeight float64, logger *log.Logger) *Retriever {
	if lexicalWeight <= 0 && vectorWeight <= 0 {
		lexicalWeight, vectorWeight = 0.4, 0.6
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[RETRIEVE] ", log.LstdFlags)
	}
	return &Retriever{
		store:         store,
		embedder:      embedder,
		lexicalWeight: lexicalWeight,
		vectorWeight:  vectorWeight,
		logger:        logger,
	}
}

// Retrieve returns up to k candidates ordered by boosted combined score,
// ties broken by most recent update time.
func (r *Retriever) Retrieve(ctx context.Context, parsed models.ParsedQuery, sourceIDs, excludeIDs []string, boosts models.SourceBoost, k int) ([]models.Candidate, error) {
	if k <= 0 {
		k = 40
	}

	var (
		lexical []models.Candidate
		vector  []models.Candidate
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := r.store.SearchLexical(gctx, parsed.Keywords, sourceIDs, excludeIDs, k)
		if err != nil {
			return err
		}
		lexical = hits
		return nil
	})
	g.Go(func() error {
		// Degraded-signal path: never fail the request from this side.
		hits, err := r.vectorSearch(gctx, parsed.Raw, sourceIDs, excludeIDs, k)
		if err != nil {
			r.logger.Printf("vector retrieval unavailable, lexical-only: %v", err)
			return nil
		}
		vector = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := r.merge(lexical, vector, boosts)
	if len(merged) > k {
		merged = merged[:k]
	}
	return merged, nil
}

func (r *Retriever) vectorSearch(ctx context.Context, raw string, sourceIDs, excludeIDs []string, k int) ([]models.Candidate, error) {
	vecs, err := r.embedder.CreateEmbedding(ctx, []string{raw})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, nil
	}
	return r.store.SearchVector(ctx, vecs[0], sourceIDs, excludeIDs, k)
}

// merge combines the two ranked lists by page id. A candidate present in only
// one list keeps that signal's full normalized contribution; the weighted
// average runs only over the signals actually present, so single-signal
// high-confidence matches are not buried by a zero fill.
func (r *Retriever) merge(lexical, vector []models.Candidate, boosts models.SourceBoost) []models.Candidate {
	lexNorm := normalize(scoresOf(lexical, func(c models.Candidate) float64 { return c.Scores.Lexical }))
	vecNorm := normalize(scoresOf(vector, func(c models.Candidate) float64 { return c.Scores.Vector }))

	byID := make(map[string]*models.Candidate, len(lexical)+len(vector))
	order := make([]string, 0, len(lexical)+len(vector))
	for i, c := range lexical {
		c.HasLexical = true
		c.Scores.Lexical = lexNorm[i]
		cc := c
		byID[c.PageID] = &cc
		order = append(order, c.PageID)
	}
	for i, c := range vector {
		if existing, ok := byID[c.PageID]; ok {
			existing.HasVector = true
			existing.Scores.Vector = vecNorm[i]
			continue
		}
		c.HasVector = true
		c.Scores.Vector = vecNorm[i]
		cc := c
		byID[c.PageID] = &cc
		order = append(order, c.PageID)
	}

	out := make([]models.Candidate, 0, len(order))
	for _, id := range order {
		c := byID[id]
		var sum, denom float64
		if c.HasLexical {
			sum += r.lexicalWeight * c.Scores.Lexical
			denom += r.lexicalWeight
		}
		if c.HasVector {
			sum += r.vectorWeight * c.Scores.Vector
			denom += r.vectorWeight
		}
		if denom > 0 {
			c.Scores.Combined = (sum / denom) * boosts.Factor(c.SourceID)
		}
		out = append(out, *c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Scores.Combined != out[j].Scores.Combined {
			return out[i].Scores.Combined > out[j].Scores.Combined
		}
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].PageID < out[j].PageID
	})
	return out
}

func scoresOf(cands []models.Candidate, f func(models.Candidate) float64) []float64 {
	out := make([]float64, len(cands))
	for i, c := range cands {
		out[i] = f(c)
	}
	return out
}

// normalize min-max scales scores into [0,1]; a flat list maps to all 1.0 so
// a single strong hit is not zeroed out.
func normalize(scores []float64) []float64 {
	if len(scores) == 0 {
		return scores
	}
	lo, hi := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}
	out := make([]float64, len(scores))
	if hi == lo {
		for i := range out {
			out[i] = 1.0
		}
		return out
	}
	for i, s := range scores {
		out[i] = (s - lo) / (hi - lo)
	}
	return out
}
