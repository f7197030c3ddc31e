package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve"

	"github.com/sievedocs/sieve/models"
)

// Page is a unit of indexed documentation content held by the memory store.
type Page struct {
	ID         string
	SourceID   string
	Title      string
	URL        string
	Content    string
	Frameworks []string
	UpdatedAt  time.Time
	Embedding  []float32
}

type pageDoc struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// MemStore keeps sources and pages in memory, with lexical search backed by a
// bleve index and vector search by brute-force cosine similarity. It serves
// dev mode and pipeline tests where Postgres is unavailable.
type MemStore struct {
	mu       sync.RWMutex
	index    bleve.Index
	pages    map[string]Page
	sources  map[string]models.Source
	feedback map[string][]bool
}

func NewMemStore() (*MemStore, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("bleve index: %w", err)
	}
	return &MemStore{
		index:    idx,
		pages:    make(map[string]Page),
		sources:  make(map[string]models.Source),
		feedback: make(map[string][]bool),
	}, nil
}

func (m *MemStore) AddSource(src models.Source) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[src.ID] = src
}

func (m *MemStore) AddPage(p Page) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.index.Index(p.ID, pageDoc{Title: p.Title, Content: p.Content}); err != nil {
		return fmt.Errorf("index page %s: %w", p.ID, err)
	}
	m.pages[p.ID] = p
	return nil
}

func (m *MemStore) SearchLexical(ctx context.Context, keywords []string, sourceIDs, excludeIDs []string, limit int) ([]models.Candidate, error) {
	if len(keywords) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 40
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Over-fetch so source and exclusion filtering still fills the limit.
	q := bleve.NewQueryStringQuery(strings.Join(keywords, " "))
	req := bleve.NewSearchRequestOptions(q, limit*4, 0, false)
	res, err := m.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}

	allowed := stringSet(sourceIDs)
	excluded := stringSet(excludeIDs)
	var out []models.Candidate
	for _, hit := range res.Hits {
		p, ok := m.pages[hit.ID]
		if !ok || excluded[p.ID] || !allowed[p.SourceID] {
			continue
		}
		c := m.candidate(p)
		c.Scores.Lexical = hit.Score
		out = append(out, c)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemStore) SearchVector(ctx context.Context, vector []float32, sourceIDs, excludeIDs []string, limit int) ([]models.Candidate, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("vector must not be empty")
	}
	if limit <= 0 {
		limit = 40
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	allowed := stringSet(sourceIDs)
	excluded := stringSet(excludeIDs)
	var out []models.Candidate
	for _, p := range m.pages {
		if len(p.Embedding) == 0 || excluded[p.ID] || !allowed[p.SourceID] {
			continue
		}
		c := m.candidate(p)
		c.Scores.Vector = cosine(vector, p.Embedding)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Scores.Vector != out[j].Scores.Vector {
			return out[i].Scores.Vector > out[j].Scores.Vector
		}
		return out[i].PageID < out[j].PageID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemStore) ListSources(ctx context.Context, ids []string) ([]models.Source, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Source
	for _, id := range ids {
		if src, ok := m.sources[id]; ok {
			out = append(out, src)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemStore) AllSources(ctx context.Context) ([]models.Source, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Source, 0, len(m.sources))
	for _, src := range m.sources {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemStore) FeedbackScores(ctx context.Context, pageIDs []string) (map[string]float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]float64)
	for _, id := range pageIDs {
		votes := m.feedback[id]
		if len(votes) == 0 {
			continue
		}
		var sum float64
		for _, helpful := range votes {
			if helpful {
				sum++
			} else {
				sum--
			}
		}
		out[id] = sum / float64(len(votes))
	}
	return out, nil
}

func (m *MemStore) RecordFeedback(ctx context.Context, pageID, userID string, helpful bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pages[pageID]; !ok {
		return fmt.Errorf("unknown page %s", pageID)
	}
	m.feedback[pageID] = append(m.feedback[pageID], helpful)
	return nil
}

func (m *MemStore) candidate(p Page) models.Candidate {
	snippet := p.Content
	if len(snippet) > 600 {
		snippet = snippet[:600]
	}
	return models.Candidate{
		PageID:     p.ID,
		SourceID:   p.SourceID,
		Title:      p.Title,
		URL:        p.URL,
		Snippet:    snippet,
		Frameworks: p.Frameworks,
		UpdatedAt:  p.UpdatedAt,
	}
}

func stringSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
