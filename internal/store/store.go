// Package store provides the indexed-content backends: a Postgres store used
// in production (full-text rank via tsvector, similarity via pgvector) and a
// bleve-backed in-memory store for development and pipeline tests. Both only
// read indexed content; ingestion writes it elsewhere.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/sievedocs/sieve/models"
)

// Store reads indexed documentation content from Postgres.
type Store struct {
	DB *sql.DB
}

// NewWithDSN constructs the Store using an explicit Postgres DSN.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// SearchLexical ranks pages by full-text relevance over the keyword terms,
// restricted to the given sources and excluding already-shown page ids.
func (s *Store) SearchLexical(ctx context.Context, keywords []string, sourceIDs, excludeIDs []string, limit int) ([]models.Candidate, error) {
	if len(keywords) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 40
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT p.id, p.source_id, p.title, p.url, p.snippet, p.frameworks, p.updated_at,
       ts_rank_cd(p.content_tsv, q) AS rank
FROM pages p, plainto_tsquery('english', $1) q
WHERE p.content_tsv @@ q
  AND p.source_id = ANY($2)
  AND NOT (p.id = ANY($3))
ORDER BY rank DESC, p.updated_at DESC
LIMIT $4
`, strings.Join(keywords, " "), pq.Array(sourceIDs), pq.Array(excludeIDs), limit)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	defer rows.Close()

	var out []models.Candidate
	for rows.Next() {
		var (
			c    models.Candidate
			rank float64
		)
		if err := rows.Scan(&c.PageID, &c.SourceID, &c.Title, &c.URL, &c.Snippet, pq.Array(&c.Frameworks), &c.UpdatedAt, &rank); err != nil {
			return nil, err
		}
		c.Scores.Lexical = rank
		out = append(out, c)
	}
	return out, rows.Err()
}

// SearchVector ranks pages by cosine similarity against a precomputed query
// embedding, under the same source/exclusion constraints.
func (s *Store) SearchVector(ctx context.Context, vector []float32, sourceIDs, excludeIDs []string, limit int) ([]models.Candidate, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("vector must not be empty")
	}
	if limit <= 0 {
		limit = 40
	}
	vecLiteral, err := encodeVectorLiteral(vector)
	if err != nil {
		return nil, err
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT p.id, p.source_id, p.title, p.url, p.snippet, p.frameworks, p.updated_at,
       1 - (p.embedding <=> $1::vector) AS similarity
FROM pages p
WHERE p.embedding IS NOT NULL
  AND p.source_id = ANY($2)
  AND NOT (p.id = ANY($3))
ORDER BY p.embedding <=> $1::vector
LIMIT $4
`, vecLiteral, pq.Array(sourceIDs), pq.Array(excludeIDs), limit)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var out []models.Candidate
	for rows.Next() {
		var (
			c   models.Candidate
			sim float64
		)
		if err := rows.Scan(&c.PageID, &c.SourceID, &c.Title, &c.URL, &c.Snippet, pq.Array(&c.Frameworks), &c.UpdatedAt, &sim); err != nil {
			return nil, err
		}
		c.Scores.Vector = sim
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListSources returns metadata for the given source ids.
func (s *Store) ListSources(ctx context.Context, ids []string) ([]models.Source, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, title, domain, COALESCE(framework, ''), COALESCE(summary, '')
FROM sources
WHERE id = ANY($1)
ORDER BY id
`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var out []models.Source
	for rows.Next() {
		var src models.Source
		if err := rows.Scan(&src.ID, &src.Title, &src.Domain, &src.Framework, &src.Summary); err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// AllSources returns every registered source.
func (s *Store) AllSources(ctx context.Context) ([]models.Source, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, title, domain, COALESCE(framework, ''), COALESCE(summary, '')
FROM sources
ORDER BY id
`)
	if err != nil {
		return nil, fmt.Errorf("all sources: %w", err)
	}
	defer rows.Close()

	var out []models.Source
	for rows.Next() {
		var src models.Source
		if err := rows.Scan(&src.ID, &src.Title, &src.Domain, &src.Framework, &src.Summary); err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// FeedbackScores aggregates historical helpful/unhelpful votes per page into
// a score in [-1, 1]. Pages without votes are absent from the map.
func (s *Store) FeedbackScores(ctx context.Context, pageIDs []string) (map[string]float64, error) {
	if len(pageIDs) == 0 {
		return nil, nil
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT page_id, AVG(CASE WHEN helpful THEN 1.0 ELSE -1.0 END)
FROM page_feedback
WHERE page_id = ANY($1)
GROUP BY page_id
`, pq.Array(pageIDs))
	if err != nil {
		return nil, fmt.Errorf("feedback scores: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var (
			id    string
			score float64
		)
		if err := rows.Scan(&id, &score); err != nil {
			return nil, err
		}
		out[id] = score
	}
	return out, rows.Err()
}

// RecordFeedback persists one helpful/unhelpful vote for a page.
func (s *Store) RecordFeedback(ctx context.Context, pageID, userID string, helpful bool) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO page_feedback (page_id, user_id, helpful, created_at)
VALUES ($1, $2, $3, NOW())
`, pageID, userID, helpful)
	if err != nil {
		return fmt.Errorf("record feedback: %w", err)
	}
	return nil
}

func encodeVectorLiteral(vec []float32) (string, error) {
	if len(vec) == 0 {
		return "", fmt.Errorf("vector must not be empty")
	}
	var builder strings.Builder
	builder.WriteByte('[')
	for i, f := range vec {
		if i > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	builder.WriteByte(']')
	return builder.String(), nil
}
