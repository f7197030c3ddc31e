// Package search wires the full query pipeline together: parse, resolve the
// session, boost sources, retrieve, rerank, optimize, cache. It owns nothing
// clever itself; its job is ordering, degradation policy, and the session
// write-back.
package search

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/sievedocs/sieve/config"
	"github.com/sievedocs/sieve/internal/cache"
	"github.com/sievedocs/sieve/internal/optimize"
	"github.com/sievedocs/sieve/internal/query"
	"github.com/sievedocs/sieve/internal/rerank"
	"github.com/sievedocs/sieve/internal/retriever"
	"github.com/sievedocs/sieve/internal/source"
	"github.com/sievedocs/sieve/models"
	"github.com/sievedocs/sieve/session"
)

const (
	minQueryLen = 2
	maxQueryLen = 500

	// sessionWriteTimeout bounds the fire-and-forget write-back so a slow
	// Redis cannot leak goroutines.
	sessionWriteTimeout = 5 * time.Second
)

// SourceCatalog resolves source ids to their metadata.
type SourceCatalog interface {
	ListSources(ctx context.Context, ids []string) ([]models.Source, error)
}

// Service executes the search operation end to end.
type Service struct {
	parser    *query.Parser
	sessions  session.Store
	booster   *source.Booster
	retriever *retriever.Retriever
	reranker  *rerank.Reranker
	optimizer *optimize.Optimizer
	cache     *cache.Cache
	catalog   SourceCatalog
	cfg       config.SearchConfig
	metrics   *Metrics
	logger    *log.Logger

	// onSessionWrite, when set, runs after the async session write-back
	// finishes. Tests use it to synchronize; nil in production.
	onSessionWrite func()
}

// Deps bundles the pipeline collaborators.
type Deps struct {
	Parser    *query.Parser
	Sessions  session.Store
	Booster   *source.Booster
	Retriever *retriever.Retriever
	Reranker  *rerank.Reranker
	Optimizer *optimize.Optimizer
	Cache     *cache.Cache
	Catalog   SourceCatalog
	Metrics   *Metrics
	Logger    *log.Logger
}

func NewService(cfg config.SearchConfig, d Deps) *Service {
	logger := d.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[SEARCH] ", log.LstdFlags)
	}
	return &Service{
		parser:    d.Parser,
		sessions:  d.Sessions,
		booster:   d.Booster,
		retriever: d.Retriever,
		reranker:  d.Reranker,
		optimizer: d.Optimizer,
		cache:     d.Cache,
		catalog:   d.Catalog,
		cfg:       cfg,
		metrics:   d.Metrics,
		logger:    logger,
	}
}

// Search runs the pipeline for one request. Repeated identical requests within
// the cache TTL return the cached result list without re-ranking.
func (s *Service) Search(ctx context.Context, req models.SearchRequest) (*models.SearchResponse, error) {
	start := time.Now()

	req.Query = strings.TrimSpace(req.Query)
	if err := s.validate(req); err != nil {
		s.metrics.observeSearch("invalid", time.Since(start).Seconds())
		return nil, err
	}
	limit := req.Limit
	if limit <= 0 || limit > s.cfg.MaxResults {
		limit = s.cfg.MaxResults
	}

	sess := s.resolveSession(ctx, req)

	// The shown-set size keys the cache alongside the request inputs: once
	// the write-back records new shown pages, the stale entry stops matching
	// and the next identical request re-ranks with dedup applied.
	key := cache.Key{
		Query:      req.Query,
		SourceIDs:  req.SourceIDs,
		SessionID:  sess.ID,
		Offset:     req.Offset,
		ShownPages: len(sess.ShownPageIDs),
	}
	if entry, ok := s.cache.Get(ctx, key); ok {
		s.metrics.observeSearch("cached", time.Since(start).Seconds())
		return &models.SearchResponse{
			Results:   entry.Results,
			Total:     entry.Total,
			LatencyMs: time.Since(start).Milliseconds(),
			SessionID: sess.ID,
			Cached:    true,
		}, nil
	}

	parsed := s.parser.Parse(req.Query)

	sources, err := s.catalog.ListSources(ctx, req.SourceIDs)
	if err != nil {
		s.metrics.observeSearch("error", time.Since(start).Seconds())
		return nil, fmt.Errorf("resolve sources: %w", err)
	}
	if len(sources) == 0 {
		// Known ids that resolve to nothing is a valid empty result, not an
		// error.
		s.metrics.observeSearch("ok", time.Since(start).Seconds())
		return s.respond(ctx, key, sess, parsed, nil, nil, start)
	}

	boosted, boosts := s.booster.Boost(parsed, sources)

	k := s.candidateK(limit, req.Offset)
	cands, err := s.retriever.Retrieve(ctx, parsed, sourceIDsOf(boosted), sess.ShownPageIDs, boosts, k)
	if err != nil {
		s.metrics.observeSearch("error", time.Since(start).Seconds())
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	ranked := s.reranker.Rerank(ctx, cands, parsed, req.IncludeReasons)
	if req.Offset > 0 {
		if req.Offset >= len(ranked) {
			ranked = nil
		} else {
			ranked = ranked[req.Offset:]
		}
	}

	results := s.optimizer.Optimize(ranked, sourceMap(boosted), optimize.Config{
		MaxResults:     limit,
		MaxTokens:      s.cfg.MaxTokens,
		IncludeReasons: req.IncludeReasons,
	})

	s.metrics.observeSearch("ok", time.Since(start).Seconds())
	return s.respond(ctx, key, sess, parsed, ranked, results, start)
}

func (s *Service) validate(req models.SearchRequest) error {
	if n := utf8.RuneCountInString(req.Query); n < minQueryLen || n > maxQueryLen {
		return fmt.Errorf("%w: query length must be in [%d,%d]", models.ErrInvalidQuery, minQueryLen, maxQueryLen)
	}
	if len(req.SourceIDs) == 0 {
		return models.ErrNoSources
	}
	if req.Offset < 0 {
		return fmt.Errorf("%w: offset must be >= 0", models.ErrInvalidQuery)
	}
	return nil
}

// resolveSession loads or creates the request's session. A session store
// outage degrades to an ephemeral session with no dedup rather than failing
// the search.
func (s *Service) resolveSession(ctx context.Context, req models.SearchRequest) *models.Session {
	sess, err := s.sessions.GetOrCreate(ctx, req.UserID, req.WorkspaceID, req.SessionID)
	if err != nil {
		s.logger.Printf("session store unavailable, dedup disabled: %v", err)
		s.metrics.observeDegraded("session")
		id := req.SessionID
		if id == "" {
			id = uuid.NewString()
		}
		return &models.Session{ID: id, UserID: req.UserID, WorkspaceID: req.WorkspaceID, CreatedAt: time.Now()}
	}
	return sess
}

// candidateK sizes the retrieval set so reranking has headroom over the final
// page even after dedup and offset skipping.
func (s *Service) candidateK(limit, offset int) int {
	mult := s.cfg.CandidateMultiplier
	if mult <= 0 {
		mult = 4
	}
	return mult * (limit + offset)
}

func (s *Service) respond(ctx context.Context, key cache.Key, sess *models.Session, parsed models.ParsedQuery, ranked []models.Candidate, results []models.OptimizedResult, start time.Time) (*models.SearchResponse, error) {
	if results == nil {
		results = []models.OptimizedResult{}
	}
	s.cache.Set(ctx, key, cache.Entry{Results: results, Total: len(ranked)})
	s.writeBackSession(sess.ID, parsed.Raw, results)
	return &models.SearchResponse{
		Results:   results,
		Total:     len(ranked),
		LatencyMs: time.Since(start).Milliseconds(),
		SessionID: sess.ID,
		Cached:    false,
	}, nil
}

// writeBackSession records shown pages and the query asynchronously. Failures
// only weaken dedup for later requests, so they are logged and dropped.
func (s *Service) writeBackSession(sessionID, rawQuery string, results []models.OptimizedResult) {
	pageIDs := make([]string, 0, len(results))
	for _, r := range results {
		pageIDs = append(pageIDs, r.ID)
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sessionWriteTimeout)
		defer cancel()
		if len(pageIDs) > 0 {
			if err := s.sessions.AddShownPages(ctx, sessionID, pageIDs); err != nil {
				s.logger.Printf("session %s shown-pages write failed: %v", sessionID, err)
				s.metrics.observeDegraded("session")
			}
		}
		if err := s.sessions.AddQuery(ctx, sessionID, rawQuery, len(results)); err != nil {
			s.logger.Printf("session %s history write failed: %v", sessionID, err)
			s.metrics.observeDegraded("session")
		}
		if s.onSessionWrite != nil {
			s.onSessionWrite()
		}
	}()
}

// IsInvalidInput reports whether err is a caller mistake rather than a
// pipeline failure, for HTTP status mapping.
func IsInvalidInput(err error) bool {
	return errors.Is(err, models.ErrInvalidQuery) || errors.Is(err, models.ErrNoSources)
}

func sourceIDsOf(sources []models.Source) []string {
	ids := make([]string, 0, len(sources))
	for _, src := range sources {
		ids = append(ids, src.ID)
	}
	return ids
}

func sourceMap(sources []models.Source) map[string]models.Source {
	m := make(map[string]models.Source, len(sources))
	for _, src := range sources {
		m[src.ID] = src
	}
	return m
}
