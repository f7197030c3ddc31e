// Package inmemory implements the session store with process-local state,
// for tests and single-node development.
package inmemory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sievedocs/sieve/models"
	"github.com/sievedocs/sieve/session"
)

type entry struct {
	sess      models.Session
	shown     map[string]bool
	expiresAt time.Time
}

// Store keeps sessions in a mutex-guarded map.
type Store struct {
	mu           sync.Mutex
	sessions     map[string]*entry
	ttl          time.Duration
	historyLimit int
}

// NewStore builds an in-memory session store.
func NewStore(ttl time.Duration, historyLimit int) *Store {
	if historyLimit <= 0 {
		historyLimit = 50
	}
	return &Store{sessions: make(map[string]*entry), ttl: ttl, historyLimit: historyLimit}
}

var _ session.Store = (*Store)(nil)

func (s *Store) GetOrCreate(ctx context.Context, userID, workspaceID, sessionID string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if sessionID != "" {
		if e, ok := s.sessions[sessionID]; ok && e.expiresAt.After(now) {
			e.expiresAt = now.Add(s.ttl)
			return s.snapshot(e), nil
		}
	}
	id := sessionID
	if id == "" {
		id = uuid.NewString()
	}
	e := &entry{
		sess: models.Session{
			ID:          id,
			UserID:      userID,
			WorkspaceID: workspaceID,
			CreatedAt:   now.UTC(),
		},
		shown:     make(map[string]bool),
		expiresAt: now.Add(s.ttl),
	}
	s.sessions[id] = e
	return s.snapshot(e), nil
}

func (s *Store) AddShownPages(ctx context.Context, sessionID string, pageIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[sessionID]
	if !ok {
		return models.ErrSessionNotFound
	}
	for _, id := range pageIDs {
		if !e.shown[id] {
			e.shown[id] = true
			e.sess.ShownPageIDs = append(e.sess.ShownPageIDs, id)
		}
	}
	return nil
}

func (s *Store) AddQuery(ctx context.Context, sessionID, query string, resultCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[sessionID]
	if !ok {
		return models.ErrSessionNotFound
	}
	rec := models.QueryRecord{Query: query, ResultCount: resultCount, At: time.Now().UTC()}
	e.sess.History = append([]models.QueryRecord{rec}, e.sess.History...)
	if len(e.sess.History) > s.historyLimit {
		e.sess.History = e.sess.History[:s.historyLimit]
	}
	return nil
}

// snapshot copies the session so callers cannot mutate shared state.
func (s *Store) snapshot(e *entry) *models.Session {
	out := e.sess
	out.ShownPageIDs = append([]string(nil), e.sess.ShownPageIDs...)
	out.History = append([]models.QueryRecord(nil), e.sess.History...)
	return &out
}
