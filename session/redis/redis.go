// Package redis implements the session store on a shared redis instance so
// every handler replica sees the same shown-id sets.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/sievedocs/sieve/models"
	"github.com/sievedocs/sieve/session"
)

const (
	metaKeyPrefix    = "sess:"
	shownKeySuffix   = ":shown"
	historyKeySuffix = ":history"
)

type sessionMeta struct {
	UserID      string    `json:"user_id"`
	WorkspaceID string    `json:"workspace_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store keeps session state in redis: a JSON meta value, a set of shown page
// ids, and a list of history records, all sharing one TTL.
type Store struct {
	client       *redis.Client
	ttl          time.Duration
	historyLimit int
}

// NewStore builds a redis session store. historyLimit bounds per-session
// query history; ttl is refreshed on every touch.
func NewStore(client *redis.Client, ttl time.Duration, historyLimit int) *Store {
	if historyLimit <= 0 {
		historyLimit = 50
	}
	return &Store{client: client, ttl: ttl, historyLimit: historyLimit}
}

var _ session.Store = (*Store)(nil)

// Conn dials redis and verifies the connection with a ping.
func Conn(ctx context.Context, addr, pass string, db int, timeout time.Duration) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: timeout,
		Password:    pass,
		DB:          db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed (%s): %w", addr, err)
	}
	return client, nil
}

// GetOrCreate resolves or creates a session. Creation uses SETNX so two
// concurrent requests carrying the same new id agree on one session.
func (s *Store) GetOrCreate(ctx context.Context, userID, workspaceID, sessionID string) (*models.Session, error) {
	if sessionID != "" {
		sess, err := s.load(ctx, sessionID)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, models.ErrSessionNotFound) {
			return nil, err
		}
		// Caller supplied an id we have never seen (or that expired):
		// claim it atomically rather than minting a fresh one, so the
		// caller's id keeps working across its own retries.
		return s.create(ctx, userID, workspaceID, sessionID)
	}
	return s.create(ctx, userID, workspaceID, uuid.NewString())
}

func (s *Store) create(ctx context.Context, userID, workspaceID, id string) (*models.Session, error) {
	meta := sessionMeta{UserID: userID, WorkspaceID: workspaceID, CreatedAt: time.Now().UTC()}
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	ok, err := s.client.SetNX(ctx, metaKeyPrefix+id, data, s.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost the race: another request created this id first.
		return s.load(ctx, id)
	}
	return &models.Session{ID: id, UserID: userID, WorkspaceID: workspaceID, CreatedAt: meta.CreatedAt}, nil
}

func (s *Store) load(ctx context.Context, id string) (*models.Session, error) {
	val, err := s.client.Get(ctx, metaKeyPrefix+id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, models.ErrSessionNotFound
		}
		return nil, err
	}
	var meta sessionMeta
	if err := json.Unmarshal([]byte(val), &meta); err != nil {
		return nil, fmt.Errorf("decode session meta: %w", err)
	}

	shown, err := s.client.SMembers(ctx, metaKeyPrefix+id+shownKeySuffix).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	rawHistory, err := s.client.LRange(ctx, metaKeyPrefix+id+historyKeySuffix, 0, int64(s.historyLimit-1)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	history := make([]models.QueryRecord, 0, len(rawHistory))
	for _, raw := range rawHistory {
		var rec models.QueryRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			continue
		}
		history = append(history, rec)
	}

	s.touch(ctx, id)
	return &models.Session{
		ID:           id,
		UserID:       meta.UserID,
		WorkspaceID:  meta.WorkspaceID,
		ShownPageIDs: shown,
		History:      history,
		CreatedAt:    meta.CreatedAt,
	}, nil
}

// AddShownPages adds to the session's shown set; SADD gives set semantics.
func (s *Store) AddShownPages(ctx context.Context, sessionID string, pageIDs []string) error {
	if len(pageIDs) == 0 {
		return nil
	}
	members := make([]interface{}, len(pageIDs))
	for i, id := range pageIDs {
		members[i] = id
	}
	if err := s.client.SAdd(ctx, metaKeyPrefix+sessionID+shownKeySuffix, members...).Err(); err != nil {
		return err
	}
	s.touch(ctx, sessionID)
	return nil
}

// AddQuery prepends a history record and trims to the history limit.
func (s *Store) AddQuery(ctx context.Context, sessionID, query string, resultCount int) error {
	rec := models.QueryRecord{Query: query, ResultCount: resultCount, At: time.Now().UTC()}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	key := metaKeyPrefix + sessionID + historyKeySuffix
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, int64(s.historyLimit-1))
	pipe.Expire(ctx, key, s.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// touch refreshes TTLs on all three session keys.
func (s *Store) touch(ctx context.Context, id string) {
	for _, key := range []string{
		metaKeyPrefix + id,
		metaKeyPrefix + id + shownKeySuffix,
		metaKeyPrefix + id + historyKeySuffix,
	} {
		s.client.Expire(ctx, key, s.ttl)
	}
}
