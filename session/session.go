// Package session tracks conversational search sessions: which page ids a
// session has already been shown and a bounded history of its past queries.
package session

import (
	"context"

	"github.com/sievedocs/sieve/models"
)

// Store is the session backend. Implementations must make creation with a
// caller-supplied id idempotent under concurrent requests: a race must not
// create two sessions for one id.
type Store interface {
	// GetOrCreate resolves sessionID to an existing, non-expired session, or
	// creates a new session scoped to (userID, workspaceID). An empty
	// sessionID always creates.
	GetOrCreate(ctx context.Context, userID, workspaceID, sessionID string) (*models.Session, error)

	// AddShownPages appends page ids to the session's shown set. Duplicates
	// are no-ops.
	AddShownPages(ctx context.Context, sessionID string, pageIDs []string) error

	// AddQuery appends to the session's query history, evicting the oldest
	// entries beyond the store's history limit.
	AddQuery(ctx context.Context, sessionID, query string, resultCount int) error
}
