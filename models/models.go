package models

import (
	"errors"
	"time"
)

// ErrSessionNotFound is returned when a session id does not resolve.
var ErrSessionNotFound = errors.New("session not found")

// ErrInvalidQuery is returned before any retrieval work for malformed queries.
var ErrInvalidQuery = errors.New("invalid query")

// ErrNoSources is returned when the caller supplies no accessible sources.
var ErrNoSources = errors.New("no accessible sources")

// Intent is the coarse category a query falls into.
type Intent string

const (
	IntentHowTo        Intent = "how_to"
	IntentExplain      Intent = "explain"
	IntentTroubleshoot Intent = "troubleshoot"
	IntentReference    Intent = "reference"
)

// FrameworkTag is a framework/library detected in a query, with match strength.
type FrameworkTag struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// ParsedQuery is the structured form of a raw query. Immutable once produced.
type ParsedQuery struct {
	Raw        string         `json:"raw"`
	Frameworks []FrameworkTag `json:"frameworks"`
	Keywords   []string       `json:"keywords"`
	Intent     Intent         `json:"intent"`
}

// HasFramework reports whether the query detected the named framework.
func (p ParsedQuery) HasFramework(name string) bool {
	for _, f := range p.Frameworks {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Scores carries a candidate's scoring state through the pipeline stages.
type Scores struct {
	Lexical  float64 `json:"lexical"`
	Vector   float64 `json:"vector"`
	Combined float64 `json:"combined"`
	Reranked float64 `json:"reranked"`
	Final    float64 `json:"final"`
}

// Candidate is a retrieved page/chunk under consideration for one request.
type Candidate struct {
	PageID     string    `json:"page_id"`
	SourceID   string    `json:"source_id"`
	Title      string    `json:"title"`
	URL        string    `json:"url"`
	Snippet    string    `json:"snippet"`
	Frameworks []string  `json:"frameworks,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
	HasLexical bool      `json:"-"`
	HasVector  bool      `json:"-"`
	Scores     Scores    `json:"scores"`
	// Signals holds the per-signal reranking multipliers; populated only
	// when the caller asked for score breakdowns.
	Signals map[string]float64 `json:"signals,omitempty"`
}

// SourceBoost maps source id -> multiplicative boost factor (default 1.0).
type SourceBoost map[string]float64

// Factor returns the boost for a source, defaulting to neutral.
func (b SourceBoost) Factor(sourceID string) float64 {
	if b == nil {
		return 1.0
	}
	if f, ok := b[sourceID]; ok && f > 0 {
		return f
	}
	return 1.0
}

// Source is the metadata the booster and optimizer need about a doc source.
type Source struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Domain    string `json:"domain"`
	Framework string `json:"framework,omitempty"`
	Summary   string `json:"summary,omitempty"`
}

// QueryRecord is one entry of a session's bounded query history.
type QueryRecord struct {
	Query       string    `json:"query"`
	ResultCount int       `json:"result_count"`
	At          time.Time `json:"at"`
}

// Session tracks what one conversation has already been shown.
type Session struct {
	ID           string        `json:"id"`
	UserID       string        `json:"user_id"`
	WorkspaceID  string        `json:"workspace_id"`
	ShownPageIDs []string      `json:"shown_page_ids"`
	History      []QueryRecord `json:"history"`
	CreatedAt    time.Time     `json:"created_at"`
}

// OptimizedResult is the caller-facing result shape.
type OptimizedResult struct {
	ID              string             `json:"id"`
	Title           string             `json:"title"`
	URL             string             `json:"url"`
	Snippet         string             `json:"snippet"`
	SourceSummary   string             `json:"source_summary,omitempty"`
	Score           float64            `json:"score"`
	EstimatedTokens int                `json:"estimated_tokens"`
	Reasons         map[string]float64 `json:"reasons,omitempty"`
}

// SearchRequest is the single operation this core exposes to its callers.
type SearchRequest struct {
	Query          string   `json:"query"`
	SourceIDs      []string `json:"source_ids"`
	UserID         string   `json:"user_id"`
	WorkspaceID    string   `json:"workspace_id"`
	SessionID      string   `json:"session_id,omitempty"`
	Limit          int      `json:"limit"`
	Offset         int      `json:"offset"`
	IncludeReasons bool     `json:"include_reasons,omitempty"`
}

// SearchResponse is returned to both the web and MCP callers.
type SearchResponse struct {
	Results   []OptimizedResult `json:"results"`
	Total     int               `json:"total"`
	LatencyMs int64             `json:"latency_ms"`
	SessionID string            `json:"session_id"`
	Cached    bool              `json:"cached"`
}
