// Package mcp exposes the search pipeline to coding agents over stdio
// JSON-RPC: "tools/list" and "tools/call". Persistence and sessions live
// behind the pipeline; the tools here only translate arguments and format
// results for an LLM context window.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/sievedocs/sieve/config"
	"github.com/sievedocs/sieve/internal/cache"
	"github.com/sievedocs/sieve/internal/optimize"
	"github.com/sievedocs/sieve/internal/query"
	"github.com/sievedocs/sieve/internal/rerank"
	"github.com/sievedocs/sieve/internal/retriever"
	"github.com/sievedocs/sieve/internal/search"
	"github.com/sievedocs/sieve/internal/source"
	"github.com/sievedocs/sieve/internal/store"
	"github.com/sievedocs/sieve/models"
	"github.com/sievedocs/sieve/provider"
	sessredis "github.com/sievedocs/sieve/session/redis"
)

type rpcReq struct {
	JSONRPC string                 `json:"jsonrpc"`
	ID      any                    `json:"id"`
	Method  string                 `json:"method"`
	Params  map[string]interface{} `json:"params"`
}
type rpcResp struct {
	JSONRPC string                 `json:"jsonrpc"`
	ID      any                    `json:"id"`
	Result  map[string]interface{} `json:"result,omitempty"`
	Error   *rpcError              `json:"error,omitempty"`
}
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeResp(w io.Writer, id any, result map[string]interface{}, err error) {
	resp := rpcResp{JSONRPC: "2.0", ID: id}
	if err != nil {
		resp.Error = &rpcError{Code: -32000, Message: err.Error()}
	} else {
		resp.Result = result
	}
	enc := json.NewEncoder(w)
	_ = enc.Encode(resp)
}

// ToolDesc describes a single MCP tool, including input schema.
type ToolDesc struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// Searcher runs the ranking pipeline for docs.search.
type Searcher interface {
	Search(ctx context.Context, req models.SearchRequest) (*models.SearchResponse, error)
}

// SourceLister backs docs.sources.
type SourceLister interface {
	AllSources(ctx context.Context) ([]models.Source, error)
}

// FeedbackRecorder backs docs.feedback.
type FeedbackRecorder interface {
	RecordFeedback(ctx context.Context, pageID, userID string, helpful bool) error
}

// MCPServer holds shared deps.
type MCPServer struct {
	Search   Searcher
	Sources  SourceLister
	Feedback FeedbackRecorder

	CallTimeout time.Duration

	tools []ToolDesc
}

// NewMCPServer wires the full pipeline from config, same stores the HTTP
// server uses.
func NewMCPServer(cfgPath string) (*MCPServer, error) {
	cfg := config.LoadConfig(cfgPath)
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	ctx := context.Background()
	dsn, err := cfg.Storage.Postgres.DSN()
	if err != nil {
		return nil, err
	}
	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	rdb, err := sessredis.Conn(ctx, cfg.Storage.Redis.Addr(), cfg.Storage.Redis.Password, cfg.Storage.Redis.DB, cfg.Storage.Redis.Timeout)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	sessions := sessredis.NewStore(rdb, cfg.Search.SessionTTL, cfg.Search.HistoryLimit)

	embedder, err := provider.NewEmbedder(provider.OpenAI, provider.Options{
		APIKey:         cfg.Providers.OpenAI.APIKey,
		EmbeddingModel: cfg.Providers.OpenAI.EmbeddingModel,
		Timeout:        cfg.Providers.OpenAI.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: %w", err)
	}

	svc := search.NewService(cfg.Search, search.Deps{
		Parser:    query.NewParser(nil),
		Sessions:  sessions,
		Booster:   source.NewBooster(),
		Retriever: retriever.New(st, embedder, cfg.Search.LexicalWeight, cfg.Search.VectorWeight, nil),
		Reranker:  rerank.New(st, nil),
		Optimizer: optimize.New(),
		Cache:     cache.New(cache.NewRedisKV(rdb), cfg.Search.CacheTTL, nil),
		Catalog:   st,
	})

	srv := &MCPServer{
		Search:      svc,
		Sources:     st,
		Feedback:    st,
		CallTimeout: 30 * time.Second,
	}
	srv.initTools()
	return srv, nil
}

// NewWithDeps builds a server around explicit collaborators.
func NewWithDeps(searcher Searcher, sources SourceLister, feedback FeedbackRecorder) *MCPServer {
	srv := &MCPServer{
		Search:      searcher,
		Sources:     sources,
		Feedback:    feedback,
		CallTimeout: 30 * time.Second,
	}
	srv.initTools()
	return srv
}

// initTools defines schemas and descriptions surfaced to MCP clients.
func (srv *MCPServer) initTools() {
	srv.tools = []ToolDesc{
		{
			Name:        "docs.search",
			Description: "Search indexed documentation sources. Pass session_id from a previous call to avoid repeated results in one conversation.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query":      map[string]any{"type": "string"},
					"source_ids": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"session_id": map[string]any{"type": "string"},
					"limit":      map[string]any{"type": "integer", "minimum": 1, "maximum": 25},
					"offset":     map[string]any{"type": "integer", "minimum": 0},
				},
				"required": []string{"query", "source_ids"},
			},
		},
		{
			Name:        "docs.sources",
			Description: "List available documentation sources with their ids.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		{
			Name:        "docs.feedback",
			Description: "Record whether a returned documentation page was helpful.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"page_id": map[string]any{"type": "string"},
					"helpful": map[string]any{"type": "boolean"},
				},
				"required": []string{"page_id", "helpful"},
			},
		},
	}
}

// callTool dispatches to handler functions.
func (srv *MCPServer) callTool(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	switch name {
	case "docs.search":
		return srv.tDocsSearch(ctx, args)
	case "docs.sources":
		return srv.tDocsSources(ctx)
	case "docs.feedback":
		return srv.tDocsFeedback(ctx, args)
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// tDocsSearch runs the pipeline and formats results as markdown for the
// agent's context window.
func (srv *MCPServer) tDocsSearch(ctx context.Context, args map[string]any) (map[string]any, error) {
	q := str(args["query"])
	if q == "" {
		return nil, errors.New("query is required")
	}
	sourceIDs := asStrSlice(args["source_ids"])
	if len(sourceIDs) == 0 {
		return nil, errors.New("source_ids is required (non-empty array)")
	}
	limit := asInt(args["limit"])
	if limit > 0 {
		limit = clampInt(limit, 1, 25)
	}

	resp, err := srv.Search.Search(ctx, models.SearchRequest{
		Query:     q,
		SourceIDs: sourceIDs,
		SessionID: str(args["session_id"]),
		Limit:     limit,
		Offset:    asInt(args["offset"]),
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"content":    optimize.FormatMCP(resp.Results, resp.SessionID),
		"session_id": resp.SessionID,
		"total":      resp.Total,
		"cached":     resp.Cached,
	}, nil
}

func (srv *MCPServer) tDocsSources(ctx context.Context) (map[string]any, error) {
	items, err := srv.Sources.AllSources(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(items))
	for _, s := range items {
		out = append(out, map[string]any{
			"id":        s.ID,
			"title":     s.Title,
			"domain":    s.Domain,
			"framework": s.Framework,
			"summary":   s.Summary,
		})
	}
	return map[string]any{"sources": out}, nil
}

func (srv *MCPServer) tDocsFeedback(ctx context.Context, args map[string]any) (map[string]any, error) {
	pageID := str(args["page_id"])
	if pageID == "" {
		return nil, errors.New("page_id is required")
	}
	helpful, ok := args["helpful"].(bool)
	if !ok {
		return nil, errors.New("helpful is required")
	}
	if err := srv.Feedback.RecordFeedback(ctx, pageID, str(args["user_id"]), helpful); err != nil {
		return nil, err
	}
	return map[string]any{"recorded": true}, nil
}

func str(v any) string { s, _ := v.(string); return s }
func asInt(v any) int {
	switch x := v.(type) {
	case float64:
		return int(x)
	case int:
		return x
	case json.Number:
		i, _ := x.Int64()
		return int(i)
	default:
		return 0
	}
}
func asStrSlice(v any) []string {
	if v == nil {
		return nil
	}
	switch x := v.(type) {
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Serve runs a simple stdio JSON-RPC loop for MCP.
func (srv *MCPServer) Serve(in io.Reader, out io.Writer) error {
	rd := bufio.NewReader(in)
	dec := json.NewDecoder(rd)
	for {
		var req rpcReq
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			// try to skip bad lines
			continue
		}

		switch req.Method {
		case "tools/list":
			writeResp(out, req.ID, map[string]any{"tools": srv.tools}, nil)

		case "tools/call":
			name := ""
			args := map[string]any{}
			if v, ok := req.Params["name"].(string); ok {
				name = v
			}
			if m, ok := req.Params["arguments"].(map[string]any); ok {
				args = m
			}
			// Per-call timeout to avoid stuck handlers
			ctx, cancel := context.WithTimeout(context.Background(), srv.CallTimeout)
			res, err := srv.callTool(ctx, name, args)
			cancel()
			writeResp(out, req.ID, res, err)

		default:
			writeResp(out, req.ID, nil, fmt.Errorf("unknown method: %s", req.Method))
		}
	}
}
