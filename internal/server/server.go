// Package server exposes the search pipeline over HTTP: POST /api/search plus
// the supporting sources and feedback endpoints, with Prometheus metrics and
// optional JWT auth.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sievedocs/sieve/config"
	"github.com/sievedocs/sieve/internal/cache"
	"github.com/sievedocs/sieve/internal/optimize"
	"github.com/sievedocs/sieve/internal/query"
	"github.com/sievedocs/sieve/internal/rerank"
	"github.com/sievedocs/sieve/internal/retriever"
	"github.com/sievedocs/sieve/internal/search"
	"github.com/sievedocs/sieve/internal/source"
	"github.com/sievedocs/sieve/internal/store"
	"github.com/sievedocs/sieve/provider"
	sessredis "github.com/sievedocs/sieve/session/redis"
)

// Run builds the full pipeline from config and serves HTTP on addr. An empty
// addr falls back to general.listen.
func Run(cfgPath, addr string) error {
	cfg := config.LoadConfig(cfgPath)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization", "Cookie"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	ctx := context.Background()
	dsn, err := cfg.Storage.Postgres.DSN()
	if err != nil {
		return err
	}
	_ = Migrate("file://migrations", dsn, "up", 0)

	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		return fmt.Errorf("postgres connection failed: %w", err)
	}

	rdb, err := sessredis.Conn(ctx, cfg.Storage.Redis.Addr(), cfg.Storage.Redis.Password, cfg.Storage.Redis.DB, cfg.Storage.Redis.Timeout)
	if err != nil {
		return fmt.Errorf("redis connection failed (%s): %w", cfg.Storage.Redis.Addr(), err)
	}
	sessions := sessredis.NewStore(rdb, cfg.Search.SessionTTL, cfg.Search.HistoryLimit)

	if cfg.Providers.OpenAI.APIKey == "" {
		return fmt.Errorf("openai api key not configured (providers.openai.api_key)")
	}
	embedder, err := provider.NewEmbedder(provider.OpenAI, provider.Options{
		APIKey:         cfg.Providers.OpenAI.APIKey,
		EmbeddingModel: cfg.Providers.OpenAI.EmbeddingModel,
		Timeout:        cfg.Providers.OpenAI.Timeout,
	})
	if err != nil {
		return err
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
		Metrics:   search.NewMetrics(prometheus.DefaultRegisterer),
	})

	secret := []byte(cfg.General.JWTSecret)
	if len(secret) == 0 {
		baseLogger.Printf("jwt secret not configured, auth disabled")
	}

	api := e.Group("/api")
	(&SearchHandler{Svc: svc}).Register(api.Group("/search"), secret)
	(&SourcesHandler{Store: st}).Register(api.Group("/sources"), secret)
	(&FeedbackHandler{Store: st}).Register(api.Group("/feedback"), secret)

	if addr == "" {
		addr = cfg.General.Listen
		if addr != "" && addr[0] != ':' {
			addr = ":" + addr
		}
	}
	if addr == "" {
		addr = ":10030"
	}
	return e.Start(addr)
}
