package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/sievedocs/sieve/models"
)

// SourceStore lists the documentation sources available for filtering.
type SourceStore interface {
	AllSources(ctx context.Context) ([]models.Source, error)
	ListSources(ctx context.Context, ids []string) ([]models.Source, error)
}

type SourcesHandler struct {
	Store SourceStore
}

func (h *SourcesHandler) Register(g *echo.Group, secret []byte) {
	g.Use(func(next echo.HandlerFunc) echo.HandlerFunc { return withAuth(next, secret) })
	g.GET("", h.list)
}

func (h *SourcesHandler) list(c echo.Context) error {
	ctx := c.Request().Context()
	var (
		items []models.Source
		err   error
	)
	if raw := c.QueryParam("ids"); raw != "" {
		items, err = h.Store.ListSources(ctx, strings.Split(raw, ","))
	} else {
		items, err = h.Store.AllSources(ctx)
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []models.Source{}
	}
	return c.JSON(http.StatusOK, items)
}
